// Package telephony is the provider boundary: webhook parsing, call-control
// clients and the small amount of call-lifecycle logic that reacts to
// provider events.
//
// Rules:
//   - No provider SDK or REST calls outside this package.
//   - Every conversation mutation is scoped by (id, organization_id).
//   - Routing decisions come from internal/routing, never from here.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"callbridge/internal/clientstate"
	"callbridge/internal/conversations"
	"callbridge/internal/routing"
)

const (
	ProviderTelnyx = "telnyx"
	ProviderTwilio = "twilio"
)

// Webhook paths, relative to the public webhook base URL.
const (
	TelnyxWebhookPath = "/webhooks/telnyx"
	TwilioVoicePath   = "/webhooks/twilio/voice"
	TwilioStatusPath  = "/webhooks/twilio/status"
)

// Query parameter names carried on webhook and media-stream URLs.
const (
	QueryConversationID = "conversationId"
	QueryOrganizationID = "organizationId"
)

var (
	ErrMalformedWebhook     = errors.New("telephony: malformed webhook")
	ErrMissingCallControlID = errors.New("telephony: call_control_id is required")
	ErrStreamNotConfigured  = errors.New("telephony: media stream url not configured")
)

// WithCallIDs appends conversationId and organizationId to base, keeping any
// query it already has.
func WithCallIDs(base string, ids clientstate.CallIDs) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", ErrStreamNotConfigured
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("telephony: parse %q: %w", base, err)
	}
	q := u.Query()
	q.Set(QueryConversationID, ids.ConversationID)
	q.Set(QueryOrganizationID, ids.OrganizationID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// idsFromQuery reads the ids a callback URL was built with.
func idsFromQuery(q url.Values) clientstate.CallIDs {
	return clientstate.CallIDs{
		ConversationID: strings.TrimSpace(q.Get(QueryConversationID)),
		OrganizationID: strings.TrimSpace(q.Get(QueryOrganizationID)),
	}
}

// inbound creates the conversation for a call nobody placed, once routing
// has picked the agent that answers it.
type inbound struct {
	conversations conversations.Repository
	resolver      routing.Resolver
	now           func() time.Time
	newID         func() string
}

func newInbound(repo conversations.Repository, resolver routing.Resolver, now func() time.Time, newID func() string) inbound {
	if resolver == nil {
		resolver = routing.NewNoopResolver()
	}
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return inbound{conversations: repo, resolver: resolver, now: now, newID: newID}
}

// accept returns the routing decision and, when the call is answered, the
// RINGING conversation created for it.
func (in inbound) accept(ctx context.Context, call routing.InboundCall) (routing.Decision, conversations.Conversation, error) {
	d, err := in.resolver.ResolveInbound(ctx, call)
	if err != nil {
		return routing.Decision{}, conversations.Conversation{}, fmt.Errorf("resolve inbound: %w", err)
	}
	if d.Action != routing.ActionAnswer {
		return d, conversations.Conversation{}, nil
	}
	if in.conversations == nil {
		return routing.Decision{}, conversations.Conversation{}, errors.New("telephony: conversation repository is nil")
	}

	now := in.now().UTC()
	conv, err := in.conversations.Create(ctx, conversations.Conversation{
		ID:             in.newID(),
		AgentID:        d.AgentID,
		OrganizationID: d.OrganizationID,
		CustomerPhone:  call.From,
		Direction:      conversations.DirectionInbound,
		Provider:       call.Provider,
		ProviderCallID: call.ProviderCallID,
		Status:         conversations.StatusRinging,
		StartedAt:      now,
	})
	if err != nil {
		return routing.Decision{}, conversations.Conversation{}, fmt.Errorf("create inbound conversation: %w", err)
	}
	return d, conv, nil
}

type transitionFunc func(ctx context.Context, organizationID, id string, now time.Time) (bool, error)

// applyTransition runs one idempotent lifecycle transition and logs the
// outcome. Callers acknowledge the provider whatever happens here.
func applyTransition(ctx context.Context, log *slog.Logger, ids clientstate.CallIDs, name string, now time.Time, apply transitionFunc) {
	if !ids.Complete() {
		log.Warn("event has no conversation ids", "transition", name)
		return
	}
	changed, err := apply(ctx, ids.OrganizationID, ids.ConversationID, now)
	if err != nil {
		log.Error("conversation transition failed", "transition", name, "err", err)
		return
	}
	if !changed {
		log.Debug("conversation transition skipped", "transition", name)
		return
	}
	log.Info("conversation " + name)
}
