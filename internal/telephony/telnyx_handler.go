package telephony

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/internal/clientstate"
	"callbridge/internal/conversations"
	"callbridge/internal/routing"
	"callbridge/pkg/logger"
)

const (
	maxWebhookBytes = 1 << 20

	telnyxStreamTrack = "both_tracks"
	telnyxStreamMode  = "rtp"
)

// CallControl is the subset of the Telnyx API the webhook handler drives.
type CallControl interface {
	Answer(ctx context.Context, callControlID, clientState string) error
	StartStreaming(ctx context.Context, callControlID string, req StreamingRequest) error
}

// TelnyxWebhookHandler drives the conversation lifecycle from Call Control
// events. Provider failures are logged and acknowledged: Telnyx retries
// non-2xx deliveries, and a retry cannot fix them.
type TelnyxWebhookHandler struct {
	Conversations conversations.Repository
	Resolver      routing.Resolver
	Control       CallControl
	// Dedupe is optional; transitions are idempotent without it.
	Dedupe EventDeduper

	// MediaStreamURL is the relay's wss:// endpoint for Telnyx streams.
	MediaStreamURL string

	Now   func() time.Time
	NewID func() string
}

func (h TelnyxWebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Now == nil {
		h.Now = time.Now
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	wh, err := ParseTelnyxWebhook(raw)
	switch {
	case errors.Is(err, ErrMissingCallControlID):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_control_id is required"})
		return
	case err != nil:
		log.Warn("telnyx webhook rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	call := wh.Event.Call()
	ids, fromState := clientstate.DecodeIDs(call.ClientState)
	if !fromState {
		ids = idsFromQuery(c.Request.URL.Query())
	}
	log = logger.WithCall(log, ProviderTelnyx, call.CallControlID, ids.ConversationID, ids.OrganizationID).
		With("event_type", wh.Type)
	ctx := routing.WithClientIP(logger.With(c.Request.Context(), log), c.ClientIP())

	if h.Dedupe != nil && wh.ID != "" {
		first, err := h.Dedupe.FirstDelivery(ctx, ProviderTelnyx, wh.ID)
		if err != nil {
			log.Warn("webhook dedupe unavailable", "err", err)
		} else if !first {
			log.Debug("duplicate telnyx delivery skipped", "event_id", wh.ID)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	}

	switch ev := wh.Event.(type) {
	case CallInitiated:
		h.initiated(ctx, log, ev, ids)
	case CallAnswered:
		h.answered(ctx, log, ev, ids)
	case StreamingStarted:
		applyTransition(ctx, log, ids, "connected", h.Now().UTC(), h.Conversations.MarkConnected)
	case CallHangup:
		log = log.With("hangup_cause", ev.Cause)
		applyTransition(ctx, log, ids, "ended", h.Now().UTC(), h.Conversations.MarkEnded)
	default:
		log.Debug("telnyx event ignored")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h TelnyxWebhookHandler) initiated(ctx context.Context, log *slog.Logger, ev CallInitiated, ids clientstate.CallIDs) {
	if ev.Direction != TelnyxDirectionIncoming {
		return
	}
	if ids.Complete() {
		log.Debug("incoming call already carries ids")
		return
	}

	in := newInbound(h.Conversations, h.Resolver, h.Now, h.NewID)
	d, conv, err := in.accept(ctx, routing.InboundCall{
		Provider:       ProviderTelnyx,
		ProviderCallID: ev.CallControlID,
		From:           ev.From,
		To:             ev.To,
	})
	if err != nil {
		log.Error("inbound call setup failed", "err", err)
		return
	}
	if d.Action != routing.ActionAnswer {
		log.Info("inbound call not routed", "to", ev.To, "reason", d.Reason)
		return
	}

	log = log.With(logger.KeyConversationID, conv.ID, logger.KeyOrganizationID, conv.OrganizationID)
	state := clientstate.EncodeIDs(clientstate.CallIDs{ConversationID: conv.ID, OrganizationID: conv.OrganizationID})
	if err := h.Control.Answer(ctx, ev.CallControlID, state); err != nil {
		log.Error("telnyx answer failed", "err", err)
		return
	}
	log.Info("inbound call answered", "agent_id", conv.AgentID)
}

func (h TelnyxWebhookHandler) answered(ctx context.Context, log *slog.Logger, ev CallAnswered, ids clientstate.CallIDs) {
	if !ids.Complete() {
		log.Warn("answered call has no conversation ids")
		return
	}
	streamURL, err := WithCallIDs(h.MediaStreamURL, ids)
	if err != nil {
		log.Error("cannot start media stream", "err", err)
		return
	}
	err = h.Control.StartStreaming(ctx, ev.CallControlID, StreamingRequest{
		StreamURL:               streamURL,
		StreamTrack:             telnyxStreamTrack,
		StreamBidirectionalMode: telnyxStreamMode,
	})
	if err != nil {
		log.Error("telnyx streaming_start failed", "err", err)
		return
	}
	log.Info("media stream requested")
}
