package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callbridge/internal/agents"
	"callbridge/internal/audit"
	"callbridge/internal/clientstate"
	"callbridge/internal/conversations"
	"callbridge/pkg/logger"
)

// Initiator places outbound calls on behalf of an organization's agent.
type Initiator struct {
	agents        agents.Repository
	conversations conversations.Repository
	audit         *audit.Service
	dialers       map[string]Dialer

	now   func() time.Time
	newID func() string
}

// NewInitiator indexes dialers by provider. audit may be nil.
func NewInitiator(agentRepo agents.Repository, convRepo conversations.Repository, auditSvc *audit.Service, dialers ...Dialer) *Initiator {
	byProvider := make(map[string]Dialer, len(dialers))
	for _, d := range dialers {
		if d != nil {
			byProvider[d.Provider()] = d
		}
	}
	return &Initiator{
		agents:        agentRepo,
		conversations: convRepo,
		audit:         auditSvc,
		dialers:       byProvider,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Initiate validates the request, creates a RINGING outbound conversation and
// asks the provider to dial.
//
// Errors: ErrInvalidArgument, ErrAgentNotFound and ErrConfiguration leave no
// trace. ErrUpstream leaves the conversation in place; its id is still returned.
func (s *Initiator) Initiate(ctx context.Context, organizationID string, actor audit.Actor, req InitiateRequest) (InitiateResult, error) {
	if organizationID == "" {
		return InitiateResult{}, errors.Join(ErrInvalidArgument, errors.New("organization is required"))
	}
	if err := req.normalize(); err != nil {
		return InitiateResult{}, err
	}

	dialer, ok := s.dialers[req.Provider]
	if !ok || !dialer.Ready() {
		return InitiateResult{}, fmt.Errorf("%w: %s", ErrConfiguration, req.Provider)
	}

	agent, err := s.agents.Get(ctx, organizationID, req.AgentID)
	if errors.Is(err, agents.ErrNotFound) {
		return InitiateResult{}, ErrAgentNotFound
	}
	if err != nil {
		return InitiateResult{}, fmt.Errorf("load agent: %w", err)
	}

	conv, err := s.conversations.Create(ctx, conversations.Conversation{
		ID:             s.newID(),
		AgentID:        agent.ID,
		OrganizationID: organizationID,
		CustomerPhone:  req.CustomerPhone,
		CustomerName:   req.CustomerName,
		Direction:      conversations.DirectionOutbound,
		Provider:       req.Provider,
		Status:         conversations.StatusRinging,
		StartedAt:      s.now().UTC(),
	})
	if err != nil {
		return InitiateResult{}, fmt.Errorf("create conversation: %w", err)
	}

	log := logger.WithCall(logger.From(ctx), req.Provider, "", conv.ID, organizationID)
	ids := clientstate.CallIDs{ConversationID: conv.ID, OrganizationID: organizationID}

	providerCallID, err := dialer.Dial(ctx, Outbound{To: req.CustomerPhone, IDs: ids})
	if err != nil {
		log.Error("outbound dial failed", "err", err)
		if s.audit != nil {
			if aerr := s.audit.LogDialFailed(ctx, organizationID, actor, conv.ID, req.Provider, err); aerr != nil {
				log.Warn("audit dial failure", "err", aerr)
			}
		}
		return InitiateResult{ConversationID: conv.ID, Status: conv.Status}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	log = log.With(logger.KeyCallID, providerCallID)
	if err := s.conversations.SetProviderCallID(ctx, organizationID, conv.ID, providerCallID); err != nil {
		log.Warn("store provider call id", "err", err)
	}
	if s.audit != nil {
		if err := s.audit.LogCallInitiated(ctx, organizationID, actor, conv.ID, req.Provider, providerCallID); err != nil {
			log.Warn("audit call initiated", "err", err)
		}
	}
	log.Info("outbound call placed", "agent_id", agent.ID)

	return InitiateResult{
		ConversationID: conv.ID,
		ProviderCallID: providerCallID,
		Status:         conv.Status,
	}, nil
}
