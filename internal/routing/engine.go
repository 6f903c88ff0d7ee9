package routing

import (
	"context"
	"errors"

	"callbridge/internal/agents"
	"callbridge/pkg/logger"
)

// InboundCall is what a provider webhook knows about a call nobody placed.
type InboundCall struct {
	Provider       string
	ProviderCallID string
	From           string
	To             string
}

// Resolver decides whether an inbound call is answered and by whom.
//
// An unknown number is a Decision{Action: ActionReject}, not an error; errors
// are reserved for storage failures.
type Resolver interface {
	ResolveInbound(ctx context.Context, call InboundCall) (Decision, error)
}

// NewAgentResolver routes on the dialed number: whichever agent owns To answers.
func NewAgentResolver(repo agents.Repository) Resolver {
	return agentResolver{agents: repo}
}

type agentResolver struct {
	agents agents.Repository
}

func (r agentResolver) ResolveInbound(ctx context.Context, call InboundCall) (Decision, error) {
	if r.agents == nil {
		return Decision{}, errors.New("routing: agent repository is nil")
	}
	if call.To == "" {
		return Decision{Action: ActionReject, Reason: "missing dialed number"}, nil
	}

	a, err := r.agents.FindByPhoneNumber(ctx, call.To)
	if errors.Is(err, agents.ErrNotFound) {
		logger.From(ctx).Info("inbound call unrouted",
			"to", call.To, "provider", call.Provider, "client_ip", ClientIPFromContext(ctx))
		return Decision{Action: ActionReject, Reason: "no agent for dialed number"}, nil
	}
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Action:         ActionAnswer,
		OrganizationID: a.OrganizationID,
		AgentID:        a.ID,
	}, nil
}

// NewNoopResolver returns a resolver that always rejects.
func NewNoopResolver() Resolver { return noopResolver{} }

type noopResolver struct{}

func (noopResolver) ResolveInbound(ctx context.Context, call InboundCall) (Decision, error) {
	return Decision{Action: ActionReject, Reason: "inbound routing disabled"}, nil
}
