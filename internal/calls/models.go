package calls

import (
	"errors"
	"regexp"
	"strings"

	"callbridge/internal/agents"
	"callbridge/internal/conversations"
	"callbridge/internal/telephony"
)

// InitiateRequest is the body of POST /v1/calls. The organization comes from
// the caller's token, never from the body.
type InitiateRequest struct {
	AgentID       string `json:"agentId"`
	CustomerPhone string `json:"customerPhone"`
	CustomerName  string `json:"customerName,omitempty"`
	// Provider defaults to telnyx.
	Provider string `json:"provider,omitempty"`
}

// InitiateResult is returned once the provider accepted the dial.
type InitiateResult struct {
	ConversationID string               `json:"conversationId"`
	ProviderCallID string               `json:"providerCallId"`
	Status         conversations.Status `json:"status"`
}

var (
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrAgentNotFound   = errors.New("calls: agent not found")
	// ErrConfiguration means the provider cannot dial: credentials, caller id
	// or webhook base URL are missing. Nothing has been written.
	ErrConfiguration = errors.New("calls: provider not configured")
	// ErrUpstream means the provider refused the dial. The RINGING
	// conversation is kept.
	ErrUpstream = errors.New("calls: provider rejected call")
)

const DefaultProvider = telephony.ProviderTelnyx

var dialable = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)

// normalize trims the request and fills defaults, then validates it.
func (r *InitiateRequest) normalize() error {
	r.AgentID = strings.TrimSpace(r.AgentID)
	r.CustomerPhone = agents.NormalizePhone(r.CustomerPhone)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	if r.Provider == "" {
		r.Provider = DefaultProvider
	}

	switch {
	case r.AgentID == "":
		return errors.Join(ErrInvalidArgument, errors.New("agentId is required"))
	case r.CustomerPhone == "":
		return errors.Join(ErrInvalidArgument, errors.New("customerPhone is required"))
	case !dialable.MatchString(r.CustomerPhone):
		return errors.Join(ErrInvalidArgument, errors.New("customerPhone is not a dialable number"))
	case r.Provider != telephony.ProviderTelnyx && r.Provider != telephony.ProviderTwilio:
		return errors.Join(ErrInvalidArgument, errors.New("provider must be telnyx or twilio"))
	}
	return nil
}
