package conversations

import (
	"errors"
	"time"
)

// Conversation is the durable record of one phone call handled by an agent.
//
// Tenancy invariant: OrganizationID is required on every row and every
// mutation is scoped by (id, organization_id).
type Conversation struct {
	ID             string `json:"id" db:"id"`
	AgentID        string `json:"agentId" db:"agent_id"`
	OrganizationID string `json:"organizationId" db:"organization_id"`

	CustomerPhone string `json:"customerPhone" db:"customer_phone"`
	CustomerName  string `json:"customerName,omitempty" db:"customer_name"`

	Direction      Direction `json:"direction" db:"direction"`
	Provider       string    `json:"provider" db:"provider"`
	ProviderCallID string    `json:"providerCallId,omitempty" db:"provider_call_id"`

	Status Status `json:"status" db:"status"`

	// Duration is whole seconds between StartedAt and EndedAt.
	Duration   int    `json:"duration" db:"duration"`
	Transcript string `json:"transcript,omitempty" db:"transcript"`
	Notes      string `json:"notes,omitempty" db:"notes"`

	StartedAt time.Time  `json:"startedAt" db:"started_at"`
	EndedAt   *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

type Status string

const (
	StatusRinging   Status = "RINGING"
	StatusConnected Status = "CONNECTED"
	StatusEnded     Status = "ENDED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusFailed
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

var (
	ErrNotFound        = errors.New("conversations: not found")
	ErrInvalidArgument = errors.New("conversations: invalid argument")
)

// durationSeconds never returns a negative value, even with clock skew between writers.
func durationSeconds(startedAt, endedAt time.Time) int {
	if startedAt.IsZero() || endedAt.Before(startedAt) {
		return 0
	}
	return int(endedAt.Sub(startedAt) / time.Second)
}
