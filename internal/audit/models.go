package audit

import "time"

// Event is an immutable, append-only audit record of a caller action.
//
// Invariants:
// - Events are never updated or deleted.
// - organization_id is required for tenancy isolation.
// - actor and ip capture are best-effort; audit failures never block a call.
type Event struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Type           EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	ConversationID string `json:"conversation_id,omitempty" db:"conversation_id"`
	Provider       string `json:"provider,omitempty" db:"provider"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallInitiated EventType = "call_initiated"
	// EventTypeCallDialFailed marks a conversation left RINGING because the
	// provider refused the dial.
	EventTypeCallDialFailed EventType = "call_dial_failed"
)
