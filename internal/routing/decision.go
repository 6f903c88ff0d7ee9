package routing

// Decision is the provider-agnostic outcome of inbound resolution.
//
// Provider adapters turn it into their own vocabulary (a Telnyx answer
// action, a TwiML Reject).
type Decision struct {
	Action Action `json:"action"`

	OrganizationID string `json:"organization_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`

	// Reason is for logs only.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	ActionAnswer Action = "answer"
	ActionReject Action = "reject"
)
