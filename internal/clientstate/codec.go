// Package clientstate encodes the correlation payload that rides along with a
// provider call (Telnyx client_state) so a later webhook can find its
// conversation again.
package clientstate

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// MaxTokenLen is the provider's documented client_state limit. Encode does not
// enforce it; callers carrying more than ids should check.
const MaxTokenLen = 4096

const (
	KeyConversationID = "conversationId"
	KeyOrganizationID = "organizationId"
)

// CallIDs is the typed form of the payload every call carries.
type CallIDs struct {
	ConversationID string
	OrganizationID string
}

// Complete reports whether both ids are present.
func (c CallIDs) Complete() bool {
	return c.ConversationID != "" && c.OrganizationID != ""
}

// Encode serializes payload as base64(JSON). Keys are emitted in sorted order,
// so equal payloads produce equal tokens.
func Encode(payload map[string]string) string {
	if payload == nil {
		payload = map[string]string{}
	}
	// map[string]string always marshals.
	raw, _ := json.Marshal(payload)
	return base64.StdEncoding.EncodeToString(raw)
}

// Decode is the inverse of Encode. Anything that is not a token produced by
// Encode yields ok=false.
func Decode(token string) (map[string]string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, false
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func EncodeIDs(ids CallIDs) string {
	return Encode(map[string]string{
		KeyConversationID: ids.ConversationID,
		KeyOrganizationID: ids.OrganizationID,
	})
}

// DecodeIDs returns ok only when the token decodes and carries both ids.
func DecodeIDs(token string) (CallIDs, bool) {
	m, ok := Decode(token)
	if !ok {
		return CallIDs{}, false
	}
	ids := CallIDs{ConversationID: m[KeyConversationID], OrganizationID: m[KeyOrganizationID]}
	return ids, ids.Complete()
}
