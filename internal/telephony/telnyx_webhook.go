package telephony

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Telnyx event_type values the handler reacts to.
const (
	TelnyxCallInitiated    = "call.initiated"
	TelnyxCallAnswered     = "call.answered"
	TelnyxCallHangup       = "call.hangup"
	TelnyxStreamingStarted = "streaming.started"
)

// Telnyx direction values.
const (
	TelnyxDirectionIncoming = "incoming"
	TelnyxDirectionOutgoing = "outgoing"
)

// TelnyxEvent is one parsed Call Control webhook. The set is closed:
// CallInitiated, CallAnswered, CallHangup, StreamingStarted and
// UnknownTelnyxEvent.
type TelnyxEvent interface {
	Call() TelnyxCall
	telnyxEvent()
}

// TelnyxCall is what every Call Control event says about its call.
type TelnyxCall struct {
	CallControlID string
	ClientState   string
	From          string
	To            string
}

type CallInitiated struct {
	TelnyxCall
	Direction string
}

type CallAnswered struct{ TelnyxCall }

type CallHangup struct {
	TelnyxCall
	Cause string
}

type StreamingStarted struct{ TelnyxCall }

type UnknownTelnyxEvent struct {
	TelnyxCall
	Type string
}

func (e TelnyxCall) Call() TelnyxCall { return e }

func (CallInitiated) telnyxEvent()      {}
func (CallAnswered) telnyxEvent()       {}
func (CallHangup) telnyxEvent()         {}
func (StreamingStarted) telnyxEvent()   {}
func (UnknownTelnyxEvent) telnyxEvent() {}

// TelnyxWebhook is a parsed delivery: the envelope id (for replay dedupe)
// and the event.
type TelnyxWebhook struct {
	ID    string
	Type  string
	Event TelnyxEvent
}

type telnyxEnvelope struct {
	Data *struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Payload   struct {
			CallControlID string `json:"call_control_id"`
			ClientState   string `json:"client_state"`
			Direction     string `json:"direction"`
			CallDirection string `json:"call_direction"`
			From          string `json:"from"`
			To            string `json:"to"`
			HangupCause   string `json:"hangup_cause"`
		} `json:"payload"`
	} `json:"data"`
}

// ParseTelnyxWebhook decodes a Call Control delivery. Malformed JSON and a
// missing call_control_id are errors; an unrecognised event_type is not.
func ParseTelnyxWebhook(raw []byte) (TelnyxWebhook, error) {
	var env telnyxEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return TelnyxWebhook{}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	if env.Data == nil {
		return TelnyxWebhook{}, fmt.Errorf("%w: missing data", ErrMalformedWebhook)
	}
	p := env.Data.Payload
	if strings.TrimSpace(p.CallControlID) == "" {
		return TelnyxWebhook{}, ErrMissingCallControlID
	}

	call := TelnyxCall{
		CallControlID: p.CallControlID,
		ClientState:   p.ClientState,
		From:          p.From,
		To:            p.To,
	}
	wh := TelnyxWebhook{ID: env.Data.ID, Type: env.Data.EventType}

	switch env.Data.EventType {
	case TelnyxCallInitiated:
		dir := p.Direction
		if dir == "" {
			dir = p.CallDirection
		}
		wh.Event = CallInitiated{TelnyxCall: call, Direction: dir}
	case TelnyxCallAnswered:
		wh.Event = CallAnswered{TelnyxCall: call}
	case TelnyxCallHangup:
		wh.Event = CallHangup{TelnyxCall: call, Cause: p.HangupCause}
	case TelnyxStreamingStarted:
		wh.Event = StreamingStarted{TelnyxCall: call}
	default:
		wh.Event = UnknownTelnyxEvent{TelnyxCall: call, Type: env.Data.EventType}
	}
	return wh, nil
}
