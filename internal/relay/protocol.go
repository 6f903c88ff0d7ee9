// Package relay bridges provider media streams to the AI realtime backend,
// one Session per provider WebSocket.
package relay

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// Event is a decoded provider frame. The set is closed: Connected, Start,
// Media, Stop and Unknown.
type Event interface {
	isEvent()
}

// Connected is the provider's socket handshake frame.
type Connected struct{}

// Start opens the stream and names it.
type Start struct {
	StreamID string
	CallID   string
}

// Media carries one chunk of caller audio, already base64-decoded.
type Media struct {
	Track string
	Audio []byte
}

// Stop ends the stream.
type Stop struct{}

// Unknown is any frame the relay does not act on (mark, dtmf, ...).
type Unknown struct {
	Name string
}

func (Connected) isEvent() {}
func (Start) isEvent()     {}
func (Media) isEvent()     {}
func (Stop) isEvent()      {}
func (Unknown) isEvent()   {}

// Protocol is one provider's media-stream dialect.
type Protocol interface {
	Name() string
	Decode(raw []byte) (Event, error)
	// EncodeMedia frames audio for playback on streamID, using the provider's
	// own stream identifier field.
	EncodeMedia(streamID string, audio []byte) ([]byte, error)
}

// Frame event names shared by both providers.
const (
	eventConnected = "connected"
	eventStart     = "start"
	eventMedia     = "media"
	eventStop      = "stop"
)

// trackOutbound is audio the provider is playing to the caller; it is never
// sent back to the AI.
const trackOutbound = "outbound"

var ErrMalformedFrame = errors.New("relay: malformed frame")

func decodePayload(payload string) ([]byte, error) {
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: media payload: %v", ErrMalformedFrame, err)
	}
	return audio, nil
}

// ProtocolFor returns the protocol registered under name.
func ProtocolFor(name string) (Protocol, bool) {
	switch name {
	case ProviderTwilio:
		return TwilioProtocol{}, true
	case ProviderTelnyx:
		return TelnyxProtocol{}, true
	default:
		return nil, false
	}
}

const (
	ProviderTwilio = "twilio"
	ProviderTelnyx = "telnyx"
)
