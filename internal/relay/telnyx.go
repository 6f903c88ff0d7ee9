package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TelnyxProtocol speaks Telnyx media streaming: snake_case fields, stream_id.
type TelnyxProtocol struct{}

type telnyxFrame struct {
	Event    string `json:"event"`
	StreamID string `json:"stream_id,omitempty"`
	Start    *struct {
		CallControlID string `json:"call_control_id"`
	} `json:"start,omitempty"`
	Media *telnyxMedia `json:"media,omitempty"`
}

type telnyxMedia struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

func (TelnyxProtocol) Name() string { return ProviderTelnyx }

func (TelnyxProtocol) Decode(raw []byte) (Event, error) {
	var f telnyxFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Event {
	case eventConnected:
		return Connected{}, nil
	case eventStart:
		ev := Start{StreamID: f.StreamID}
		if f.Start != nil {
			ev.CallID = f.Start.CallControlID
		}
		return ev, nil
	case eventMedia:
		if f.Media == nil {
			return nil, fmt.Errorf("%w: media frame without media", ErrMalformedFrame)
		}
		audio, err := decodePayload(f.Media.Payload)
		if err != nil {
			return nil, err
		}
		return Media{Track: f.Media.Track, Audio: audio}, nil
	case eventStop:
		return Stop{}, nil
	default:
		return Unknown{Name: f.Event}, nil
	}
}

func (TelnyxProtocol) EncodeMedia(streamID string, audio []byte) ([]byte, error) {
	return json.Marshal(telnyxFrame{
		Event:    eventMedia,
		StreamID: streamID,
		Media:    &telnyxMedia{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
}
