package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TwilioProtocol speaks Twilio Media Streams: camelCase fields, streamSid.
type TwilioProtocol struct{}

type twilioFrame struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
	Start     *struct {
		StreamSid string `json:"streamSid"`
		CallSid   string `json:"callSid"`
	} `json:"start,omitempty"`
	Media *twilioMedia `json:"media,omitempty"`
}

type twilioMedia struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

func (TwilioProtocol) Name() string { return ProviderTwilio }

func (TwilioProtocol) Decode(raw []byte) (Event, error) {
	var f twilioFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Event {
	case eventConnected:
		return Connected{}, nil
	case eventStart:
		ev := Start{StreamID: f.StreamSid}
		if f.Start != nil {
			if ev.StreamID == "" {
				ev.StreamID = f.Start.StreamSid
			}
			ev.CallID = f.Start.CallSid
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

func (TwilioProtocol) EncodeMedia(streamID string, audio []byte) ([]byte, error) {
	return json.Marshal(twilioFrame{
		Event:     eventMedia,
		StreamSid: streamID,
		Media:     &twilioMedia{Payload: base64.StdEncoding.EncodeToString(audio)},
	})
}
