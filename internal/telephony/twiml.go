package telephony

import (
	"errors"
	"strings"

	"github.com/twilio/twilio-go/twiml"
)

// TwiMLRejectBusy is the reason given to callers nobody answers for.
const TwiMLRejectBusy = "busy"

// StreamTwiML connects the call to a bidirectional media stream.
func StreamTwiML(streamURL string) (string, error) {
	if strings.TrimSpace(streamURL) == "" {
		return "", errors.New("telephony: stream url required for connect")
	}
	return twiml.Voice([]twiml.Element{
		twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				twiml.VoiceStream{Url: streamURL},
			},
		},
	})
}

// RejectTwiML refuses the call without answering it.
func RejectTwiML(reason string) (string, error) {
	return twiml.Voice([]twiml.Element{
		twiml.VoiceReject{Reason: reason},
	})
}
