package realtime

import "fmt"

// Client events.
const (
	typeSessionUpdate      = "session.update"
	typeInputAudioAppend   = "input_audio_buffer.append"
	audioFormatG711ULaw    = "g711_ulaw"
	turnDetectionServerVAD = "server_vad"
)

// Server events.
const (
	typeSessionCreated          = "session.created"
	typeResponseAudioDelta      = "response.audio.delta"
	typeResponseTextDelta       = "response.text.delta"
	typeResponseTranscriptDelta = "response.audio_transcript.delta"
	typeInputTranscriptDone     = "conversation.item.input_audio_transcription.completed"
	typeError                   = "error"
)

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           turnDetection        `json:"turn_detection"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// serverEvent is the union of the fields the dispatcher reads.
type serverEvent struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Session    *struct {
		ID string `json:"id"`
	} `json:"session"`
	Error *APIError `json:"error"`
}

// APIError is an error event reported by the backend.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: %s: %s", e.Type, e.Message)
}
