// Package realtime talks to the streaming speech-AI backend on behalf of one
// call: caller audio goes up, synthesized audio and text come back through
// Handlers.
package realtime

import (
	"context"
	"errors"
	"log/slog"

	"callbridge/internal/config"
)

// Handlers receive backend output. They run on the client's read goroutine
// and must not block for long; nil handlers are skipped.
type Handlers struct {
	// OnAudio receives decoded audio in the session's output format.
	OnAudio func(audio []byte)
	// OnText receives assistant text (or audio transcript) deltas.
	OnText func(delta string)
	// OnUserTranscript receives completed transcriptions of caller speech.
	OnUserTranscript func(text string)
	// OnError receives backend-reported errors, after which the session stays
	// open, and ErrConnectionLost when the backend drops the connection.
	OnError func(err error)
}

// Client is one backend session.
type Client interface {
	// Connect opens the session and sends its configuration. It is bounded by
	// the configured connect timeout as well as ctx.
	Connect(ctx context.Context) error
	// SendAudio forwards caller audio. Without an open session it logs and drops.
	SendAudio(audio []byte)
	// Disconnect closes the session. Safe to call more than once, or before Connect.
	Disconnect() error
	Connected() bool
	SessionID() string
}

// Factory builds a client for one call.
type Factory func(h Handlers, log *slog.Logger) Client

var (
	ErrAlreadyConnected = errors.New("realtime: already connected")
	ErrClosed           = errors.New("realtime: client closed")
	// ErrConnectionLost wraps the read error when the backend goes away mid-call.
	ErrConnectionLost = errors.New("realtime: connection lost")
)

// NewFactory selects the implementation named by cfg.Mode.
func NewFactory(cfg config.RealtimeConfig) (Factory, error) {
	switch cfg.Mode {
	case config.RealtimeModeOpenAI:
		return func(h Handlers, log *slog.Logger) Client {
			return NewOpenAIClient(cfg, h, log)
		}, nil
	case config.RealtimeModeStub:
		return func(h Handlers, log *slog.Logger) Client {
			return NewStubClient(h)
		}, nil
	default:
		return nil, errors.New("realtime: unknown mode " + cfg.Mode)
	}
}
