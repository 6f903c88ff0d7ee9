package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// New returns the JSON logger shared by both processes. service tags every
// record so api and relay output can share a sink.
func New(appEnv, service string) *slog.Logger {
	return NewWithWriter(os.Stdout, appEnv, service)
}

func NewWithWriter(w io.Writer, appEnv, service string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	l := slog.New(h)
	if service != "" {
		l = l.With("service", service)
	}
	return l
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Call attribute keys, shared by webhook handlers and relay sessions so one
// call can be followed across processes.
const (
	KeyConversationID = "conversation_id"
	KeyOrganizationID = "organization_id"
	KeyProvider       = "provider"
	KeyCallID         = "call_id"
)

// WithCall returns l annotated with the call's correlation ids. Empty values
// are omitted.
func WithCall(l *slog.Logger, provider, callID, conversationID, organizationID string) *slog.Logger {
	var attrs []any
	for _, kv := range [][2]string{
		{KeyProvider, provider},
		{KeyCallID, callID},
		{KeyConversationID, conversationID},
		{KeyOrganizationID, organizationID},
	} {
		if kv[1] != "" {
			attrs = append(attrs, kv[0], kv[1])
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
