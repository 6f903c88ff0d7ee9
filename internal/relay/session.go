package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"callbridge/internal/realtime"
	"callbridge/internal/status"
	"callbridge/pkg/logger"
)

type sessionState int32

const (
	stateIdle sessionState = iota
	stateStreaming
	stateStopped
)

func (s sessionState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateStreaming:
		return "streaming"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const egressQueueSize = 256

// SendFunc writes one text frame to the provider socket. Only the session's
// writer goroutine calls it.
type SendFunc func(frame []byte) error

// SessionParams wires one session. ConversationID and OrganizationID may be
// empty; status reports are then skipped.
type SessionParams struct {
	ConnectionID   string
	ConversationID string
	OrganizationID string

	Protocol      Protocol
	NewClient     realtime.Factory
	Reporter      status.Reporter
	ReportTimeout time.Duration
	Send          SendFunc
	Log           *slog.Logger
}

// Session bridges one provider stream to one AI client.
//
// Handle is called from the connection's read goroutine only. AI output
// arrives on the client's goroutine and is queued to the session's writer.
type Session struct {
	p   SessionParams
	log atomic.Pointer[slog.Logger]

	state     atomic.Int32
	connected atomic.Bool
	// aiDown is set once the AI leg failed to connect or dropped.
	aiDown atomic.Bool

	mu       sync.Mutex
	streamID string
	callID   string
	client   realtime.Client
	said     strings.Builder

	// reports is guarded by mu for submission so "active" and "completed"
	// are queued in the order the state changed.
	reports *status.Queue

	egress    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup
}

func NewSession(p SessionParams) *Session {
	if p.Reporter == nil {
		p.Reporter = status.Noop{}
	}
	if p.ReportTimeout <= 0 {
		p.ReportTimeout = 5 * time.Second
	}
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log = logger.WithCall(log, p.Protocol.Name(), "", p.ConversationID, p.OrganizationID)
	if p.ConnectionID != "" {
		log = log.With("connection_id", p.ConnectionID)
	}

	s := &Session{
		p:      p,
		egress: make(chan []byte, egressQueueSize),
		done:   make(chan struct{}),
	}
	s.log.Store(log)
	s.reports = status.NewQueue(logger.With(context.Background(), log), p.ReportTimeout)
	s.writerWG.Add(1)
	go s.writeLoop()
	return s
}

func (s *Session) current() sessionState { return sessionState(s.state.Load()) }

func (s *Session) logger() *slog.Logger { return s.log.Load() }

// Handle decodes and applies one provider frame. Malformed frames are logged
// and skipped.
func (s *Session) Handle(ctx context.Context, raw []byte) {
	ev, err := s.p.Protocol.Decode(raw)
	if err != nil {
		s.logger().Warn("dropping provider frame", "err", err)
		return
	}

	switch ev := ev.(type) {
	case Connected:
		s.connected.Store(true)
		s.logger().Debug("provider stream connected")
	case Start:
		s.start(ctx, ev)
	case Media:
		s.forward(ev)
	case Stop:
		s.logger().Info("provider stream stopped")
		s.Close()
	case Unknown:
		s.logger().Debug("ignoring provider frame", "event", ev.Name)
	}
}

func (s *Session) start(ctx context.Context, ev Start) {
	if !s.state.CompareAndSwap(int32(stateIdle), int32(stateStreaming)) {
		s.logger().Warn("duplicate start ignored", "state", s.current().String())
		return
	}
	// A start frame proves the socket is live even if no connected frame came first.
	s.connected.Store(true)

	s.mu.Lock()
	s.streamID = ev.StreamID
	s.callID = ev.CallID
	log := s.logger().With(logger.KeyCallID, ev.CallID, "stream_id", ev.StreamID)
	s.log.Store(log)
	client := s.p.NewClient(realtime.Handlers{
		OnAudio:          s.enqueue,
		OnText:           s.appendText,
		OnUserTranscript: func(text string) { log.Info("caller said", "text", text) },
		OnError:          s.aiError,
	}, log)
	s.client = client
	s.mu.Unlock()

	log.Info("provider stream started")

	if err := client.Connect(logger.With(ctx, log)); err != nil {
		// The call stays up without an AI leg.
		s.aiError(fmt.Errorf("connect: %w", err))
	} else {
		log.Info("realtime session open", "session_id", client.SessionID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current() != stateStreaming {
		return
	}
	s.reports.Submit(func(ctx context.Context) {
		s.p.Reporter.UpdateStatus(ctx, s.p.ConversationID, s.p.OrganizationID, status.StatusActive)
	})
}

// aiError is the single sink for AI-side failures. Backend-reported errors
// leave the leg usable; a failed connect or a dropped connection ends it.
func (s *Session) aiError(err error) {
	if s.current() == stateStopped {
		return
	}
	var apiErr *realtime.APIError
	if errors.As(err, &apiErr) {
		s.logger().Warn("realtime error", "err", err)
		return
	}
	if s.aiDown.CompareAndSwap(false, true) {
		s.logger().Error("realtime leg lost, caller audio no longer forwarded", "err", err)
	}
}

// AIAvailable reports whether caller audio still has somewhere to go.
func (s *Session) AIAvailable() bool { return !s.aiDown.Load() }

func (s *Session) forward(m Media) {
	if s.current() != stateStreaming {
		return
	}
	if m.Track == trackOutbound || s.aiDown.Load() {
		return
	}
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		client.SendAudio(m.Audio)
	}
}

func (s *Session) enqueue(audio []byte) {
	if s.current() == stateStopped || !s.connected.Load() {
		return
	}
	s.mu.Lock()
	streamID := s.streamID
	s.mu.Unlock()

	frame, err := s.p.Protocol.EncodeMedia(streamID, audio)
	if err != nil {
		s.logger().Warn("encode egress frame", "err", err)
		return
	}
	select {
	case s.egress <- frame:
	case <-s.done:
	default:
		s.logger().Warn("egress queue full, dropping audio", "bytes", len(audio))
	}
}

func (s *Session) writeLoop() {
	defer s.writerWG.Done()
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.egress:
			if !s.connected.Load() {
				continue
			}
			if err := s.p.Send(frame); err != nil {
				s.logger().Warn("egress write failed", "err", err)
				s.connected.Store(false)
			}
		}
	}
}

func (s *Session) appendText(delta string) {
	s.mu.Lock()
	s.said.WriteString(delta)
	s.mu.Unlock()
}

// Close stops the session: the AI client is disconnected, "completed" is
// queued behind any earlier report and the assistant transcript flushed. Later calls are no-ops, as
// is every frame handled afterwards.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		prev := sessionState(s.state.Swap(int32(stateStopped)))
		s.connected.Store(false)
		close(s.done)
		s.writerWG.Wait()

		s.mu.Lock()
		client := s.client
		said := strings.TrimSpace(s.said.String())
		s.said.Reset()
		if prev == stateStreaming {
			s.reports.Submit(func(ctx context.Context) {
				s.p.Reporter.UpdateStatus(ctx, s.p.ConversationID, s.p.OrganizationID, status.StatusCompleted)
				s.p.Reporter.AddTranscript(ctx, s.p.ConversationID, s.p.OrganizationID, status.RoleAssistant, said)
			})
		}
		s.reports.Close()
		s.mu.Unlock()

		if client != nil {
			if err := client.Disconnect(); err != nil && !errors.Is(err, realtime.ErrClosed) {
				s.logger().Warn("realtime disconnect", "err", err)
			}
		}
		if prev != stateStreaming {
			s.logger().Debug("session closed before start")
			return
		}
		s.logger().Info("session closed")
	})
}

// Flushed is closed after Close once every queued status report has been sent
// or has timed out.
func (s *Session) Flushed() <-chan struct{} { return s.reports.Done() }

// StreamID is empty until the provider's start frame.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}
