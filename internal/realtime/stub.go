package realtime

import (
	"context"
	"sync"
)

// StubClient records audio instead of sending it. Tests drive backend output
// through the Emit methods.
type StubClient struct {
	h Handlers

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	mu          sync.Mutex
	connected   bool
	disconnects int
	chunks      [][]byte
}

func NewStubClient(h Handlers) *StubClient {
	return &StubClient{h: h}
}

func (s *StubClient) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.connected {
		return ErrAlreadyConnected
	}
	s.connected = true
	return nil
}

func (s *StubClient) SendAudio(audio []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.chunks = append(s.chunks, append([]byte(nil), audio...))
}

func (s *StubClient) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.disconnects++
	return nil
}

func (s *StubClient) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *StubClient) SessionID() string { return "stub" }

// Chunks returns a copy of the audio received so far, in order.
func (s *StubClient) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.chunks...)
}

func (s *StubClient) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

func (s *StubClient) EmitAudio(audio []byte) {
	if s.h.OnAudio != nil {
		s.h.OnAudio(audio)
	}
}

func (s *StubClient) EmitText(delta string) {
	if s.h.OnText != nil {
		s.h.OnText(delta)
	}
}

func (s *StubClient) EmitError(err error) {
	if s.h.OnError != nil {
		s.h.OnError(err)
	}
}
