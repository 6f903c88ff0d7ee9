package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"callbridge/internal/config"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// OpenAIClient is a Client for the OpenAI Realtime API over WebSocket.
type OpenAIClient struct {
	cfg    config.RealtimeConfig
	h      Handlers
	log    *slog.Logger
	dialer *websocket.Dialer

	// writeMu serializes writes; gorilla/websocket allows one writer at a time.
	writeMu sync.Mutex
	conn    *websocket.Conn

	connected atomic.Bool
	closed    atomic.Bool
	sessionID atomic.Value // string
	closeOnce sync.Once
}

func NewOpenAIClient(cfg config.RealtimeConfig, h Handlers, log *slog.Logger) *OpenAIClient {
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIClient{
		cfg: cfg,
		h:   h,
		log: log.With("component", "realtime"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
	}
}

func (c *OpenAIClient) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("realtime: dial failed: %w", err)
	}

	c.writeMu.Lock()
	if c.closed.Load() {
		// Disconnect ran while the dial was in flight.
		c.writeMu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.writeMu.Unlock()

	if err := c.writeJSON(c.sessionUpdate()); err != nil {
		_ = conn.Close()
		return fmt.Errorf("realtime: session.update failed: %w", err)
	}

	c.connected.Store(true)
	go c.readLoop(conn)
	c.log.Info("realtime session opened", "model", c.cfg.Model)
	return nil
}

func (c *OpenAIClient) SendAudio(audio []byte) {
	if !c.connected.Load() {
		c.log.Warn("realtime audio dropped: not connected", "bytes", len(audio))
		return
	}
	if len(audio) == 0 {
		return
	}
	msg := audioAppend{Type: typeInputAudioAppend, Audio: base64.StdEncoding.EncodeToString(audio)}
	if err := c.writeJSON(msg); err != nil {
		c.log.Warn("realtime audio send failed", "err", err)
	}
}

func (c *OpenAIClient) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.connected.Store(false)

		c.writeMu.Lock()
		conn := c.conn
		if conn != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		c.writeMu.Unlock()

		if conn != nil {
			err = conn.Close()
			c.log.Info("realtime session closed", "session_id", c.SessionID())
		}
	})
	return err
}

func (c *OpenAIClient) Connected() bool { return c.connected.Load() }

func (c *OpenAIClient) SessionID() string {
	if v, ok := c.sessionID.Load().(string); ok {
		return v
	}
	return ""
}

func (c *OpenAIClient) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("realtime: bad url: %w", err)
	}
	if c.cfg.Model != "" {
		q := u.Query()
		q.Set("model", c.cfg.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *OpenAIClient) sessionUpdate() sessionUpdate {
	s := sessionConfig{
		Modalities:        []string{"audio", "text"},
		Instructions:      c.cfg.Instructions,
		Voice:             c.cfg.Voice,
		InputAudioFormat:  audioFormatG711ULaw,
		OutputAudioFormat: audioFormatG711ULaw,
		TurnDetection: turnDetection{
			Type:              turnDetectionServerVAD,
			Threshold:         c.cfg.VADThreshold,
			PrefixPaddingMS:   c.cfg.VADPrefixPaddingMS,
			SilenceDurationMS: c.cfg.VADSilenceMS,
		},
	}
	if c.cfg.TranscriptionModel != "" {
		s.InputAudioTranscription = &transcriptionConfig{Model: c.cfg.TranscriptionModel}
	}
	return sessionUpdate{Type: typeSessionUpdate, Session: s}
}

func (c *OpenAIClient) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("realtime: no connection")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *OpenAIClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connected.Store(false)
			if c.closed.Load() {
				return
			}
			c.log.Warn("realtime read ended", "err", err)
			if c.h.OnError != nil {
				c.h.OnError(fmt.Errorf("%w: %w", ErrConnectionLost, err))
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *OpenAIClient) dispatch(data []byte) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.log.Warn("realtime: undecodable server event", "err", err)
		return
	}

	switch ev.Type {
	case typeSessionCreated:
		if ev.Session != nil {
			c.sessionID.Store(ev.Session.ID)
			c.log.Info("realtime session created", "session_id", ev.Session.ID)
		}
	case typeResponseAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			c.log.Warn("realtime: bad audio delta", "err", err)
			return
		}
		if c.h.OnAudio != nil && len(audio) > 0 {
			c.h.OnAudio(audio)
		}
	case typeResponseTextDelta, typeResponseTranscriptDelta:
		if c.h.OnText != nil && ev.Delta != "" {
			c.h.OnText(ev.Delta)
		}
	case typeInputTranscriptDone:
		c.log.Info("caller transcript", "text", ev.Transcript)
		if c.h.OnUserTranscript != nil {
			c.h.OnUserTranscript(ev.Transcript)
		}
	case typeError:
		apiErr := ev.Error
		if apiErr == nil {
			apiErr = &APIError{Type: "unknown"}
		}
		c.log.Error("realtime backend error", "err", apiErr)
		if c.h.OnError != nil {
			c.h.OnError(apiErr)
		}
	default:
		c.log.Debug("realtime event ignored", "type", ev.Type)
	}
}
