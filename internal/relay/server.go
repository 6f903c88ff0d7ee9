package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"callbridge/internal/realtime"
	"callbridge/internal/status"
	"callbridge/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 1 << 20
	queryConvID    = "conversationId"
	queryOrgID     = "organizationId"
	defaultBufSize = 4096
)

type Options struct {
	NewClient     realtime.Factory
	Reporter      status.Reporter
	ReportTimeout time.Duration
	Log           *slog.Logger
}

// Server accepts provider media sockets and runs one Session per socket.
type Server struct {
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*liveConn
	closing  bool
	// flushing counts sessions whose status reports may still be in flight.
	flushing sync.WaitGroup
}

type liveConn struct {
	sess *Session
	conn *websocket.Conn
}

func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.Reporter == nil {
		opts.Reporter = status.Noop{}
	}
	return &Server{
		opts: opts,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  defaultBufSize,
			WriteBufferSize: defaultBufSize,
			// Providers connect from their own media edges, never from a browser.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*liveConn),
	}
}

// Register mounts the media endpoints and the health check.
func (s *Server) Register(r gin.IRoutes) {
	r.GET("/media/"+ProviderTwilio, s.HandleMedia(TwilioProtocol{}))
	r.GET("/media/"+ProviderTelnyx, s.HandleMedia(TelnyxProtocol{}))
	r.GET("/healthz", s.health)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.ActiveSessions()})
}

// ActiveSessions is the number of open provider sockets.
func (s *Server) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) HandleMedia(proto Protocol) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			s.log.Warn("websocket upgrade failed", logger.KeyProvider, proto.Name(), "err", err)
			return
		}
		s.serve(conn, proto, c.Query(queryConvID), c.Query(queryOrgID))
	}
}

func (s *Server) serve(conn *websocket.Conn, proto Protocol, conversationID, organizationID string) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	s.flushing.Add(1)
	s.mu.Unlock()
	defer s.flushing.Done()

	connID := uuid.NewString()
	sess := NewSession(SessionParams{
		ConnectionID:   connID,
		ConversationID: conversationID,
		OrganizationID: organizationID,
		Protocol:       proto,
		NewClient:      s.opts.NewClient,
		Reporter:       s.opts.Reporter,
		ReportTimeout:  s.opts.ReportTimeout,
		Send: func(frame []byte) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteMessage(websocket.TextMessage, frame)
		},
		Log: s.log,
	})
	log := sess.logger()

	s.mu.Lock()
	s.sessions[connID] = &liveConn{sess: sess, conn: conn}
	s.mu.Unlock()
	log.Info("media socket opened")

	ctx, cancel := context.WithCancel(logger.With(context.Background(), log))
	defer func() {
		cancel()
		sess.Close()
		_ = conn.Close()
		s.mu.Lock()
		delete(s.sessions, connID)
		s.mu.Unlock()
		log.Info("media socket closed")
		<-sess.Flushed()
	}()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.keepalive(ctx, conn)

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("media socket read failed", "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		sess.Handle(ctx, raw)
	}
}

func (s *Server) keepalive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// WriteControl may run concurrently with the session writer.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					s.log.Debug("ping failed", "err", err)
				}
				return
			}
		}
	}
}

// Shutdown refuses new sockets, closes every live session and its socket,
// then waits until their final status reports are sent or ctx ends.
// http.Server.Shutdown does not track hijacked connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	live := make([]*liveConn, 0, len(s.sessions))
	for _, lc := range s.sessions {
		live = append(live, lc)
	}
	s.mu.Unlock()

	for _, lc := range live {
		lc.sess.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
		_ = lc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = lc.conn.Close()
	}
	s.log.Info("relay sessions closed", "count", len(live))

	flushed := make(chan struct{})
	go func() {
		s.flushing.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
