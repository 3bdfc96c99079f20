package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kirillsirotkin/quizlobby/internal/logging"
	"github.com/kirillsirotkin/quizlobby/internal/messenger"
	"github.com/kirillsirotkin/quizlobby/internal/metrics"
	"github.com/kirillsirotkin/quizlobby/internal/registry"
)

// wsConn is the subset of *websocket.Conn the Connection Session needs,
// abstracted for testing (adapted from the teacher's wsConnection
// interface in internal/v1/session/client.go).
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

const writeWait = 10 * time.Second

// ConnectionSession is one accepted socket (spec.md §4.G). It holds the
// connection-id behind a mutex so reconnectRoom can rebind it without
// other readers observing a half-updated value.
type ConnectionSession struct {
	conn       wsConn
	send       chan []byte
	reg        *registry.Registry
	dispatcher *Dispatcher
	timeout    *TimeoutRunner

	mu     sync.RWMutex
	connID string
}

// ConnID returns the session's current connection-id (spec.md §9).
func (s *ConnectionSession) ConnID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connID
}

// Rebind replaces the session's connection-id, used by reconnectRoom to
// rebind socket identity onto user identity (spec.md §9).
func (s *ConnectionSession) Rebind(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connID = id
}

// NewConnectionSession allocates a fresh connection-id, registers its
// outbound channel, and returns the session ready to run.
func NewConnectionSession(conn wsConn, reg *registry.Registry, dispatcher *Dispatcher, timeout *TimeoutRunner) *ConnectionSession {
	connID := uuid.NewString()
	send := make(chan []byte, 256)
	reg.Connections.Insert(connID, send)
	metrics.IncConnection()

	return &ConnectionSession{
		conn: conn, send: send, reg: reg, dispatcher: dispatcher, timeout: timeout,
		connID: connID,
	}
}

// Run blocks until the socket closes, then tears down state and hands
// off to the Timeout Runner (spec.md §4.G steps 4-7).
func (s *ConnectionSession) Run(ctx context.Context) {
	go s.writePump()
	s.readPump(ctx)
}

func (s *ConnectionSession) readPump(ctx context.Context) {
	defer s.teardown(ctx)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.dispatcher.Dispatch(ctx, s, data)
	}
}

func (s *ConnectionSession) writePump() {
	defer s.conn.Close()
	for message := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// teardown resolves the session's user/room, removes the outbound
// channel, performs host failover if applicable, and schedules a user
// timeout (spec.md §4.G step 7).
func (s *ConnectionSession) teardown(ctx context.Context) {
	connID := s.ConnID()
	s.conn.Close()
	metrics.DecConnection()

	user, hasUser := s.reg.Users.GetByID(connID)
	s.reg.Connections.RemoveByID(connID)
	close(s.send)

	if !hasUser {
		return
	}

	s.timeout.FailoverHost(user.RoomID, user.ID)
	s.timeout.ScheduleUser(ctx, user.ID, user.RoomID)
	logging.Info(ctx, "connection closed, user-timeout scheduled", zap.String("user_id", user.ID), zap.String("room_id", user.RoomID))
}

// ServeWs upgrades an HTTP request to a WebSocket and runs a
// ConnectionSession for its lifetime (spec.md §4.G step 1; adapted from
// the teacher's Hub.ServeWs in internal/v1/session/hub.go). No token is
// required at accept time — authentication happens per-command inside
// the Command Dispatcher, not at the transport layer, per spec.md §4.D.
func ServeWs(reg *registry.Registry, dispatcher *Dispatcher, timeout *TimeoutRunner) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
			return
		}

		session := NewConnectionSession(conn, reg, dispatcher, timeout)
		ctx := logging.WithConnectionID(context.Background(), session.ConnID())
		session.Run(ctx)
	}
}
