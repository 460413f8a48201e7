// Package websockets provides the concrete WebSocket session handle and the
// relay initiator used by the connection registry.
//
// Full data flow: Client <------> wsgate server session <------> relay session <------> Remote Peer
package websockets

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/meshbridge/wsgate/registry"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 30 * time.Second

	// Send pings to peer with this period.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var _ registry.Session = &Session{}

// Session is a live, bidirectional WebSocket connection handle. One Session
// wraps one gorilla connection, either accepted from a client (server session)
// or dialed toward a remote peer (client relay session).
//
// Sessions are shared by reference between every registry index that stores
// them and are identified by a process-unique id minted at construction.
type Session struct {
	logger polylog.Logger

	id   string
	conn *websocket.Conn

	// gorilla connections support at most one concurrent writer.
	writeMu sync.Mutex
}

// NewSession wraps conn in a Session with a freshly minted id.
func NewSession(logger polylog.Logger, conn *websocket.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		logger: logger.With("session_id", id),
		id:     id,
		conn:   conn,
	}
}

// ID returns the session's process-unique identifier.
func (s *Session) ID() string {
	return s.id
}

// WriteMessage writes a single message to the connection, serializing writers
// and bounding the write by writeWait.
func (s *Session) WriteMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// ReadMessage reads the next message from the connection. Only one goroutine,
// the session's read loop, may call ReadMessage.
func (s *Session) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

// Close closes the underlying connection without sending a close message.
func (s *Session) Close() error {
	return s.conn.Close()
}

// CloseWithMessage sends a close control frame with the given close code and
// reason text before closing the underlying connection.
func (s *Session) CloseWithMessage(closeCode int, text string) error {
	s.writeMu.Lock()
	message := websocket.FormatCloseMessage(closeCode, text)
	deadline := time.Now().Add(writeWait)
	if err := s.conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write close message")
	}
	s.writeMu.Unlock()

	return s.conn.Close()
}

// Keepalive sends ping messages to the connection with pingPeriod and extends
// the read deadline on each pong, so a dead peer surfaces as a read error in
// the session's read loop. It blocks until ctx is cancelled or a ping fails.
// See: https://pkg.go.dev/github.com/gorilla/websocket#hdr-Control_Messages
func (s *Session) Keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Error().Err(err).Msg("failed to set initial read deadline")
	}

	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.logger.Error().Err(err).Msg("failed to set pong handler read deadline")
		}
		return nil
	})

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug().Err(err).Msg("failed to send ping to connection")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
