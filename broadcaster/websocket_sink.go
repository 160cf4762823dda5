package broadcaster

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single websocket write when none is configured.
const DefaultWriteTimeout = 5 * time.Second

// ErrSinkClosed is returned when delivering to a closed sink.
var ErrSinkClosed = errors.New("sink closed")

var _ Sink = (*WebSocketSink)(nil)

// WebSocketSink delivers events as JSON text frames on a websocket
// connection. Writes are serialized, since gorilla/websocket allows only one
// concurrent writer per connection.
type WebSocketSink struct {
	id           uuid.UUID
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewWebSocketSink wraps conn in a sink with a fresh random identity.
//
// Parameters:
//   - conn: An upgraded websocket connection
//   - writeTimeout: Deadline applied to every write; zero means DefaultWriteTimeout
//
// Returns:
//   - A new *WebSocketSink
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	return &WebSocketSink{
		id:           uuid.New(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// ID returns the identity of the sink, used to correlate logs.
func (s *WebSocketSink) ID() uuid.UUID {
	return s.id
}

// Deliver writes event to the connection.
func (s *WebSocketSink) Deliver(event Event) error {
	return s.Send(event)
}

// Send writes v as a JSON text frame, bounded by the write timeout.
//
// Parameters:
//   - v: Any JSON-serializable message
//
// Returns:
//   - ErrSinkClosed after Close, or the write error
func (s *WebSocketSink) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}

	return s.conn.WriteJSON(v)
}

// Close closes the underlying connection. It is safe to call more than once.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.conn.Close()
}
