package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the relay writes through. Tests
// substitute fakes with controllable latency and failure modes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Viewer is one attached viewer connection. The session owns its connection
// handle; the broadcaster only references it transiently during a pass.
type Viewer struct {
	ID string

	conn Conn

	// mu serializes writes: gorilla connections permit one writer at a time,
	// and serialized writes are what preserve per-viewer frame order.
	mu         sync.Mutex
	joinedAt   time.Time
	lastSendOK time.Time
	failures   int
}

// newViewer wraps a connection in a session with a fresh ID.
func newViewer(conn Conn) *Viewer {
	return &Viewer{
		ID:       uuid.NewString(),
		conn:     conn,
		joinedAt: time.Now().UTC(),
	}
}

// send writes one prepared JSON message, bounded by timeout. Any error
// (including a blown deadline) is returned so the caller can mark the
// session dead; the relay never retries a viewer send.
func (v *Viewer) send(data []byte, timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		v.failures++
		return err
	}
	if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		v.failures++
		return err
	}
	v.failures = 0
	v.lastSendOK = time.Now().UTC()
	return nil
}

// JoinedAt returns when the viewer attached.
func (v *Viewer) JoinedAt() time.Time {
	return v.joinedAt
}

// LastSendOK returns when the last send to this viewer succeeded; zero if
// none has.
func (v *Viewer) LastSendOK() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSendOK
}

// ConsecutiveFailures returns the current run of failed sends.
func (v *Viewer) ConsecutiveFailures() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failures
}

// Close closes the underlying connection.
func (v *Viewer) Close() {
	_ = v.conn.Close()
}
