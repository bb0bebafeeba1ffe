package relay

import (
	"sync"
	"time"
)

// Stream is the in-memory record of one logical stream: its key, lifecycle
// state, producer handle, viewer set, and frame timestamps.
//
// All mutable fields are guarded by the stream's own mutex; contention never
// crosses stream boundaries. Teardown runs exactly once via endOnce
// regardless of which condition triggers it.
type Stream struct {
	Key StreamKey

	mu            sync.Mutex
	state         State
	producer      Conn
	viewers       map[*Viewer]struct{}
	createdAt     time.Time
	lastFrameAt   time.Time
	frames        int
	invalidFrames int

	endOnce sync.Once
}

// newStream returns an Active stream bound to the given producer connection.
func newStream(key StreamKey, producer Conn) *Stream {
	now := time.Now().UTC()
	return &Stream{
		Key:         key,
		state:       StateActive,
		producer:    producer,
		viewers:     make(map[*Viewer]struct{}),
		createdAt:   now,
		lastFrameAt: now,
	}
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState transitions the lifecycle state.
func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// takeProducer clears and returns the producer handle. The handle is absent
// once the stream has ended.
func (s *Stream) takeProducer() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.producer
	s.producer = nil
	return p
}

// CreatedAt returns the creation timestamp.
func (s *Stream) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// MarkFrame records an accepted frame: the staleness clock restarts and the
// consecutive invalid-frame count resets.
func (s *Stream) MarkFrame() {
	s.mu.Lock()
	s.lastFrameAt = time.Now().UTC()
	s.invalidFrames = 0
	s.mu.Unlock()
}

// countBroadcast advances the broadcast sequence number once a fan-out pass
// has fully completed.
func (s *Stream) countBroadcast() {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

// FrameCount returns the number of completed broadcast passes. The counter
// defines a viewer's join point: a frame counts only after its pass has
// finished, so a viewer attached at count k receives frames k+1 onward and
// never a replay of 1..k.
func (s *Stream) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// RecordInvalidFrame increments and returns the consecutive invalid-frame
// count.
func (s *Stream) RecordInvalidFrame() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidFrames++
	return s.invalidFrames
}

// SilentFor reports whether no valid frame has arrived within d.
func (s *Stream) SilentFor(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastFrameAt) > d
}

// AddViewer inserts v into the viewer set. It returns ErrStreamEnding once
// teardown has begun so late joiners are not stranded on a dying stream.
func (s *Stream) AddViewer(v *Viewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrStreamEnding
	}
	s.viewers[v] = struct{}{}
	return nil
}

// RemoveViewer deletes v from the viewer set. Removing an absent viewer is a
// no-op, so disconnect paths and broadcast cleanup can race safely.
func (s *Stream) RemoveViewer(v *Viewer) {
	s.mu.Lock()
	delete(s.viewers, v)
	s.mu.Unlock()
}

// Viewers returns an immutable snapshot of the current viewer set. Broadcast
// passes iterate the snapshot so joins and leaves during the pass cannot
// corrupt iteration.
func (s *Stream) Viewers() []*Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Viewer, 0, len(s.viewers))
	for v := range s.viewers {
		out = append(out, v)
	}
	return out
}

// ClearViewers empties the viewer set and returns what it held.
func (s *Stream) ClearViewers() []*Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Viewer, 0, len(s.viewers))
	for v := range s.viewers {
		out = append(out, v)
	}
	s.viewers = make(map[*Viewer]struct{})
	return out
}

// ViewerCount returns the current number of attached viewers.
func (s *Stream) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}
