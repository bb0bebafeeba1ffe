package relay

import (
	"sort"
	"sync"
)

// Registry is the process-wide map from stream key to stream entity. Its
// lock guards only the map itself and is held briefly for insert, remove,
// and snapshot reads; frame delivery never touches it. Per-stream mutation
// happens under each entity's own lock.
type Registry struct {
	mu      sync.RWMutex
	streams map[StreamKey]*Stream
}

// NewRegistry returns an empty registry. One instance is created at process
// start and shared by every connection.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[StreamKey]*Stream)}
}

// CreateOrAttach binds a producer to key. If no entity exists one is created
// in the Active state; if one exists (Active or Ending) the handshake fails
// with ErrConflict and the incumbent entity is untouched.
func (r *Registry) CreateOrAttach(key StreamKey, producer Conn) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streams[key]; exists {
		return nil, ErrConflict
	}
	s := newStream(key, producer)
	r.streams[key] = s
	return s, nil
}

// Remove deletes key from the registry. Called only once the owning entity
// has reached Ended; removal of an absent key is a no-op.
func (r *Registry) Remove(key StreamKey) {
	r.mu.Lock()
	delete(r.streams, key)
	r.mu.Unlock()
}

// Get returns the entity for key, if present.
func (r *Registry) Get(key StreamKey) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// ListActive returns a sorted snapshot of the keys currently present. It is
// a pure in-memory read and never blocks on I/O.
func (r *Registry) ListActive() []StreamKey {
	r.mu.RLock()
	keys := make([]StreamKey, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Snapshot returns discovery records for every present stream, sorted by key.
func (r *Registry) Snapshot() []StreamInfo {
	r.mu.RLock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.RUnlock()

	out := make([]StreamInfo, 0, len(streams))
	for _, s := range streams {
		out = append(out, StreamInfo{
			Key:       string(s.Key),
			Viewers:   s.ViewerCount(),
			Frames:    s.FrameCount(),
			StartedAt: s.CreatedAt(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ActiveCount returns the number of streams currently present. Used for the
// active-streams gauge.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// ViewerCount returns the total number of attached viewers across all
// streams. Used for the connected-viewers gauge.
func (r *Registry) ViewerCount() int {
	r.mu.RLock()
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.RUnlock()

	n := 0
	for _, s := range streams {
		n += s.ViewerCount()
	}
	return n
}
