package relay

import "time"

// StreamKey uniquely identifies a logical stream: one producer, many viewers.
type StreamKey string

// State is the lifecycle state of a stream entity.
type State int

const (
	// StateIdle is the nominal pre-handshake state. Entities created through
	// the registry move to StateActive immediately, so Idle is only ever
	// observable on a zero-value Stream.
	StateIdle State = iota
	// StateActive means a producer holds the stream and frames may flow.
	StateActive
	// StateEnding means teardown has begun: no new frames are broadcast and
	// viewers are about to be notified.
	StateEnding
	// StateEnded is terminal; the entity has been removed from the registry.
	StateEnded
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Message types exchanged over producer and viewer connections.
const (
	MessageTypeHandshake       = "handshake"
	MessageTypeFrame           = "frame"
	MessageTypeConnected       = "connected"
	MessageTypeError           = "error"
	MessageTypeViewerConnected = "viewer_connected"
	MessageTypeStreamEnded     = "stream_ended"
)

// WebSocket close codes used by the relay. 4xxx codes are application-defined.
const (
	// CloseConflict rejects a duplicate producer handshake for an active key.
	CloseConflict = 4090
	// CloseProtocolError covers bad handshakes and the invalid-frame threshold.
	CloseProtocolError = 4002
	// CloseStale closes a producer that stopped delivering valid frames.
	CloseStale = 4008
)

// Causes recorded when a stream ends; used in logs and metric labels.
const (
	EndCauseDisconnect = "disconnect"
	EndCauseStale      = "stale"
	EndCauseProtocol   = "protocol_error"
	EndCauseShutdown   = "shutdown"
)

// inboundMessage is the envelope for everything a producer sends.
// Frame payloads are encoded-image strings (data-URI blobs).
type inboundMessage struct {
	Type  string `json:"type"`
	Mode  string `json:"mode,omitempty"`
	Frame string `json:"frame,omitempty"`
}

// outboundMessage is the envelope for everything the relay sends, to
// producers and viewers alike. Unused fields are omitted on the wire.
type outboundMessage struct {
	Type          string   `json:"type"`
	Key           string   `json:"key,omitempty"`
	Frame         string   `json:"frame,omitempty"`
	Mode          string   `json:"mode,omitempty"`
	Message       string   `json:"message,omitempty"`
	Warning       string   `json:"warning,omitempty"`
	ActiveStreams []string `json:"active_streams,omitempty"`
}

// StreamInfo is the discovery-facing snapshot of one active stream.
type StreamInfo struct {
	Key       string    `json:"key"`
	Viewers   int       `json:"viewers"`
	Frames    int       `json:"frames"`
	StartedAt time.Time `json:"started_at"`
}

// Config holds the relay tunables. Values come from the environment; see
// cmd/server.
type Config struct {
	// MaxFrameBytes is the largest accepted frame payload.
	MaxFrameBytes int
	// RecvTimeout bounds each wait for the next producer message. Expiry is
	// a staleness probe, not an error.
	RecvTimeout time.Duration
	// StaleTimeout declares a producer frozen when no valid frame arrived
	// within it.
	StaleTimeout time.Duration
	// SendTimeout bounds every per-viewer send.
	SendTimeout time.Duration
	// ErrorThreshold is the number of consecutive invalid frames that closes
	// the producer connection.
	ErrorThreshold int
}

// Defaults for Config.
const (
	DefaultMaxFrameBytes  = 4 << 20
	DefaultRecvTimeout    = 10 * time.Second
	DefaultStaleTimeout   = 15 * time.Second
	DefaultSendTimeout    = time.Second
	DefaultErrorThreshold = 10
)

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		MaxFrameBytes:  DefaultMaxFrameBytes,
		RecvTimeout:    DefaultRecvTimeout,
		StaleTimeout:   DefaultStaleTimeout,
		SendTimeout:    DefaultSendTimeout,
		ErrorThreshold: DefaultErrorThreshold,
	}
}

// withDefaults fills zero fields so a partially specified Config (e.g. in
// tests) behaves sensibly.
func (c Config) withDefaults() Config {
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if c.RecvTimeout <= 0 {
		c.RecvTimeout = DefaultRecvTimeout
	}
	if c.StaleTimeout <= 0 {
		c.StaleTimeout = DefaultStaleTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = DefaultErrorThreshold
	}
	return c
}
