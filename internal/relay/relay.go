package relay

import (
	"log/slog"

	"frame-relay/internal/platform/metrics"
)

// Relay wires the registry, validator, broadcaster, and lifecycle
// notification into one service. A single Relay is created at process start.
type Relay struct {
	cfg       Config
	registry  *Registry
	validator *Validator
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewRelay constructs the relay service. Metrics may be nil to disable
// metric recording (e.g. in tests). Zero Config fields fall back to defaults.
func NewRelay(cfg Config, registry *Registry, log *slog.Logger, m *metrics.Metrics) *Relay {
	cfg = cfg.withDefaults()
	return &Relay{
		cfg:       cfg,
		registry:  registry,
		validator: NewValidator(cfg.MaxFrameBytes),
		log:       log,
		metrics:   m,
	}
}

// Config returns the effective tunables.
func (r *Relay) Config() Config {
	return r.cfg
}

// Registry exposes the stream registry for the discovery collaborator and
// the metrics gauges.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// StartStream performs the producer side of createOrAttach: a fresh Active
// entity bound to conn, or ErrConflict when the key is already held.
func (r *Relay) StartStream(key StreamKey, conn Conn) (*Stream, error) {
	s, err := r.registry.CreateOrAttach(key, conn)
	if err != nil {
		if r.metrics != nil {
			r.metrics.IncProducerConflicts()
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.IncStreamsStarted()
	}
	r.log.Info("stream started", slog.String("key", string(key)))
	return s, nil
}

// Lookup resolves key to its stream entity.
func (r *Relay) Lookup(key StreamKey) (*Stream, bool) {
	return r.registry.Get(key)
}

// EndStream drives the stream through Ending to Ended exactly once: state
// transition, stream_ended notification to every live viewer, then removal
// from the registry. Safe to call from any teardown path; later calls are
// no-ops.
func (r *Relay) EndStream(s *Stream, cause string) {
	s.endOnce.Do(func() {
		s.setState(StateEnding)
		notified := r.notifyEnded(s)
		s.setState(StateEnded)
		if producer := s.takeProducer(); producer != nil {
			_ = producer.Close()
		}
		r.registry.Remove(s.Key)
		if r.metrics != nil {
			r.metrics.IncStreamsEnded(cause)
		}
		r.log.Info("stream ended",
			slog.String("key", string(s.Key)),
			slog.String("cause", cause),
			slog.Int("viewers_notified", notified),
		)
	})
}

// Shutdown ends every active stream. Called once on process shutdown, before
// the HTTP server drains.
func (r *Relay) Shutdown() {
	for _, key := range r.registry.ListActive() {
		if s, ok := r.registry.Get(key); ok {
			r.EndStream(s, EndCauseShutdown)
		}
	}
}
