package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// AddViewer attaches conn to s as a new viewer session. The join snapshot
// (currently active stream keys) is sent before the session joins the viewer
// set, so it always precedes the first broadcast frame; joining viewers never
// receive frames sent before they joined.
func (r *Relay) AddViewer(s *Stream, conn Conn) (*Viewer, error) {
	v := newViewer(conn)

	snapshot := outboundMessage{
		Type:          MessageTypeViewerConnected,
		ActiveStreams: keyStrings(r.registry.ListActive()),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	if err := v.send(data, r.cfg.SendTimeout); err != nil {
		return nil, err
	}
	if err := s.AddViewer(v); err != nil {
		return nil, err
	}

	r.log.Info("viewer joined",
		slog.String("key", string(s.Key)),
		slog.String("viewer", v.ID),
		slog.Int("viewers", s.ViewerCount()),
	)
	return v, nil
}

// RemoveViewer detaches v from s and closes its connection. Idempotent with
// broadcast cleanup and stream teardown.
func (r *Relay) RemoveViewer(s *Stream, v *Viewer) {
	s.RemoveViewer(v)
	v.Close()
	r.log.Info("viewer left",
		slog.String("key", string(s.Key)),
		slog.String("viewer", v.ID),
		slog.Int("viewers", s.ViewerCount()),
	)
}

// Broadcast fans one accepted frame out to every current viewer of s. Each
// send runs concurrently and is bounded by SendTimeout, so a slow viewer
// cannot delay delivery to the others. Sessions whose send errors or times
// out are removed after the full pass completes, never mid-iteration.
//
// Passes for one stream never overlap: the producer's read loop calls
// Broadcast synchronously, which is what preserves per-viewer frame order.
func (r *Relay) Broadcast(s *Stream, frame string) {
	defer s.countBroadcast()

	viewers := s.Viewers()
	if len(viewers) == 0 {
		return
	}

	msg := outboundMessage{Type: MessageTypeFrame, Key: string(s.Key), Frame: frame}
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal frame message", slog.String("error", err.Error()))
		return
	}

	dead := r.fanOut(viewers, data)

	for _, v := range dead {
		s.RemoveViewer(v)
		v.Close()
		if r.metrics != nil {
			r.metrics.IncViewerSendFailures()
		}
		r.log.Warn("viewer dropped: send failed or timed out",
			slog.String("key", string(s.Key)),
			slog.String("viewer", v.ID),
			slog.Time("joined_at", v.JoinedAt()),
			slog.Time("last_send_ok", v.LastSendOK()),
			slog.Int("consecutive_failures", v.ConsecutiveFailures()),
		)
	}
	if r.metrics != nil {
		r.metrics.AddFramesBroadcast(len(viewers) - len(dead))
	}
}

// notifyEnded sends stream_ended to every live viewer of s, best-effort and
// time-boxed like ordinary frames, then closes all viewer connections and
// empties the set. A failed notification is logged, never retried, and does
// not block removal of the stream. Returns the number of viewers notified.
func (r *Relay) notifyEnded(s *Stream) int {
	viewers := s.ClearViewers()
	if len(viewers) == 0 {
		return 0
	}

	msg := outboundMessage{Type: MessageTypeStreamEnded, Key: string(s.Key)}
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal stream_ended message", slog.String("error", err.Error()))
		data = nil
	}

	var failed []*Viewer
	if data != nil {
		failed = r.fanOut(viewers, data)
	}
	for _, v := range failed {
		r.log.Warn("stream_ended not delivered",
			slog.String("key", string(s.Key)),
			slog.String("viewer", v.ID),
			slog.Time("last_send_ok", v.LastSendOK()),
			slog.Int("consecutive_failures", v.ConsecutiveFailures()),
		)
	}
	for _, v := range viewers {
		v.Close()
	}
	return len(viewers) - len(failed)
}

// fanOut issues one concurrent, SendTimeout-bounded send per viewer and
// waits for the pass to finish. It returns the sessions whose send failed.
func (r *Relay) fanOut(viewers []*Viewer, data []byte) []*Viewer {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		dead []*Viewer
	)
	for _, v := range viewers {
		wg.Add(1)
		go func(v *Viewer) {
			defer wg.Done()
			if err := v.send(data, r.cfg.SendTimeout); err != nil {
				mu.Lock()
				dead = append(dead, v)
				mu.Unlock()
			}
		}(v)
	}
	wg.Wait()
	return dead
}

// keyStrings converts registry keys for the wire.
func keyStrings(keys []StreamKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
