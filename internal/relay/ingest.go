package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// inboundBuffer bounds the channel between the read pump and the session
// loop. One persistent goroutine consumes frames for the life of the
// connection; no per-frame scheduling context is created.
const inboundBuffer = 16

// closeGrace bounds the writes performed while closing a producer
// connection (final error message and close frame).
const closeGrace = 2 * time.Second

// ingest runs one producer connection after a successful handshake. It
// validates frames, drives staleness detection, and triggers the
// exactly-once stream teardown on any fatal condition.
type ingest struct {
	relay  *Relay
	stream *Stream
	conn   *websocket.Conn
	log    *slog.Logger
}

// newIngest returns the session for an already-attached producer.
func newIngest(r *Relay, s *Stream, conn *websocket.Conn) *ingest {
	return &ingest{
		relay:  r,
		stream: s,
		conn:   conn,
		log:    r.log.With(slog.String("key", string(s.Key))),
	}
}

// run consumes producer messages until the connection dies, the producer
// goes stale, or the invalid-frame threshold is reached. It always leaves
// the stream Ended and removed from the registry.
func (p *ingest) run() {
	defer p.conn.Close()

	cfg := p.relay.cfg
	inbound := make(chan []byte, inboundBuffer)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go p.readPump(inbound, readErr, done)

	probe := time.NewTimer(cfg.RecvTimeout)
	defer probe.Stop()

	for {
		select {
		case data := <-inbound:
			if fatal := p.handleMessage(data); fatal {
				return
			}
			probe.Reset(cfg.RecvTimeout)
		case err := <-readErr:
			p.log.Info("producer disconnected", slog.String("error", err.Error()))
			p.relay.EndStream(p.stream, EndCauseDisconnect)
			return
		case <-probe.C:
			// Receive timeout: a staleness probe, not an error.
			probe.Reset(cfg.RecvTimeout)
		}

		if p.stream.SilentFor(cfg.StaleTimeout) {
			p.log.Warn("producer stale: no valid frame within threshold",
				slog.Duration("threshold", cfg.StaleTimeout))
			p.closeWith(CloseStale, "stream stale: no valid frames received")
			p.relay.EndStream(p.stream, EndCauseStale)
			return
		}
	}
}

// readPump moves raw messages from the connection to the session loop. It
// exits when the connection fails or the session loop finishes; closing the
// connection unblocks the pending read.
func (p *ingest) readPump(inbound chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case inbound <- data:
		case <-done:
			return
		}
	}
}

// handleMessage processes one inbound producer message. It reports whether
// the condition was fatal to the connection; in that case the stream has
// already been ended.
func (p *ingest) handleMessage(data []byte) (fatal bool) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.log.Debug("undecodable producer message", slog.String("error", err.Error()))
		return p.recordInvalid(RejectBadFormat)
	}

	switch msg.Type {
	case MessageTypeFrame:
		ok, reason := p.relay.validator.Check(msg.Frame)
		if !ok {
			if p.relay.metrics != nil {
				p.relay.metrics.IncFramesRejected(string(reason))
			}
			p.log.Debug("frame rejected", slog.String("reason", string(reason)))
			return p.recordInvalid(reason)
		}
		p.stream.MarkFrame()
		if p.relay.metrics != nil {
			p.relay.metrics.IncFramesReceived()
		}
		p.relay.Broadcast(p.stream, msg.Frame)
		return false
	default:
		p.log.Debug("unexpected producer message", slog.String("type", msg.Type))
		return p.recordInvalid(RejectBadFormat)
	}
}

// recordInvalid counts one invalid message against the consecutive
// threshold. Crossing the threshold is a protocol error: the producer is
// told why, closed, and the stream torn down.
func (p *ingest) recordInvalid(reason RejectReason) (fatal bool) {
	n := p.stream.RecordInvalidFrame()
	if n < p.relay.cfg.ErrorThreshold {
		return false
	}
	p.log.Warn("invalid-frame threshold reached",
		slog.Int("count", n),
		slog.String("last_reason", string(reason)),
	)
	p.closeWith(CloseProtocolError, "too many consecutive invalid frames")
	p.relay.EndStream(p.stream, EndCauseProtocol)
	return true
}

// closeWith sends a structured error message followed by a close frame with
// the given code. Both writes are bounded; failures are ignored because the
// connection is going away regardless.
func (p *ingest) closeWith(code int, reason string) {
	deadline := time.Now().Add(closeGrace)
	_ = p.conn.SetWriteDeadline(deadline)
	if data, err := json.Marshal(outboundMessage{Type: MessageTypeError, Message: reason}); err == nil {
		_ = p.conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
}
