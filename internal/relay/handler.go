package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// viewerReadLimit bounds inbound viewer messages. Viewers have nothing
// legitimate to send beyond control frames.
const viewerReadLimit = 512

// Handler exposes the relay's WebSocket and discovery endpoints using go-chi.
type Handler struct {
	relay    *Relay
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler serving the given relay.
func NewHandler(r *Relay, log *slog.Logger) *Handler {
	return &Handler{
		relay: r,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// Routes mounts the relay endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws/publish/{key}", h.Publish)
	r.Get("/ws/watch/{key}", h.Watch)
	r.Get("/api/streams", h.ListStreams)
}

// Publish handles GET /ws/publish/{key}: upgrades the producer connection,
// performs the handshake, and runs the ingestion loop for the life of the
// connection.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	key := StreamKey(chi.URLParam(r, "key"))
	if key == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("producer upgrade failed", slog.String("error", err.Error()))
		return
	}

	cfg := h.relay.Config()
	// The transport bound sits well above MaxFrameBytes so oversized frames
	// surface as recoverable validation rejections, not dead connections.
	conn.SetReadLimit(int64(2*cfg.MaxFrameBytes) + 4096)

	hs, err := h.readHandshake(conn, cfg.RecvTimeout)
	if err != nil {
		h.log.Info("producer handshake rejected",
			slog.String("key", string(key)),
			slog.String("error", err.Error()),
		)
		h.refuse(conn, CloseProtocolError, "expected handshake message")
		return
	}

	stream, err := h.relay.StartStream(key, conn)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			h.log.Info("producer conflict: key already active", slog.String("key", string(key)))
			h.refuse(conn, CloseConflict, "stream key already has an active producer")
			return
		}
		h.log.Error("start stream failed",
			slog.String("key", string(key)),
			slog.String("error", err.Error()),
		)
		h.refuse(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	ack := outboundMessage{Type: MessageTypeConnected, Key: string(key), Mode: hs.Mode}
	if stream.ViewerCount() == 0 {
		ack.Warning = "no viewers connected"
	}
	if err := writeJSON(conn, ack, cfg.SendTimeout); err != nil {
		h.log.Info("connected ack failed", slog.String("key", string(key)), slog.String("error", err.Error()))
		h.relay.EndStream(stream, EndCauseDisconnect)
		_ = conn.Close()
		return
	}

	h.log.Info("producer connected",
		slog.String("key", string(key)),
		slog.String("mode", hs.Mode),
	)
	newIngest(h.relay, stream, conn).run()
}

// Watch handles GET /ws/watch/{key}: attaches a viewer to an existing
// stream and blocks until the viewer disconnects or the stream ends.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	key := StreamKey(chi.URLParam(r, "key"))
	if key == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	stream, ok := h.relay.Lookup(key)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("viewer upgrade failed", slog.String("error", err.Error()))
		return
	}

	viewer, err := h.relay.AddViewer(stream, conn)
	if err != nil {
		h.log.Info("viewer attach failed",
			slog.String("key", string(key)),
			slog.String("error", err.Error()),
		)
		_ = conn.Close()
		return
	}

	// Viewers are write-only from the relay's perspective: the read loop
	// discards inbound traffic and exists to detect disconnect. The tight
	// read limit keeps a misbehaving viewer from buffering large messages
	// into memory; exceeding it fails the read and drops the session.
	conn.SetReadLimit(viewerReadLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.relay.RemoveViewer(stream, viewer)
}

// ListStreams handles GET /api/streams: the discovery snapshot consumed
// before a viewer attaches.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	snapshot := h.relay.Registry().Snapshot()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{"streams": snapshot}); err != nil {
		h.log.Error("encode stream list", slog.String("error", err.Error()))
	}
}

// readHandshake reads and validates the producer's first message, bounded
// by the receive timeout. The read deadline is cleared afterwards; the
// ingestion loop uses its own probe timer instead.
func (h *Handler) readHandshake(conn *websocket.Conn, timeout time.Duration) (inboundMessage, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return inboundMessage{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return inboundMessage{}, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return inboundMessage{}, err
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return inboundMessage{}, ErrBadHandshake
	}
	if msg.Type != MessageTypeHandshake {
		return inboundMessage{}, ErrBadHandshake
	}
	return msg, nil
}

// refuse sends a structured error, a close frame with the given code, and
// closes the connection.
func (h *Handler) refuse(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(closeGrace)
	_ = conn.SetWriteDeadline(deadline)
	if data, err := json.Marshal(outboundMessage{Type: MessageTypeError, Message: reason}); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// writeJSON marshals msg and writes it bounded by timeout.
func writeJSON(conn *websocket.Conn, msg outboundMessage, timeout time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
