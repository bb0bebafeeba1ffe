package relay

import "errors"

var (
	// ErrConflict is returned when a producer handshake targets a key that
	// already has an active producer. The incumbent is never pre-empted.
	ErrConflict = errors.New("stream key already has an active producer")

	// ErrBadHandshake is returned when the first producer message is not a
	// well-formed handshake.
	ErrBadHandshake = errors.New("expected handshake message")

	// ErrStreamEnding is returned when an operation targets a stream that is
	// already tearing down.
	ErrStreamEnding = errors.New("stream is ending")
)
