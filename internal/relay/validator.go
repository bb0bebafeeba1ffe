package relay

import "strings"

// RejectReason classifies why a frame was refused. Used in logs and as a
// metric label; never fatal to the connection by itself.
type RejectReason string

const (
	RejectNone      RejectReason = ""
	RejectEmpty     RejectReason = "empty"
	RejectTooLarge  RejectReason = "too_large"
	RejectBadFormat RejectReason = "bad_format"
)

// imagePrefix is the start of every acceptable frame payload. The validator
// only scans the prefix; it never decodes the image.
const imagePrefix = "data:image/"

// base64Marker must appear shortly after the prefix, terminating the format
// declaration (e.g. "data:image/jpeg;base64,....").
const base64Marker = ";base64,"

// markerScanLimit bounds how far into the payload the base64 marker may sit.
const markerScanLimit = 64

// Validator is a stateless acceptance predicate for frame payloads.
type Validator struct {
	maxFrameBytes int
}

// NewValidator returns a Validator that rejects payloads larger than
// maxFrameBytes. A non-positive limit falls back to DefaultMaxFrameBytes.
func NewValidator(maxFrameBytes int) *Validator {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Validator{maxFrameBytes: maxFrameBytes}
}

// Check reports whether frame is acceptable, and the reason when it is not.
// A frame is accepted iff it is non-empty, within the size limit, and starts
// with a recognizable encoded-image marker.
func (v *Validator) Check(frame string) (ok bool, reason RejectReason) {
	if frame == "" {
		return false, RejectEmpty
	}
	if len(frame) > v.maxFrameBytes {
		return false, RejectTooLarge
	}
	if !strings.HasPrefix(frame, imagePrefix) {
		return false, RejectBadFormat
	}
	head := frame
	if len(head) > markerScanLimit {
		head = head[:markerScanLimit]
	}
	if !strings.Contains(head, base64Marker) {
		return false, RejectBadFormat
	}
	return true, RejectNone
}
