package relay

import (
	"testing"
	"time"
)

func TestViewer_send_tracks_failures_and_last_success(t *testing.T) {
	conn := &fakeConn{}
	v := newViewer(conn)

	if v.JoinedAt().IsZero() {
		t.Error("joined_at not set on attach")
	}
	if !v.LastSendOK().IsZero() {
		t.Errorf("last_send_ok = %v before any send, want zero", v.LastSendOK())
	}

	conn.setFailWrites(true)
	if err := v.send([]byte(`{}`), time.Second); err == nil {
		t.Fatal("expected send to fail")
	}
	if err := v.send([]byte(`{}`), time.Second); err == nil {
		t.Fatal("expected send to fail")
	}
	if got := v.ConsecutiveFailures(); got != 2 {
		t.Errorf("consecutive failures = %d, want 2", got)
	}
	if !v.LastSendOK().IsZero() {
		t.Errorf("last_send_ok = %v after only failures, want zero", v.LastSendOK())
	}

	// One success resets the run and stamps the send time.
	conn.setFailWrites(false)
	if err := v.send([]byte(`{}`), time.Second); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := v.ConsecutiveFailures(); got != 0 {
		t.Errorf("consecutive failures = %d after success, want 0", got)
	}
	if v.LastSendOK().IsZero() {
		t.Error("last_send_ok not stamped after successful send")
	}
}
