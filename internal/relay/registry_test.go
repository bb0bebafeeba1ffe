package relay

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistry_CreateOrAttach(t *testing.T) {
	reg := NewRegistry()

	t.Run("creates_active_stream", func(t *testing.T) {
		s, err := reg.CreateOrAttach("cam-1", &fakeConn{})
		if err != nil {
			t.Fatalf("CreateOrAttach: %v", err)
		}
		if s.State() != StateActive {
			t.Errorf("state = %v, want %v", s.State(), StateActive)
		}
	})

	t.Run("second_producer_conflicts", func(t *testing.T) {
		incumbent, _ := reg.Get("cam-1")
		_, err := reg.CreateOrAttach("cam-1", &fakeConn{})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		// Incumbent entity untouched.
		got, ok := reg.Get("cam-1")
		if !ok || got != incumbent {
			t.Error("conflict altered the incumbent entity")
		}
		if got.State() != StateActive {
			t.Errorf("incumbent state = %v, want %v", got.State(), StateActive)
		}
	})
}

func TestRegistry_CreateOrAttach_concurrent(t *testing.T) {
	reg := NewRegistry()

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.CreateOrAttach("cam-1", &fakeConn{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, attempts-1)
	}
}

func TestRegistry_Remove_idempotent(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.CreateOrAttach("cam-1", &fakeConn{}); err != nil {
		t.Fatal(err)
	}

	reg.Remove("cam-1")
	if _, ok := reg.Get("cam-1"); ok {
		t.Fatal("stream still present after Remove")
	}
	// Removing an absent key is a no-op.
	reg.Remove("cam-1")
	reg.Remove("never-existed")

	// A fresh handshake for the removed key creates a new entity.
	if _, err := reg.CreateOrAttach("cam-1", &fakeConn{}); err != nil {
		t.Fatalf("CreateOrAttach after Remove: %v", err)
	}
}

func TestRegistry_ListActive_sorted(t *testing.T) {
	reg := NewRegistry()
	for _, key := range []StreamKey{"zebra", "alpha", "mid"} {
		if _, err := reg.CreateOrAttach(key, &fakeConn{}); err != nil {
			t.Fatal(err)
		}
	}

	got := reg.ListActive()
	want := []StreamKey{"alpha", "mid", "zebra"}
	if len(got) != len(want) {
		t.Fatalf("ListActive len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListActive[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if reg.ActiveCount() != 3 {
		t.Errorf("ActiveCount = %d, want 3", reg.ActiveCount())
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.CreateOrAttach("cam-1", &fakeConn{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddViewer(newViewer(&fakeConn{})); err != nil {
		t.Fatal(err)
	}

	snap := reg.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot len = %d, want 1", len(snap))
	}
	info := snap[0]
	if info.Key != "cam-1" {
		t.Errorf("Key = %q, want %q", info.Key, "cam-1")
	}
	if info.Viewers != 1 {
		t.Errorf("Viewers = %d, want 1", info.Viewers)
	}
	if info.StartedAt.IsZero() || time.Since(info.StartedAt) > time.Minute {
		t.Errorf("StartedAt = %v, not recent", info.StartedAt)
	}

	if reg.ViewerCount() != 1 {
		t.Errorf("ViewerCount = %d, want 1", reg.ViewerCount())
	}
}
