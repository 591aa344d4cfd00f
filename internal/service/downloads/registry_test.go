package downloads

import (
	"context"
	"testing"
	"time"
)

// startWorker registers a handle whose worker exits on cancel
func startWorker(r *Registry, id string) (*Handle, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	h := newHandle(cancel)
	if !r.Register(id, h) {
		cancel()
		return h, false
	}
	go func() {
		defer close(h.done)
		defer r.Unregister(id, h)
		<-ctx.Done()
	}()
	return h, true
}

func TestRegistry_OneWorkerPerDownload(t *testing.T) {
	r := NewRegistry()

	first, ok := startWorker(r, "d-1")
	if !ok {
		t.Fatal("first register should succeed")
	}
	if _, ok := startWorker(r, "d-1"); ok {
		t.Fatal("second register for the same id should be rejected")
	}
	if r.Get("d-1") != first {
		t.Error("Get should return the first handle")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	first.Stop()
	if r.Get("d-1") != nil {
		t.Error("handle should be unregistered after Stop")
	}
	if _, ok := startWorker(r, "d-1"); !ok {
		t.Error("register after the worker exited should succeed")
	}
}

func TestRegistry_UnregisterIgnoresStaleHandle(t *testing.T) {
	r := NewRegistry()
	current := newHandle(func() {})
	r.Register("d-1", current)

	r.Unregister("d-1", newHandle(func() {}))

	if r.Get("d-1") != current {
		t.Error("a stale handle must not remove the current one")
	}
}

func TestRegistry_DrainAll(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		startWorker(r, id)
	}

	done := make(chan struct{})
	go func() {
		r.DrainAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("DrainAll did not return")
	}
	if r.Len() != 0 {
		t.Errorf("Len after DrainAll = %d, want 0", r.Len())
	}
}
