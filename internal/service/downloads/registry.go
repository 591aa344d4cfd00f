package downloads

import (
	"context"
	"sync"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// checkReply is the outcome of an out-of-band status check
type checkReply struct {
	download *domain.Download
	err      error
}

// Handle is the in-memory owner of one download's worker goroutine
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	// kick asks a polling worker to poll now and reply with the result
	kick chan chan checkReply
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
		kick:   make(chan chan checkReply),
	}
}

// Done is closed when the worker has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop cancels the worker and waits for it to exit
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Registry tracks active workers by download id. At most one worker is
// registered per download.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Register adds h for id; it returns false when id already has a worker
func (r *Registry) Register(id string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handles[id]; exists {
		return false
	}
	r.handles[id] = h
	return true
}

// Unregister removes h for id if it is still the registered handle
func (r *Registry) Unregister(id string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[id] == h {
		delete(r.handles, id)
	}
}

// Get returns the handle for id, or nil
func (r *Registry) Get(id string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[id]
}

// Len returns the number of active workers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// DrainAll cancels every worker and waits until all have exited
func (r *Registry) DrainAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.done
	}
}
