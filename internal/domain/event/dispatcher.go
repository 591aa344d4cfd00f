package event

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles domain events
type EventHandler interface {
	Handle(event DomainEvent) error
	// HandledEvents lists the event names to deliver; "*" means all
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	Dispatch(event DomainEvent)
	Subscribe(handler EventHandler)
	Unsubscribe(handler EventHandler)
}

// InMemoryDispatcher delivers events synchronously on the caller's
// goroutine. Handlers must not block; a failing or panicking handler is
// logged and skipped so the download worker that raised the event keeps
// running.
type InMemoryDispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher. logger may be nil.
func NewInMemoryDispatcher(logger *zap.Logger) *InMemoryDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Dispatch sends an event to every handler subscribed to its name, then
// to the wildcard handlers.
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	wildcard := d.handlers["*"]
	targets := make([]EventHandler, 0, len(named)+len(wildcard))
	targets = append(targets, named...)
	targets = append(targets, wildcard...)
	d.mu.RUnlock()

	for _, h := range targets {
		if err := d.deliver(h, event); err != nil {
			fields := []zap.Field{
				zap.String("event", event.EventName()),
				zap.String("handler", fmt.Sprintf("%T", h)),
				zap.Error(err),
			}
			if ue, ok := event.(UserEvent); ok {
				fields = append(fields, zap.String("owner_id", ue.Owner()))
			}
			d.logger.Warn("event handler failed", fields...)
		}
	}
}

func (d *InMemoryDispatcher) deliver(h EventHandler, event DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(event)
}

// Subscribe registers a handler for the events it names
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		d.handlers[name] = append(d.handlers[name], handler)
	}
}

// Unsubscribe removes a handler. Slices are rebuilt so a Dispatch already
// holding the old slice is unaffected.
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, name := range handler.HandledEvents() {
		current := d.handlers[name]
		kept := make([]EventHandler, 0, len(current))
		for _, h := range current {
			if h != handler {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(d.handlers, name)
			continue
		}
		d.handlers[name] = kept
	}
}

// NullDispatcher discards every event
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

func (d *NullDispatcher) Dispatch(event DomainEvent)       {}
func (d *NullDispatcher) Subscribe(handler EventHandler)   {}
func (d *NullDispatcher) Unsubscribe(handler EventHandler) {}
