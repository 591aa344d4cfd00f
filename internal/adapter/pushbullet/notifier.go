package pushbullet

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/xconstruct/go-pushbullet"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain/event"
)

// Pusher sends a note; an empty device iden targets every device
type Pusher interface {
	PushNote(iden string, title, body string) error
}

// Notifier pushes a note when a download completes or fails. Pushes run in
// the background so a slow Pushbullet API never holds up a download.
type Notifier struct {
	pusher Pusher
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New creates a Notifier for the given API key
func New(apiKey string, logger *zap.Logger) *Notifier {
	return NewWithPusher(pushbullet.New(apiKey), logger)
}

// NewWithPusher creates a Notifier around an existing Pusher
func NewWithPusher(p Pusher, logger *zap.Logger) *Notifier {
	return &Notifier{pusher: p, logger: logger}
}

// Handle implements event.EventHandler
func (n *Notifier) Handle(e event.DomainEvent) error {
	var title, body string
	switch ev := e.(type) {
	case event.DownloadCompleted:
		title = fmt.Sprintf("Download Complete: %s", ev.Name)
		body = fmt.Sprintf("Finished downloading %s (%d files, %s)",
			ev.Name, ev.Files, humanize.IBytes(uint64(ev.Bytes)))
	case event.DownloadFailed:
		title = fmt.Sprintf("Download Failed: %s", ev.Name)
		body = ev.Error
	default:
		return nil
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.pusher.PushNote("", title, body); err != nil {
			n.logger.Error("failed to send pushbullet notification",
				zap.String("title", title), zap.Error(err))
		}
	}()
	return nil
}

// HandledEvents returns the events that trigger a push
func (n *Notifier) HandledEvents() []string {
	return []string{event.NameCompleted, event.NameFailed}
}

// Flush waits for pushes in flight
func (n *Notifier) Flush() {
	n.wg.Wait()
}
