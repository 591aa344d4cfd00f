package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/domain/event"
	"github.com/vertextoedge/debrid-sync/internal/domain/vo"
	"github.com/vertextoedge/debrid-sync/internal/port"
)

// Config contains coordinator configuration
type Config struct {
	StatusTimeout    time.Duration
	ProgressInterval time.Duration
	FileRetries      int
	RemoteRetries    int
	RetryDelay       time.Duration
}

// DefaultConfig returns default coordinator configuration
func DefaultConfig() *Config {
	return &Config{
		StatusTimeout:    30 * time.Second,
		ProgressInterval: 2 * time.Second,
		FileRetries:      3,
		RemoteRetries:    3,
		RetryDelay:       2 * time.Second,
	}
}

// Inventory classifies the expected files of a job against the disk
type Inventory interface {
	Scan(dir string, expected []domain.RemoteFile) (map[string]domain.InventoryEntry, error)
}

// FileDownloader moves one remote file to disk
type FileDownloader interface {
	DownloadFile(ctx context.Context, url, dest string, opts Options) (int64, error)
}

// Coordinator moves the files of a ready remote job to local storage
type Coordinator struct {
	config     *Config
	client     port.DebridClient
	downloads  port.DownloadRepository
	paths      port.PathResolver
	inventory  Inventory
	fetcher    FileDownloader
	space      port.SpaceChecker
	dispatcher event.EventDispatcher
	logger     *zap.Logger
}

// New creates a new Coordinator. space may be nil to skip the free-space check.
func New(
	cfg *Config,
	client port.DebridClient,
	downloads port.DownloadRepository,
	paths port.PathResolver,
	inventory Inventory,
	fetcher FileDownloader,
	space port.SpaceChecker,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.StatusTimeout == 0 {
		cfg.StatusTimeout = 30 * time.Second
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 2 * time.Second
	}
	if cfg.FileRetries < 0 {
		cfg.FileRetries = 0
	}
	if cfg.RemoteRetries < 0 {
		cfg.RemoteRetries = 0
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}

	return &Coordinator{
		config:     cfg,
		client:     client,
		downloads:  downloads,
		paths:      paths,
		inventory:  inventory,
		fetcher:    fetcher,
		space:      space,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// pendingFile is a file that still has to be moved
type pendingFile struct {
	remote domain.RemoteFile
	entry  domain.InventoryEntry
}

// Transfer moves every missing or partial file of d's remote job to the
// category root and returns the resulting status. d must be transferring.
// A cancelled ctx stops the batch without touching the record and is
// returned as the error.
func (c *Coordinator) Transfer(ctx context.Context, d *domain.Download) (domain.Status, error) {
	log := c.logger.With(zap.String("download_id", d.ID))

	if d.RemoteJobID == "" {
		return c.fail(d, domain.ErrNoRemoteJob)
	}

	var status *domain.RemoteJobStatus
	err := c.withRetries(ctx, c.config.RemoteRetries, func() error {
		statusCtx, cancel := context.WithTimeout(ctx, c.config.StatusTimeout)
		defer cancel()
		var err error
		status, err = c.client.GetJobStatus(statusCtx, d.RemoteJobID)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return domain.NewRetryableError(err, 0)
		}
		return err
	})
	if err != nil {
		return c.abortOrFail(ctx, d, err)
	}
	if status.State != domain.RemoteReady {
		return c.fail(d, fmt.Errorf("%w: %s", domain.ErrJobNotReady, status.Raw))
	}

	root, err := c.paths.Resolve(d.Category)
	if err != nil {
		return c.fail(d, err)
	}

	inventory, err := c.inventory.Scan(root, status.Files)
	if err != nil {
		return c.fail(d, fmt.Errorf("failed to scan %s: %w", root, err))
	}

	var pending []pendingFile
	var plannedBytes, neededBytes int64
	complete := 0
	for _, f := range status.Files {
		entry := inventory[f.Filename]
		if entry.Class == domain.FileComplete {
			complete++
			continue
		}
		pending = append(pending, pendingFile{remote: f, entry: entry})
		plannedBytes += f.Size
		neededBytes += f.Size - entry.Size
	}

	log.Info("transfer planned",
		zap.Int("files", len(status.Files)),
		zap.Int("complete", complete),
		zap.Int("pending", len(pending)),
		zap.String("size", humanize.IBytes(uint64(max(plannedBytes, 0)))))

	if len(pending) == 0 {
		return c.complete(d, NewSession(len(status.Files), complete, 0))
	}

	if c.space != nil {
		result, err := c.space.CheckSpace(root, neededBytes)
		if err != nil {
			log.Warn("space check failed", zap.Error(err))
		} else if !result.HasSpace {
			return c.fail(d, fmt.Errorf("%w: need %s, %s available at %s",
				domain.ErrInsufficientSpace,
				humanize.IBytes(uint64(result.RequiredBytes+result.ReserveBytes)),
				humanize.IBytes(uint64(max(result.AvailableBytes, 0))),
				root))
		}
	}

	session := NewSession(len(status.Files), complete, plannedBytes)
	c.persistProgress(d, session.Progress())

	// The reporter must be gone before the record turns terminal, so no
	// speed write or progress event lands after completion or failure.
	reporterCtx, stopReporter := context.WithCancel(ctx)
	var reporter sync.WaitGroup
	reporter.Add(1)
	go func(id, owner string) {
		defer reporter.Done()
		c.reportProgress(reporterCtx, id, owner, session)
	}(d.ID, d.OwnerID)
	stop := func() {
		stopReporter()
		reporter.Wait()
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			stop()
			return d.Status, err
		}

		path, written, resumed, err := c.transferFile(ctx, d, root, p, session)
		if err != nil {
			stop()
			return c.abortOrFail(ctx, d, fmt.Errorf("%s: %w", p.remote.Filename, err))
		}

		c.dispatcher.Dispatch(event.NewFileTransferred(d, p.remote.Filename, path, written, resumed))
		c.persistProgress(d, session.FileDone())
	}

	stop()
	return c.complete(d, session)
}

// transferFile moves one file, resuming where possible and retrying
// transient failures with a freshly unlocked link each time.
func (c *Coordinator) transferFile(ctx context.Context, d *domain.Download, root string, p pendingFile, session *Session) (string, int64, bool, error) {
	dest, err := vo.DestinationPath(root, p.remote.Filename)
	if err != nil {
		return "", 0, false, err
	}
	target := dest.String()
	if p.entry.CanResume && p.entry.Path != "" {
		target = p.entry.Path
	}

	log := c.logger.With(zap.String("download_id", d.ID), zap.String("file", p.remote.Filename))

	var lastErr error
	for attempt := 0; attempt <= c.config.FileRetries; attempt++ {
		if attempt > 0 {
			log.Warn("retrying file transfer", zap.Int("attempt", attempt), zap.Error(lastErr))
			if err := sleepCtx(ctx, c.config.RetryDelay); err != nil {
				return "", 0, false, err
			}
		}

		var direct string
		err := c.withRetries(ctx, c.config.RemoteRetries, func() error {
			var err error
			direct, err = c.client.UnlockLink(ctx, p.remote.Link)
			return err
		})
		if err != nil {
			return "", 0, false, err
		}

		offset := resumeOffset(target, p.remote.Size)
		if offset > 0 {
			written, err := c.fetcher.DownloadFile(ctx, direct, target, Options{ResumeFrom: offset, Sink: session})
			if err == nil {
				log.Info("file resumed",
					zap.Int64("from_byte", offset),
					zap.Int64("bytes", written))
				return target, offset + written, true, nil
			}
			if !errors.Is(err, domain.ErrResumeUnsupported) {
				if !domain.IsRetryable(err) {
					return "", 0, false, err
				}
				lastErr = err
				continue
			}
			log.Info("resume not possible, restarting file", zap.Int64("had_bytes", offset))
		}

		written, err := c.fetcher.DownloadFile(ctx, direct, target, Options{Sink: session})
		if err == nil {
			log.Info("file transferred", zap.String("size", humanize.IBytes(uint64(written))))
			return target, written, false, nil
		}
		if !domain.IsRetryable(err) {
			return "", 0, false, err
		}
		lastErr = err
	}

	return "", 0, false, fmt.Errorf("giving up after %d attempts: %w", c.config.FileRetries+1, lastErr)
}

// resumeOffset returns the size of a partial file at path, or 0 when
// the file is absent or already at least as large as expected.
func resumeOffset(path string, expected int64) int64 {
	info, err := os.Stat(path)
	if err != nil || expected <= 0 {
		return 0
	}
	if info.Size() >= expected {
		return 0
	}
	return info.Size()
}

// reportProgress persists the sampled speed and publishes a progress
// event every ProgressInterval until ctx is done. It only sees the ids so
// the batch goroutine keeps sole ownership of the record.
func (c *Coordinator) reportProgress(ctx context.Context, id, owner string, session *Session) {
	ticker := time.NewTicker(c.config.ProgressInterval)
	defer ticker.Stop()

	ref := &domain.Download{ID: id, OwnerID: owner}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			speed := session.Speed()
			if _, err := c.downloads.Update(id, domain.DownloadUpdate{DownloadSpeed: &speed}); err != nil {
				c.logger.Warn("failed to persist speed", zap.String("download_id", id), zap.Error(err))
			}
			c.dispatcher.Dispatch(event.NewDownloadProgress(ref, domain.StatusTransferring, session.Progress(), speed))
		}
	}
}

// persistProgress stores progress unless the record already shows more,
// as it does when a restarted transfer re-counts its files.
func (c *Coordinator) persistProgress(d *domain.Download, progress float64) {
	if progress <= d.TransferProgress {
		return
	}
	updated, err := c.downloads.Update(d.ID, domain.DownloadUpdate{TransferProgress: &progress})
	if err != nil {
		c.logger.Warn("failed to persist transfer progress",
			zap.String("download_id", d.ID),
			zap.Error(err))
		return
	}
	d.TransferProgress = updated.TransferProgress
}

func (c *Coordinator) complete(d *domain.Download, session *Session) (domain.Status, error) {
	updated, err := c.downloads.Update(d.ID, domain.CompletedUpdate(time.Now().UTC()))
	if err != nil {
		return d.Status, fmt.Errorf("failed to mark completed: %w", err)
	}
	*d = *updated

	c.dispatcher.Dispatch(event.NewDownloadCompleted(d, session.TotalFiles, session.Bytes(), session.Elapsed()))
	return domain.StatusCompleted, nil
}

// abortOrFail leaves the record alone when ctx was cancelled
func (c *Coordinator) abortOrFail(ctx context.Context, d *domain.Download, err error) (domain.Status, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return d.Status, ctxErr
	}
	return c.fail(d, err)
}

func (c *Coordinator) fail(d *domain.Download, cause error) (domain.Status, error) {
	msg := domain.ErrorMessage(cause)
	c.logger.Error("transfer failed",
		zap.String("download_id", d.ID),
		zap.Error(cause))

	updated, err := c.downloads.Update(d.ID, domain.FailedUpdate(msg))
	if err != nil {
		return d.Status, fmt.Errorf("failed to mark failed: %w", err)
	}
	*d = *updated

	c.dispatcher.Dispatch(event.NewDownloadFailed(d, domain.StatusTransferring, msg))
	return domain.StatusFailed, cause
}

// withRetries runs fn until it succeeds, fails permanently or retries run out
func (c *Coordinator) withRetries(ctx context.Context, retries int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay
			if after, ok := domain.GetRetryAfter(err); ok && after > delay {
				delay = after
			}
			if serr := sleepCtx(ctx, delay); serr != nil {
				return serr
			}
		}
		if err = fn(); err == nil || !domain.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
