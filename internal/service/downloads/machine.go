package downloads

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/domain/event"
	"github.com/vertextoedge/debrid-sync/internal/domain/vo"
	"github.com/vertextoedge/debrid-sync/internal/logger"
	"github.com/vertextoedge/debrid-sync/internal/port"
)

// ErrStopped is returned by operations after Shutdown
var ErrStopped = errors.New("download machine is shut down")

// Config contains state machine configuration
type Config struct {
	PollInterval  time.Duration
	StatusTimeout time.Duration
	// CheckTimeout bounds how long a manual check waits for the worker
	CheckTimeout time.Duration
}

// DefaultConfig returns default state machine configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:  8 * time.Second,
		StatusTimeout: 30 * time.Second,
		CheckTimeout:  35 * time.Second,
	}
}

// Transferer moves the files of a ready download to local storage and
// records the terminal status itself.
type Transferer interface {
	Transfer(ctx context.Context, d *domain.Download) (domain.Status, error)
}

// EnqueueRequest describes a new download
type EnqueueRequest struct {
	OwnerID    string
	Name       string
	Size       string // human readable, e.g. "1.5 GB"
	Quality    string
	MagnetLink string
	Category   string
}

// Machine drives downloads through queued -> debriding -> transferring ->
// completed, with failed and cancelled as the other terminal states. Each
// active download is owned by exactly one worker goroutine.
type Machine struct {
	config     *Config
	client     port.DebridClient
	downloads  port.DownloadRepository
	paths      port.PathResolver
	transfer   Transferer
	dispatcher event.EventDispatcher
	logger     *zap.Logger
	registry   *Registry

	// mu serializes lifecycle changes made from outside the workers
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	stopped bool
}

// New creates a new Machine
func New(
	cfg *Config,
	client port.DebridClient,
	downloads port.DownloadRepository,
	paths port.PathResolver,
	transfer Transferer,
	dispatcher event.EventDispatcher,
	logger *zap.Logger,
) *Machine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 8 * time.Second
	}
	if cfg.StatusTimeout == 0 {
		cfg.StatusTimeout = 30 * time.Second
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = cfg.StatusTimeout + 5*time.Second
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		config:     cfg,
		client:     client,
		downloads:  downloads,
		paths:      paths,
		transfer:   transfer,
		dispatcher: dispatcher,
		logger:     logger,
		registry:   NewRegistry(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start re-attaches unfinished downloads, then blocks until ctx is done
// and shuts the machine down.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("download machine already running")
	}
	m.running = true
	m.mu.Unlock()

	resumed, err := m.ResumeOrphans()
	if err != nil {
		m.logger.Warn("failed to resume downloads on startup", zap.Error(err))
	} else if resumed > 0 {
		m.logger.Info("resumed downloads from previous run", zap.Int("count", resumed))
	}

	m.logger.Info("download machine started")
	<-ctx.Done()
	m.Shutdown()
	return nil
}

// Enqueue validates and persists a new download, then starts processing it
// in the background.
func (m *Machine) Enqueue(req EnqueueRequest) (*domain.Download, error) {
	if strings.TrimSpace(req.MagnetLink) == "" {
		return nil, fmt.Errorf("%w: magnet link is required", domain.ErrInvalidInput)
	}
	magnet, err := vo.ParseMagnet(req.MagnetLink)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", domain.ErrInvalidInput)
	}
	if _, err := m.paths.Resolve(category); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = magnet.DisplayName()
	}
	if name == "" {
		name = "Unknown"
	}

	d := &domain.Download{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		Name:       name,
		MagnetLink: magnet.String(),
		Category:   category,
		Size:       vo.ParseFileSize(req.Size).Bytes(),
		Quality:    req.Quality,
		Status:     domain.StatusQueued,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}

	if err := m.downloads.Create(d); err != nil {
		return nil, fmt.Errorf("failed to create download: %w", err)
	}

	m.logger.Info("download enqueued",
		zap.String("download_id", d.ID),
		zap.String("name", d.Name),
		zap.String("category", d.Category),
		zap.String("info_hash", magnet.InfoHash()))

	m.dispatcher.Dispatch(event.NewDownloadQueued(d, false))
	m.spawnLocked(d)
	return d, nil
}

// GetByID returns a download record
func (m *Machine) GetByID(id string) (*domain.Download, error) {
	return m.downloads.FindByID(id)
}

// List returns a user's downloads, newest first
func (m *Machine) List(ownerID string, limit int) ([]*domain.Download, error) {
	return m.downloads.ListByOwner(ownerID, limit)
}

// Retry resets a failed download and processes it again
func (m *Machine) Retry(id string) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}

	d, err := m.downloads.FindByID(id)
	if err != nil {
		return nil, err
	}
	if !d.Status.CanTransitionTo(domain.StatusQueued) {
		return nil, fmt.Errorf("%w: cannot retry a %s download", domain.ErrInvalidStateTransition, d.Status)
	}

	// A worker that just failed the record may still be unwinding
	if h := m.registry.Get(id); h != nil {
		<-h.Done()
	}

	updated, err := m.downloads.Update(id, domain.RetryUpdate())
	if err != nil {
		return nil, fmt.Errorf("failed to reset download: %w", err)
	}

	m.logger.Info("download retried", zap.String("download_id", id))
	m.dispatcher.Dispatch(event.NewDownloadQueued(updated, true))
	m.spawnLocked(updated)
	return updated, nil
}

// Cancel stops any worker for the download and marks it cancelled.
// Files already written stay on disk.
func (m *Machine) Cancel(id string) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, err := m.downloads.FindByID(id)
	if err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: download is already %s", domain.ErrInvalidStateTransition, d.Status)
	}

	if h := m.registry.Get(id); h != nil {
		h.Stop()
		if err := m.downloads.Reload(d); err != nil {
			return nil, err
		}
		if d.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: download is already %s", domain.ErrInvalidStateTransition, d.Status)
		}
	}

	from := d.Status
	updated, err := m.downloads.Update(id, domain.DownloadUpdate{
		Status:        domain.Ptr(domain.StatusCancelled),
		DownloadSpeed: domain.Ptr(int64(0)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel download: %w", err)
	}

	m.logger.Info("download cancelled",
		zap.String("download_id", id),
		zap.String("from", string(from)))
	m.dispatcher.Dispatch(event.NewDownloadCancelled(updated, from))
	return updated, nil
}

// ManualStatusCheck polls the remote job now instead of waiting for the
// next tick and returns the record after the poll was applied.
func (m *Machine) ManualStatusCheck(ctx context.Context, id string) (*domain.Download, error) {
	d, err := m.downloads.FindByID(id)
	if err != nil {
		return nil, err
	}
	if d.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: download is %s, use retry", domain.ErrInvalidStateTransition, d.Status)
	}
	if d.RemoteJobID == "" {
		return nil, domain.ErrNoRemoteJob
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	h := m.registry.Get(id)
	if h == nil {
		m.logger.Info("re-attaching orphaned download", zap.String("download_id", id))
		m.spawnLocked(d)
		h = m.registry.Get(id)
	}
	m.mu.Unlock()

	if d.Status == domain.StatusTransferring || h == nil {
		return d, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.config.CheckTimeout)
	defer cancel()

	reply := make(chan checkReply, 1)
	select {
	case h.kick <- reply:
	case <-h.Done():
		return m.downloads.FindByID(id)
	case <-waitCtx.Done():
		return m.afterWait(ctx, id)
	}

	select {
	case r := <-reply:
		return r.download, r.err
	case <-waitCtx.Done():
		return m.afterWait(ctx, id)
	}
}

// afterWait returns the stored record unless the caller gave up
func (m *Machine) afterWait(ctx context.Context, id string) (*domain.Download, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.downloads.FindByID(id)
}

// ResumeOrphans attaches a worker to every unfinished download that has none
func (m *Machine) ResumeOrphans() (int, error) {
	active, err := m.downloads.ListByStatus(domain.StatusQueued, domain.StatusDebriding, domain.StatusTransferring)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return 0, ErrStopped
	}

	resumed := 0
	for _, d := range active {
		if m.registry.Get(d.ID) != nil {
			continue
		}
		// The listing may predate a worker's final write
		fresh, err := m.downloads.FindByID(d.ID)
		if err != nil || !fresh.Status.IsActive() {
			continue
		}
		if m.spawnLocked(fresh) {
			resumed++
		}
	}
	return resumed, nil
}

// ActiveCount returns the number of downloads with a running worker
func (m *Machine) ActiveCount() int {
	return m.registry.Len()
}

// Shutdown stops every worker without touching stored state; unfinished
// downloads are picked up by the next Start.
func (m *Machine) Shutdown() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.cancel()
	m.mu.Unlock()

	active := m.registry.Len()
	m.registry.DrainAll()
	m.logger.Info("download machine stopped", zap.Int("interrupted", active))
}

// spawnLocked starts a worker for a copy of d unless one is already
// registered. m.mu must be held.
func (m *Machine) spawnLocked(d *domain.Download) bool {
	ctx, cancel := context.WithCancel(m.ctx)
	h := newHandle(cancel)
	if !m.registry.Register(d.ID, h) {
		cancel()
		return false
	}

	record := *d
	go m.run(ctx, h, &record)
	return true
}

// run owns d until it reaches a terminal state or ctx is cancelled
func (m *Machine) run(ctx context.Context, h *Handle, d *domain.Download) {
	defer close(h.done)
	defer m.registry.Unregister(d.ID, h)
	defer h.cancel()

	log := logger.ForDownload(m.logger, d.ID)

	if d.Status == domain.StatusQueued || (d.Status == domain.StatusDebriding && d.RemoteJobID == "") {
		if !m.process(ctx, log, d) {
			return
		}
	}

	if d.Status == domain.StatusDebriding {
		if !m.poll(ctx, log, h, d) {
			return
		}
	}

	if d.Status == domain.StatusTransferring {
		m.runTransfer(ctx, log, d)
	}
}

// process registers the magnet with the debrid service
func (m *Machine) process(ctx context.Context, log *zap.Logger, d *domain.Download) bool {
	if d.Status == domain.StatusQueued {
		if err := m.transition(d, domain.DownloadUpdate{Status: domain.Ptr(domain.StatusDebriding)}); err != nil {
			log.Error("failed to start processing", zap.Error(err))
			return false
		}
	}

	jobID, err := m.client.RegisterMagnet(ctx, d.MagnetLink)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		m.fail(log, d, domain.StatusDebriding, err)
		return false
	}

	updated, err := m.downloads.Update(d.ID, domain.DownloadUpdate{RemoteJobID: &jobID})
	if err != nil {
		// without the job id nothing can poll this record again
		log.Error("failed to store remote job id", zap.String("job_id", jobID), zap.Error(err))
		m.fail(log, d, domain.StatusDebriding, fmt.Errorf("failed to store remote job id: %w", err))
		return false
	}
	*d = *updated

	log.Info("magnet registered", zap.String("job_id", jobID))
	return true
}

type pollOutcome int

const (
	pollContinue pollOutcome = iota
	pollReady
	pollStop
)

// poll checks the remote job now and then every PollInterval until it is
// ready or terminal. A kick from ManualStatusCheck triggers an extra check.
func (m *Machine) poll(ctx context.Context, log *zap.Logger, h *Handle, d *domain.Download) bool {
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	var reply chan checkReply
	for {
		outcome, err := m.check(ctx, log, d)
		if reply != nil {
			record := *d
			reply <- checkReply{download: &record, err: err}
			reply = nil
		}

		switch outcome {
		case pollReady:
			return true
		case pollStop:
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		case reply = <-h.kick:
		}
	}
}

// check applies one remote status to the record
func (m *Machine) check(ctx context.Context, log *zap.Logger, d *domain.Download) (pollOutcome, error) {
	statusCtx, cancel := context.WithTimeout(ctx, m.config.StatusTimeout)
	defer cancel()

	status, err := m.client.GetJobStatus(statusCtx, d.RemoteJobID)
	if err != nil {
		if ctx.Err() != nil {
			return pollStop, ctx.Err()
		}
		if domain.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("status check failed, will retry", zap.Error(err))
		} else {
			log.Warn("status check rejected", zap.Error(err))
		}
		return pollContinue, err
	}

	switch status.State {
	case domain.RemoteReady:
		err := m.transition(d, domain.DownloadUpdate{
			Status:            domain.Ptr(domain.StatusTransferring),
			DebridingProgress: domain.Ptr(100.0),
			DownloadSpeed:     domain.Ptr(int64(0)),
		})
		if err != nil {
			log.Error("failed to start transfer", zap.Error(err))
			return pollStop, err
		}
		log.Info("remote job ready", zap.Int("files", len(status.Files)))
		m.dispatcher.Dispatch(event.NewDownloadProgress(d, domain.StatusTransferring, 100, 0))
		return pollReady, nil

	case domain.RemoteDownloading:
		progress := math.Max(status.Progress(), d.DebridingProgress)
		speed := status.Speed
		updated, err := m.downloads.Update(d.ID, domain.DownloadUpdate{
			DebridingProgress: &progress,
			DownloadSpeed:     &speed,
		})
		if err != nil {
			log.Warn("failed to persist debriding progress", zap.Error(err))
			return pollContinue, err
		}
		*d = *updated
		log.Debug("remote job downloading",
			zap.Float64("progress", progress),
			zap.String("speed", vo.FormatSpeed(speed)))
		m.dispatcher.Dispatch(event.NewDownloadProgress(d, domain.StatusDebriding, progress, speed))
		return pollContinue, nil

	case domain.RemoteFailed:
		msg := status.Message
		if msg == "" {
			msg = "remote processing failed"
		}
		m.fail(log, d, domain.StatusDebriding, &domain.RemoteError{Op: "magnet status", Message: msg})
		return pollStop, nil

	default:
		log.Debug("remote job pending", zap.String("remote_status", status.Raw))
		return pollContinue, nil
	}
}

func (m *Machine) runTransfer(ctx context.Context, log *zap.Logger, d *domain.Download) {
	status, err := m.transfer.Transfer(ctx, d)
	switch {
	case err != nil && ctx.Err() != nil:
		log.Info("transfer interrupted")
	case err != nil && !status.IsTerminal():
		log.Error("transfer aborted", zap.Error(err))
	default:
		log.Info("transfer finished", zap.String("status", string(status)))
	}
}

// transition applies u after checking its status edge
func (m *Machine) transition(d *domain.Download, u domain.DownloadUpdate) error {
	if u.Status != nil && !d.Status.CanTransitionTo(*u.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, d.Status, *u.Status)
	}
	updated, err := m.downloads.Update(d.ID, u)
	if err != nil {
		return err
	}
	*d = *updated
	return nil
}

func (m *Machine) fail(log *zap.Logger, d *domain.Download, stage domain.Status, cause error) {
	msg := domain.ErrorMessage(cause)
	if err := m.transition(d, domain.FailedUpdate(msg)); err != nil {
		log.Error("failed to mark download failed", zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	log.Error("download failed", zap.String("stage", string(stage)), zap.Error(cause))
	m.dispatcher.Dispatch(event.NewDownloadFailed(d, stage, msg))
}
