package maintenance

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// ReconcileSchedule is a cron spec or descriptor such as "@every 5m"
	ReconcileSchedule string

	// DiskWarnPct logs a warning when a destination volume is fuller than this
	DiskWarnPct float64
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		ReconcileSchedule: "@every 5m",
		DiskWarnPct:       95,
	}
}

// Reconciler re-attaches workers to unfinished downloads
type Reconciler interface {
	ResumeOrphans() (int, error)
}

// Service runs periodic reconciliation and reports queue and disk state
type Service struct {
	config     *Config
	reconciler Reconciler
	downloads  port.DownloadRepository
	paths      port.PathResolver
	usage      port.DiskUsageProvider
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a new maintenance Service. usage may be nil.
func New(
	cfg *Config,
	reconciler Reconciler,
	downloads port.DownloadRepository,
	paths port.PathResolver,
	usage port.DiskUsageProvider,
	logger *zap.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ReconcileSchedule == "" {
		cfg.ReconcileSchedule = "@every 5m"
	}
	if cfg.DiskWarnPct == 0 {
		cfg.DiskWarnPct = 95
	}

	return &Service{
		config:     cfg,
		reconciler: reconciler,
		downloads:  downloads,
		paths:      paths,
		usage:      usage,
		logger:     logger,
	}
}

// Start schedules the maintenance jobs and blocks until ctx is done
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(s.config.ReconcileSchedule, s.RunOnce); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.config.ReconcileSchedule, err)
	}

	scheduler.Start()
	s.logger.Info("maintenance service started",
		zap.String("reconcile_schedule", s.config.ReconcileSchedule))

	<-ctx.Done()
	<-scheduler.Stop().Done()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce performs one reconciliation pass
func (s *Service) RunOnce() {
	s.resumeOrphans()
	s.logQueueStats()
	s.checkDiskUsage()
}

func (s *Service) resumeOrphans() {
	resumed, err := s.reconciler.ResumeOrphans()
	if err != nil {
		s.logger.Error("failed to resume orphaned downloads", zap.Error(err))
	} else if resumed > 0 {
		s.logger.Info("resumed orphaned downloads", zap.Int("count", resumed))
	}
}

func (s *Service) logQueueStats() {
	stats, err := s.downloads.CountByStatus()
	if err != nil {
		s.logger.Error("failed to count downloads", zap.Error(err))
		return
	}
	s.logger.Debug("download queue",
		zap.Int("queued", stats[domain.StatusQueued]),
		zap.Int("debriding", stats[domain.StatusDebriding]),
		zap.Int("transferring", stats[domain.StatusTransferring]),
		zap.Int("failed", stats[domain.StatusFailed]))
}

func (s *Service) checkDiskUsage() {
	if s.usage == nil || s.paths == nil {
		return
	}
	for _, category := range s.paths.Categories() {
		root, err := s.paths.Resolve(category)
		if err != nil {
			continue
		}
		usage, err := s.usage.DiskUsage(root)
		if err != nil {
			s.logger.Warn("failed to read disk usage", zap.String("category", category), zap.Error(err))
			continue
		}
		if usage.UsedPct >= s.config.DiskWarnPct {
			s.logger.Warn("destination volume almost full",
				zap.String("category", category),
				zap.String("path", root),
				zap.String("free", humanize.IBytes(usage.Free)),
				zap.Float64("used_pct", usage.UsedPct))
		}
	}
}
