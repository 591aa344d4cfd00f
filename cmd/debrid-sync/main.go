package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/adapter/alldebrid"
	"github.com/vertextoedge/debrid-sync/internal/adapter/filesystem"
	"github.com/vertextoedge/debrid-sync/internal/adapter/pushbullet"
	"github.com/vertextoedge/debrid-sync/internal/adapter/sqlite"
	"github.com/vertextoedge/debrid-sync/internal/adapter/websocket"
	"github.com/vertextoedge/debrid-sync/internal/config"
	"github.com/vertextoedge/debrid-sync/internal/domain/event"
	"github.com/vertextoedge/debrid-sync/internal/logger"
	"github.com/vertextoedge/debrid-sync/internal/service/downloads"
	"github.com/vertextoedge/debrid-sync/internal/service/inventory"
	"github.com/vertextoedge/debrid-sync/internal/service/maintenance"
	"github.com/vertextoedge/debrid-sync/internal/service/server"
	"github.com/vertextoedge/debrid-sync/internal/service/transfer"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "debrid-sync",
		Usage:   "move torrents through a debrid service onto local storage",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				Value:   "config.yaml",
				EnvVars: []string{"DEBRID_SYNC_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before the configuration",
				Value: ".env",
			},
		},
		Before: loadEnvFile,
		Action: serve,
		Commands: []*cli.Command{{
			Name:   "serve",
			Usage:  "run the download service and HTTP API",
			Action: serve,
		}, {
			Name:   "validate-config",
			Usage:  "load and validate the configuration, then exit",
			Action: validateConfig,
		}},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func validateConfig(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	categories := make([]string, 0, len(cfg.Paths))
	for category := range cfg.Paths {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	fmt.Printf("configuration OK (%s)\n", c.String("config"))
	for _, category := range categories {
		fmt.Printf("  %-10s -> %s\n", category, cfg.Paths[category])
	}
	return nil
}

func serve(c *cli.Context) error {
	configPath := c.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	zapLogger := logger.GetZapLogger()
	zapLogger.Info("starting debrid-sync",
		zap.String("version", version),
		zap.String("config", configPath),
	)

	fsManager, err := filesystem.NewManager(cfg.Paths)
	if err != nil {
		zapLogger.Fatal("failed to create filesystem manager", zap.Error(err))
	}

	store, err := sqlite.Open(cfg.Database.Path, cfg.Database.BusyTimeoutMs)
	if err != nil {
		zapLogger.Fatal("failed to open database", zap.Error(err), zap.String("path", cfg.Database.Path))
	}
	defer store.Close()

	client := alldebrid.NewClient(alldebrid.ClientConfig{
		BaseURL:            cfg.AllDebrid.BaseURL,
		APIKey:             cfg.AllDebrid.APIKey,
		Agent:              cfg.AllDebrid.Agent,
		RequestTimeout:     cfg.AllDebrid.GetRequestTimeout(),
		MinRequestInterval: cfg.AllDebrid.GetMinRequestInterval(),
	}, zapLogger)

	// Events
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := websocket.NewHub(cfg.HTTP.AllowedOrigins, zapLogger)
	dispatcher := event.NewInMemoryDispatcher(zapLogger)
	dispatcher.Subscribe(event.NewLoggingHandler(zapLogger))
	dispatcher.Subscribe(event.NewMetricsHandler(registry))
	dispatcher.Subscribe(hub)

	var notifier *pushbullet.Notifier
	if cfg.Notifications.PushbulletAPIKey != "" {
		notifier = pushbullet.New(cfg.Notifications.PushbulletAPIKey, zapLogger)
		dispatcher.Subscribe(notifier)
		zapLogger.Info("pushbullet notifications enabled")
	}

	// Download pipeline
	fetcher := transfer.NewFetcher(transfer.FetcherConfig{
		ProbeTimeout:        cfg.Downloads.GetProbeTimeout(),
		IdleTimeout:         cfg.Downloads.GetTransferTimeout(),
		SpeedSampleInterval: cfg.Downloads.GetSpeedSampleInterval(),
		BufferSize:          cfg.Downloads.GetBufferSize(),
	}, zapLogger)

	coordinator := transfer.New(&transfer.Config{
		StatusTimeout:    cfg.Downloads.GetStatusTimeout(),
		ProgressInterval: cfg.Downloads.GetProgressInterval(),
		FileRetries:      cfg.Downloads.FileRetries,
		RemoteRetries:    cfg.Downloads.UnlockRetries,
		RetryDelay:       2 * time.Second,
	},
		client,
		store,
		fsManager,
		inventory.New(zapLogger),
		fetcher,
		transfer.NewSpaceManager(fsManager, cfg.Downloads.GetReserveSpace()),
		dispatcher,
		zapLogger,
	)

	machine := downloads.New(&downloads.Config{
		PollInterval:  cfg.Downloads.GetPollInterval(),
		StatusTimeout: cfg.Downloads.GetStatusTimeout(),
	}, client, store, fsManager, coordinator, dispatcher, zapLogger)

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "debrid_sync",
		Name:      "active_downloads",
		Help:      "Downloads with a running worker.",
	}, func() float64 { return float64(machine.ActiveCount()) }))

	maintenanceService := maintenance.New(&maintenance.Config{
		ReconcileSchedule: cfg.Maintenance.ReconcileSchedule,
	}, machine, store, fsManager, fsManager, zapLogger)

	httpServer := server.New(&server.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}, machine, store, hub, registry, zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := machine.Start(ctx); err != nil {
			zapLogger.Error("download machine stopped with error", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := maintenanceService.Start(ctx); err != nil && err != context.Canceled {
			zapLogger.Error("maintenance service stopped with error", zap.Error(err))
		}
	}()

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.Strings("categories", fsManager.Categories()),
	)
	<-ctx.Done()

	zapLogger.Info("shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}
	hub.Close()

	maintenanceService.Stop()
	wg.Wait()

	if notifier != nil {
		notifier.Flush()
	}

	zapLogger.Info("application stopped successfully")
	return nil
}
