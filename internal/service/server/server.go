package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Store is the slice of the download store the server reads directly
type Store interface {
	Ping() error
	CountByStatus() (domain.QueueStats, error)
}

// Server represents the HTTP API server
type Server struct {
	config          *Config
	store           Store
	logger          *zap.Logger
	server          *http.Server
	router          *mux.Router
	downloadHandler *DownloadHandler
	debugHandler    *DebugHandler
}

// New creates a new HTTP server. ws and gatherer may be nil to leave the
// websocket and metrics endpoints out.
func New(
	cfg *Config,
	downloads DownloadService,
	store Store,
	ws http.Handler,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		store:  store,
		logger: logger,
	}
	s.downloadHandler = NewDownloadHandler(downloads, logger)
	s.debugHandler = NewDebugHandler(store, logger)

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if ws != nil {
		r.Handle("/ws", ws).Methods(http.MethodGet)
	}

	r.HandleFunc("/debug/stats", s.debugHandler.HandleStats).Methods(http.MethodGet)

	// Registered on the root router: a PathPrefix subrouter answers a
	// method mismatch with 404 instead of 405.
	r.HandleFunc("/api/downloads", s.downloadHandler.HandleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/downloads", s.downloadHandler.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/api/downloads/{id}", s.downloadHandler.HandleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/downloads/{id}/retry", s.downloadHandler.HandleRetry).Methods(http.MethodPost)
	r.HandleFunc("/api/downloads/{id}/cancel", s.downloadHandler.HandleCancel).Methods(http.MethodPost)
	r.HandleFunc("/api/downloads/{id}/check", s.downloadHandler.HandleCheck).Methods(http.MethodPost)

	r.Use(LoggingMiddleware(logger))
	s.router = r

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database connection failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
