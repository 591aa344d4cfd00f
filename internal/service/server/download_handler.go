package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/service/downloads"
)

const maxBodyBytes = 1 << 20

// DownloadService is the set of download operations exposed over HTTP
type DownloadService interface {
	Enqueue(req downloads.EnqueueRequest) (*domain.Download, error)
	GetByID(id string) (*domain.Download, error)
	List(ownerID string, limit int) ([]*domain.Download, error)
	Retry(id string) (*domain.Download, error)
	Cancel(id string) (*domain.Download, error)
	ManualStatusCheck(ctx context.Context, id string) (*domain.Download, error)
}

// DownloadHandler handles /api/downloads requests
type DownloadHandler struct {
	service DownloadService
	logger  *zap.Logger
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(service DownloadService, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		service: service,
		logger:  logger,
	}
}

type createRequest struct {
	OwnerID    string `json:"ownerId"`
	Name       string `json:"name"`
	Size       string `json:"size"`
	Quality    string `json:"quality"`
	MagnetLink string `json:"magnetLink"`
	Category   string `json:"category"`
}

type downloadResponse struct {
	ID                string        `json:"id"`
	OwnerID           string        `json:"ownerId,omitempty"`
	Name              string        `json:"name"`
	MagnetLink        string        `json:"magnetLink"`
	Category          string        `json:"category"`
	Size              int64         `json:"size"`
	Quality           string        `json:"quality,omitempty"`
	Status            domain.Status `json:"status"`
	DebridingProgress float64       `json:"debridingProgress"`
	TransferProgress  float64       `json:"transferProgress"`
	DownloadSpeed     int64         `json:"downloadSpeed"`
	RemoteJobID       string        `json:"remoteJobId,omitempty"`
	Error             string        `json:"error,omitempty"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(d *domain.Download) downloadResponse {
	return downloadResponse{
		ID:                d.ID,
		OwnerID:           d.OwnerID,
		Name:              d.Name,
		MagnetLink:        d.MagnetLink,
		Category:          d.Category,
		Size:              d.Size,
		Quality:           d.Quality,
		Status:            d.Status,
		DebridingProgress: d.DebridingProgress,
		TransferProgress:  d.TransferProgress,
		DownloadSpeed:     d.DownloadSpeed,
		RemoteJobID:       d.RemoteJobID,
		Error:             d.Error,
		CompletedAt:       d.CompletedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// HandleCreate enqueues a new download
func (h *DownloadHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	d, err := h.service.Enqueue(downloads.EnqueueRequest{
		OwnerID:    req.OwnerID,
		Name:       req.Name,
		Size:       req.Size,
		Quality:    req.Quality,
		MagnetLink: req.MagnetLink,
		Category:   req.Category,
	})
	if err != nil {
		h.writeError(w, "enqueue", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(d))
}

// HandleList lists a user's downloads, newest first
func (h *DownloadHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("ownerId")
	if ownerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "ownerId is required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	list, err := h.service.List(ownerID, limit)
	if err != nil {
		h.writeError(w, "list", err)
		return
	}

	out := make([]downloadResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toResponse(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet returns one download
func (h *DownloadHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetByID(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(d))
}

// HandleRetry requeues a failed download
func (h *DownloadHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Retry(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, "retry", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(d))
}

// HandleCancel cancels an unfinished download
func (h *DownloadHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Cancel(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(d))
}

// HandleCheck polls the remote job immediately
func (h *DownloadHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.ManualStatusCheck(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, "status check", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(d))
}

func (h *DownloadHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: domain.ErrorMessage(err)})
}

func statusFor(err error) int {
	var remote *domain.RemoteError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrNoRemoteJob):
		return http.StatusConflict
	case errors.Is(err, downloads.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
