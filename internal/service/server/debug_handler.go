package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	store  Store
	logger *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(store Store, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		store:  store,
		logger: logger,
	}
}

// HandleStats reports how many downloads are in each status
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.CountByStatus()
	if err != nil {
		h.logger.Error("failed to get queue stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to get queue stats"})
		return
	}

	counts := make(map[domain.Status]int, len(domain.AllStatuses))
	total := 0
	for _, st := range domain.AllStatuses {
		counts[st] = stats[st]
		total += stats[st]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue_stats": counts,
		"total":       total,
	})
}
