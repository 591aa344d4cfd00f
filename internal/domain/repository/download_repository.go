package repository

import (
	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// DownloadRepository defines persistence for download records.
// Each call is atomic on its own; callers never need multi-record transactions.
type DownloadRepository interface {
	// Create persists a new record, filling CreatedAt/UpdatedAt
	Create(d *domain.Download) error

	// FindByID returns domain.ErrNotFound when no record has this id
	FindByID(id string) (*domain.Download, error)

	// Update applies a partial update and returns the stored record
	Update(id string, u domain.DownloadUpdate) (*domain.Download, error)

	// Reload refreshes d in place from storage
	Reload(d *domain.Download) error

	// ListByStatus returns records in any of the given statuses, oldest first
	ListByStatus(statuses ...domain.Status) ([]*domain.Download, error)

	// ListByOwner returns a user's records, newest first; limit <= 0 means all
	ListByOwner(ownerID string, limit int) ([]*domain.Download, error)

	// CountByStatus returns the number of records per status
	CountByStatus() (domain.QueueStats, error)
}
