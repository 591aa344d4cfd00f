package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

const downloadColumns = `id, owner_id, name, magnet_link, category, size, quality,
	status, debriding_progress, transfer_progress, download_speed,
	remote_job_id, error, completed_at, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// Create persists a new download record
func (s *Store) Create(d *domain.Download) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = domain.StatusQueued
	}

	query := `INSERT INTO downloads (` + downloadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		d.ID, d.OwnerID, d.Name, d.MagnetLink, d.Category, d.Size, nullString(d.Quality),
		string(d.Status), d.DebridingProgress, d.TransferProgress, d.DownloadSpeed,
		nullString(d.RemoteJobID), nullString(d.Error), nullTime(d.CompletedAt),
		d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID retrieves a download by ID
func (s *Store) FindByID(id string) (*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE id = ?`
	return scanDownload(s.db.QueryRow(query, id))
}

// Update applies a partial update inside a transaction and returns the stored record
func (s *Store) Update(id string, u domain.DownloadUpdate) (*domain.Download, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d, err := scanDownload(tx.QueryRow(`SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if u.IsEmpty() {
		return d, nil
	}

	d.Apply(u)
	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE downloads
		SET status = ?, debriding_progress = ?, transfer_progress = ?, download_speed = ?,
			remote_job_id = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = tx.Exec(query,
		string(d.Status), d.DebridingProgress, d.TransferProgress, d.DownloadSpeed,
		nullString(d.RemoteJobID), nullString(d.Error), nullTime(d.CompletedAt), d.UpdatedAt,
		d.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload refreshes d in place from storage
func (s *Store) Reload(d *domain.Download) error {
	fresh, err := s.FindByID(d.ID)
	if err != nil {
		return err
	}
	*d = *fresh
	return nil
}

// ListByStatus returns downloads in any of the given statuses, oldest first
func (s *Store) ListByStatus(statuses ...domain.Status) ([]*domain.Download, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	query := `SELECT ` + downloadColumns + ` FROM downloads
		WHERE status IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY created_at ASC`

	return s.queryDownloads(query, args...)
}

// ListByOwner returns a user's downloads, newest first
func (s *Store) ListByOwner(ownerID string, limit int) ([]*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads
		WHERE owner_id = ?
		ORDER BY created_at DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryDownloads(query, args...)
}

// CountByStatus returns the number of downloads per status
func (s *Store) CountByStatus() (domain.QueueStats, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM downloads GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(domain.QueueStats)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[domain.Status(status)] = count
	}
	return stats, rows.Err()
}

func (s *Store) queryDownloads(query string, args ...any) ([]*domain.Download, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*domain.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

func scanDownload(row rowScanner) (*domain.Download, error) {
	d := &domain.Download{}
	var status string
	var quality, remoteJobID, errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.OwnerID, &d.Name, &d.MagnetLink, &d.Category, &d.Size, &quality,
		&status, &d.DebridingProgress, &d.TransferProgress, &d.DownloadSpeed,
		&remoteJobID, &errMsg, &completedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Status = domain.Status(status)
	d.Quality = quality.String
	d.RemoteJobID = remoteJobID.String
	d.Error = errMsg.String
	if completedAt.Valid {
		t := completedAt.Time
		d.CompletedAt = &t
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueConstraintError checks if the error is a unique constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed: PRIMARY KEY")
}
