package domain

import (
	"math"
	"time"
)

// Status is the lifecycle state of a download
type Status string

// Download status constants
const (
	StatusQueued       Status = "queued"
	StatusDebriding    Status = "debriding"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusQueued,
	StatusDebriding,
	StatusTransferring,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// transitions holds the allowed edges of the state machine.
// failed -> queued is reachable only through an explicit retry.
var transitions = map[Status][]Status{
	StatusQueued:       {StatusDebriding, StatusFailed, StatusCancelled},
	StatusDebriding:    {StatusTransferring, StatusFailed, StatusCancelled},
	StatusTransferring: {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:       {StatusQueued},
}

// ParseStatus converts a stored string into a Status
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrInvalidInput
}

// IsValid reports whether s is one of the known statuses
func (s Status) IsValid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no automatic processing follows this status
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the status is owned by a running worker
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusDebriding || s == StatusTransferring
}

// CanTransitionTo reports whether moving from s to next is a legal edge
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Download is the persistent record of one queued torrent
type Download struct {
	ID         string
	OwnerID    string
	Name       string
	MagnetLink string
	Category   string
	Size       int64
	Quality    string

	// State
	Status            Status
	DebridingProgress float64
	TransferProgress  float64
	DownloadSpeed     int64
	RemoteJobID       string
	Error             string

	// Timestamps
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DownloadUpdate is a partial update; nil fields are left untouched.
// An empty string clears RemoteJobID or Error.
type DownloadUpdate struct {
	Status            *Status
	DebridingProgress *float64
	TransferProgress  *float64
	DownloadSpeed     *int64
	RemoteJobID       *string
	Error             *string
	CompletedAt       *time.Time
}

// IsEmpty reports whether the update changes nothing
func (u DownloadUpdate) IsEmpty() bool {
	return u.Status == nil && u.DebridingProgress == nil && u.TransferProgress == nil &&
		u.DownloadSpeed == nil && u.RemoteJobID == nil && u.Error == nil && u.CompletedAt == nil
}

// Apply copies the set fields of u onto d
func (d *Download) Apply(u DownloadUpdate) {
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.DebridingProgress != nil {
		d.DebridingProgress = *u.DebridingProgress
	}
	if u.TransferProgress != nil {
		d.TransferProgress = *u.TransferProgress
	}
	if u.DownloadSpeed != nil {
		d.DownloadSpeed = *u.DownloadSpeed
	}
	if u.RemoteJobID != nil {
		d.RemoteJobID = *u.RemoteJobID
	}
	if u.Error != nil {
		d.Error = *u.Error
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		d.CompletedAt = &t
	}
}

// RetryUpdate resets exactly the fields a retry is allowed to touch
func RetryUpdate() DownloadUpdate {
	return DownloadUpdate{
		Status:            Ptr(StatusQueued),
		DebridingProgress: Ptr(0.0),
		TransferProgress:  Ptr(0.0),
		DownloadSpeed:     Ptr(int64(0)),
		RemoteJobID:       Ptr(""),
	}
}

// CompletedUpdate pins the record at 100% with no speed
func CompletedUpdate(at time.Time) DownloadUpdate {
	return DownloadUpdate{
		Status:            Ptr(StatusCompleted),
		DebridingProgress: Ptr(100.0),
		TransferProgress:  Ptr(100.0),
		DownloadSpeed:     Ptr(int64(0)),
		CompletedAt:       &at,
	}
}

// FailedUpdate marks the record failed with a human-readable message
func FailedUpdate(message string) DownloadUpdate {
	return DownloadUpdate{
		Status:        Ptr(StatusFailed),
		DownloadSpeed: Ptr(int64(0)),
		Error:         Ptr(message),
	}
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// Percent returns done/total as a 0-100 value rounded to two decimals
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return RoundProgress(float64(done) / float64(total) * 100)
}

// RoundProgress clamps p to [0,100] and rounds it to two decimals
func RoundProgress(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return math.Round(p*100) / 100
}

// QueueStats counts downloads per status
type QueueStats map[Status]int
