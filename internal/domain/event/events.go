package event

import (
	"time"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// Event names. The download:* names are part of the client contract.
const (
	NameQueued          = "download:queued"
	NameProgress        = "download:progress"
	NameCompleted       = "download:complete"
	NameFailed          = "download:failed"
	NameCancelled       = "download:cancelled"
	NameFileTransferred = "file:transferred"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// UserEvent is an event delivered to the owner of a download
type UserEvent interface {
	DomainEvent
	// Owner returns the user the event is addressed to
	Owner() string
	// Payload returns the JSON body sent to the user
	Payload() any
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp  time.Time
	DownloadID string
	OwnerID    string
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// Owner returns the owning user
func (e BaseEvent) Owner() string {
	return e.OwnerID
}

func newBase(d *domain.Download) BaseEvent {
	return BaseEvent{Timestamp: time.Now(), DownloadID: d.ID, OwnerID: d.OwnerID}
}

// StatusPayload is sent for queued and cancelled downloads
type StatusPayload struct {
	DownloadID string        `json:"downloadId"`
	Status     domain.Status `json:"status"`
}

// ProgressPayload is sent for progress snapshots
type ProgressPayload struct {
	DownloadID string        `json:"downloadId"`
	Progress   float64       `json:"progress"`
	Speed      int64         `json:"speed"`
	Status     domain.Status `json:"status"`
}

// CompletedPayload is sent once all files are on disk
type CompletedPayload struct {
	DownloadID string `json:"downloadId"`
	Name       string `json:"name"`
}

// FailedPayload is sent when a download fails
type FailedPayload struct {
	DownloadID string `json:"downloadId"`
	Error      string `json:"error"`
}

// DownloadQueued is raised when a download record is created or retried
type DownloadQueued struct {
	BaseEvent
	Name  string
	Retry bool
}

// EventName returns the event name
func (e DownloadQueued) EventName() string {
	return NameQueued
}

// Payload returns the client body
func (e DownloadQueued) Payload() any {
	return StatusPayload{DownloadID: e.DownloadID, Status: domain.StatusQueued}
}

// NewDownloadQueued creates a new DownloadQueued event
func NewDownloadQueued(d *domain.Download, retry bool) DownloadQueued {
	return DownloadQueued{BaseEvent: newBase(d), Name: d.Name, Retry: retry}
}

// DownloadProgress is a progress snapshot during debriding or transferring
type DownloadProgress struct {
	BaseEvent
	Progress float64
	Speed    int64
	Status   domain.Status
}

// EventName returns the event name
func (e DownloadProgress) EventName() string {
	return NameProgress
}

// Payload returns the client body
func (e DownloadProgress) Payload() any {
	return ProgressPayload{
		DownloadID: e.DownloadID,
		Progress:   e.Progress,
		Speed:      e.Speed,
		Status:     e.Status,
	}
}

// NewDownloadProgress creates a new DownloadProgress event
func NewDownloadProgress(d *domain.Download, status domain.Status, progress float64, speed int64) DownloadProgress {
	return DownloadProgress{
		BaseEvent: newBase(d),
		Progress:  domain.RoundProgress(progress),
		Speed:     speed,
		Status:    status,
	}
}

// DownloadCompleted is raised when every file of a download is on disk
type DownloadCompleted struct {
	BaseEvent
	Name     string
	Files    int
	Bytes    int64
	Duration time.Duration
}

// EventName returns the event name
func (e DownloadCompleted) EventName() string {
	return NameCompleted
}

// Payload returns the client body
func (e DownloadCompleted) Payload() any {
	return CompletedPayload{DownloadID: e.DownloadID, Name: e.Name}
}

// NewDownloadCompleted creates a new DownloadCompleted event
func NewDownloadCompleted(d *domain.Download, files int, bytes int64, duration time.Duration) DownloadCompleted {
	return DownloadCompleted{
		BaseEvent: newBase(d),
		Name:      d.Name,
		Files:     files,
		Bytes:     bytes,
		Duration:  duration,
	}
}

// DownloadFailed is raised when a download moves to failed
type DownloadFailed struct {
	BaseEvent
	Name  string
	Error string
	Stage domain.Status
}

// EventName returns the event name
func (e DownloadFailed) EventName() string {
	return NameFailed
}

// Payload returns the client body
func (e DownloadFailed) Payload() any {
	return FailedPayload{DownloadID: e.DownloadID, Error: e.Error}
}

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(d *domain.Download, stage domain.Status, message string) DownloadFailed {
	return DownloadFailed{BaseEvent: newBase(d), Name: d.Name, Error: message, Stage: stage}
}

// DownloadCancelled is raised when a download is cancelled
type DownloadCancelled struct {
	BaseEvent
	Name string
	From domain.Status
}

// EventName returns the event name
func (e DownloadCancelled) EventName() string {
	return NameCancelled
}

// Payload returns the client body
func (e DownloadCancelled) Payload() any {
	return StatusPayload{DownloadID: e.DownloadID, Status: domain.StatusCancelled}
}

// NewDownloadCancelled creates a new DownloadCancelled event
func NewDownloadCancelled(d *domain.Download, from domain.Status) DownloadCancelled {
	return DownloadCancelled{BaseEvent: newBase(d), Name: d.Name, From: from}
}

// FileTransferred is raised when a single file lands on disk. It is internal
// and not delivered to users.
type FileTransferred struct {
	BaseEvent
	Filename string
	Path     string
	Bytes    int64
	Resumed  bool
}

// EventName returns the event name
func (e FileTransferred) EventName() string {
	return NameFileTransferred
}

// NewFileTransferred creates a new FileTransferred event
func NewFileTransferred(d *domain.Download, filename, path string, bytes int64, resumed bool) FileTransferred {
	return FileTransferred{
		BaseEvent: newBase(d),
		Filename:  filename,
		Path:      path,
		Bytes:     bytes,
		Resumed:   resumed,
	}
}
