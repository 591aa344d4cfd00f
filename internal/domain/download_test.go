package domain

import (
	"testing"
	"time"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusDebriding, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusCompleted, false},
		{StatusQueued, StatusTransferring, false},
		{StatusDebriding, StatusTransferring, true},
		{StatusDebriding, StatusCompleted, false},
		{StatusDebriding, StatusCancelled, true},
		{StatusTransferring, StatusCompleted, true},
		{StatusTransferring, StatusFailed, true},
		{StatusTransferring, StatusQueued, false},
		{StatusFailed, StatusQueued, true},
		{StatusFailed, StatusDebriding, false},
		{StatusCompleted, StatusQueued, false},
		{StatusCancelled, StatusQueued, false},
		{StatusCancelled, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_Predicates(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
		if s.IsTerminal() == s.IsActive() {
			t.Errorf("%s: terminal and active must be exclusive", s)
		}
	}
	if Status("paused").IsValid() {
		t.Error("unknown status should be invalid")
	}
	if _, err := ParseStatus("nope"); err == nil {
		t.Error("ParseStatus(nope) should fail")
	}
}

func TestRoundProgress(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{25, 25},
		{33.33333, 33.33},
		{66.666, 66.67},
		{-4, 0},
		{140, 100},
	}
	for _, tt := range tests {
		if got := RoundProgress(tt.in); got != tt.want {
			t.Errorf("RoundProgress(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(50, 200); got != 25 {
		t.Errorf("Percent(50, 200) = %v, want 25", got)
	}
	if got := Percent(10, 0); got != 0 {
		t.Errorf("Percent with zero total = %v, want 0", got)
	}
	if got := Percent(1, 3); got != 33.33 {
		t.Errorf("Percent(1, 3) = %v, want 33.33", got)
	}
}

func TestDownload_ApplyRetryUpdate(t *testing.T) {
	completed := time.Now()
	d := &Download{
		ID:                "id-1",
		Name:              "Movie",
		MagnetLink:        "magnet:?xt=urn:btih:ABC",
		Category:          "movie",
		Status:            StatusFailed,
		DebridingProgress: 80,
		TransferProgress:  50,
		DownloadSpeed:     1000,
		RemoteJobID:       "42",
		Error:             "boom",
		CompletedAt:       &completed,
	}

	d.Apply(RetryUpdate())

	if d.Status != StatusQueued || d.DebridingProgress != 0 || d.TransferProgress != 0 ||
		d.DownloadSpeed != 0 || d.RemoteJobID != "" {
		t.Errorf("retry did not reset state: %+v", d)
	}
	if d.ID != "id-1" || d.Name != "Movie" || d.MagnetLink == "" || d.Category != "movie" {
		t.Errorf("retry touched identity fields: %+v", d)
	}
	if d.Error != "boom" || d.CompletedAt == nil {
		t.Errorf("retry touched fields outside its reset set: %+v", d)
	}
}

func TestCompletedUpdate(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &Download{Status: StatusTransferring, TransferProgress: 50, DownloadSpeed: 99}
	d.Apply(CompletedUpdate(at))

	if d.Status != StatusCompleted || d.TransferProgress != 100 || d.DebridingProgress != 100 || d.DownloadSpeed != 0 {
		t.Errorf("unexpected record after completion: %+v", d)
	}
	if d.CompletedAt == nil || !d.CompletedAt.Equal(at) {
		t.Errorf("CompletedAt = %v, want %v", d.CompletedAt, at)
	}
}

func TestDownloadUpdate_IsEmpty(t *testing.T) {
	if !(DownloadUpdate{}).IsEmpty() {
		t.Error("zero update should be empty")
	}
	if (DownloadUpdate{Error: Ptr("")}).IsEmpty() {
		t.Error("clearing error is not an empty update")
	}
}

func TestRemoteJobStatus_Progress(t *testing.T) {
	s := &RemoteJobStatus{State: RemoteDownloading, BytesDownloaded: 50, BytesTotal: 200}
	if got := s.Progress(); got != 25.00 {
		t.Errorf("Progress() = %v, want 25.00", got)
	}

	s = &RemoteJobStatus{Files: []RemoteFile{{Size: 10}, {Size: 32}}}
	if got := s.TotalSize(); got != 42 {
		t.Errorf("TotalSize() = %v, want 42", got)
	}
}
