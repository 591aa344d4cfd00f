package transfer

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// ProgressSink receives byte counts from the read loop of a file transfer
type ProgressSink interface {
	// Add records n more bytes written to disk
	Add(n int64)
	// SetSpeed records the latest sampled speed in bytes/sec
	SetSpeed(bytesPerSec int64)
}

// Session tracks one download's file batch. Counters are read by the
// progress reporter while the batch goroutine writes them.
type Session struct {
	StartedAt  time.Time
	TotalBytes int64
	TotalFiles int

	moved     atomic.Int64
	speed     atomic.Int64
	filesDone atomic.Int64
	progress  atomic.Uint64 // float64 bits
}

// NewSession creates a session for totalFiles files. alreadyDone of them
// are on disk; totalBytes is the planned size of the rest.
func NewSession(totalFiles, alreadyDone int, totalBytes int64) *Session {
	s := &Session{
		StartedAt:  time.Now(),
		TotalBytes: totalBytes,
		TotalFiles: totalFiles,
	}
	s.filesDone.Store(int64(alreadyDone))
	if totalFiles > 0 {
		s.SetProgress(float64(alreadyDone) / float64(totalFiles) * 100)
	}
	return s
}

// Add implements ProgressSink
func (s *Session) Add(n int64) {
	s.moved.Add(n)
}

// SetSpeed implements ProgressSink
func (s *Session) SetSpeed(bytesPerSec int64) {
	s.speed.Store(bytesPerSec)
}

// Bytes returns the bytes moved so far
func (s *Session) Bytes() int64 {
	return s.moved.Load()
}

// Speed returns the last sampled speed
func (s *Session) Speed() int64 {
	return s.speed.Load()
}

// FileDone marks one more file finished and returns the new progress
func (s *Session) FileDone() float64 {
	done := s.filesDone.Add(1)
	p := 100.0
	if s.TotalFiles > 0 {
		p = float64(done) / float64(s.TotalFiles) * 100
	}
	return s.SetProgress(p)
}

// FilesDone returns the number of finished files, pre-existing ones included
func (s *Session) FilesDone() int {
	return int(s.filesDone.Load())
}

// SetProgress stores p rounded to two decimals; progress never decreases.
func (s *Session) SetProgress(p float64) float64 {
	p = domain.RoundProgress(p)
	for {
		old := s.progress.Load()
		if p <= math.Float64frombits(old) {
			return math.Float64frombits(old)
		}
		if s.progress.CompareAndSwap(old, math.Float64bits(p)) {
			return p
		}
	}
}

// Progress returns the batch progress (0-100)
func (s *Session) Progress() float64 {
	return math.Float64frombits(s.progress.Load())
}

// Elapsed returns the time since the session started
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}

type nopSink struct{}

func (nopSink) Add(int64)      {}
func (nopSink) SetSpeed(int64) {}
