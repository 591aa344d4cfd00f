package transfer

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

// rangeServer serves content with full byte-range support
func rangeServer(t *testing.T, content []byte, lastRange *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if lastRange != nil && r.Method == http.MethodGet {
			lastRange.Store(r.Header.Get("Range"))
		}
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// plainServer always returns the whole body and never advertises ranges
func plainServer(t *testing.T, content []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write(content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher() *Fetcher {
	return NewFetcher(FetcherConfig{
		ProbeTimeout:        time.Second,
		IdleTimeout:         2 * time.Second,
		SpeedSampleInterval: 10 * time.Millisecond,
		BufferSize:          64,
	}, zap.NewNop())
}

func TestDownloadFile_Full(t *testing.T) {
	content := payload(1000)
	srv := rangeServer(t, content, nil)
	dest := filepath.Join(t.TempDir(), "a.mkv")

	session := NewSession(1, 0, int64(len(content)))
	n, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{Sink: session})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
	assert.Equal(t, int64(1000), session.Bytes())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestDownloadFile_OverwritesExisting(t *testing.T) {
	content := payload(100)
	srv := rangeServer(t, content, nil)
	dest := filepath.Join(t.TempDir(), "a.mkv")
	require.NoError(t, os.WriteFile(dest, []byte(strings.Repeat("x", 500)), 0644))

	_, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{})
	require.NoError(t, err)

	got, _ := os.ReadFile(dest)
	assert.Equal(t, content, got)
}

func TestDownloadFile_Resume(t *testing.T) {
	content := payload(1000)
	var lastRange atomic.Value
	srv := rangeServer(t, content, &lastRange)
	dest := filepath.Join(t.TempDir(), "b.mkv")
	require.NoError(t, os.WriteFile(dest, content[:400], 0644))

	n, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{ResumeFrom: 400})
	require.NoError(t, err)
	assert.Equal(t, int64(600), n)
	assert.Equal(t, "bytes=400-", lastRange.Load())

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got, "no duplication or gap at the resume boundary")
}

func TestDownloadFile_ResumeUnsupported(t *testing.T) {
	content := payload(1000)

	t.Run("no accept-ranges", func(t *testing.T) {
		srv := plainServer(t, content)
		dest := filepath.Join(t.TempDir(), "b.mkv")
		require.NoError(t, os.WriteFile(dest, content[:400], 0644))

		_, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{ResumeFrom: 400})
		assert.ErrorIs(t, err, domain.ErrResumeUnsupported)

		got, _ := os.ReadFile(dest)
		assert.Len(t, got, 400, "partial file left untouched")
	})

	t.Run("range ignored", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Accept-Ranges", "bytes")
			if r.Method == http.MethodGet {
				w.Write(content)
			}
		}))
		defer srv.Close()

		dest := filepath.Join(t.TempDir(), "b.mkv")
		require.NoError(t, os.WriteFile(dest, content[:400], 0644))

		_, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{ResumeFrom: 400})
		assert.ErrorIs(t, err, domain.ErrResumeUnsupported)
	})

	t.Run("offset does not match file", func(t *testing.T) {
		srv := rangeServer(t, content, nil)
		dest := filepath.Join(t.TempDir(), "b.mkv")
		require.NoError(t, os.WriteFile(dest, content[:300], 0644))

		_, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{ResumeFrom: 400})
		assert.ErrorIs(t, err, domain.ErrResumeUnsupported)
	})
}

func TestDownloadFile_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, true},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			dest := filepath.Join(t.TempDir(), "x")
			_, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
			_, statErr := os.Stat(dest)
			assert.True(t, os.IsNotExist(statErr), "no file created on HTTP error")
		})
	}
}

func TestDownloadFile_Stall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("0123456789"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := NewFetcher(FetcherConfig{IdleTimeout: 100 * time.Millisecond}, zap.NewNop())
	_, err := f.DownloadFile(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransferStalled)
	assert.True(t, domain.IsRetryable(err))
}

func TestDownloadFile_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := newTestFetcher().DownloadFile(ctx, srv.URL, filepath.Join(t.TempDir(), "x"), Options{})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestDownloadFile_LocalWriteError(t *testing.T) {
	srv := rangeServer(t, payload(10), nil)
	dest := filepath.Join(t.TempDir(), "missing-dir", "x")

	_, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, dest, Options{})
	require.Error(t, err)
	assert.False(t, domain.IsRetryable(err))
}

type recordingSink struct {
	bytes  int64
	speeds []int64
}

func (s *recordingSink) Add(n int64)        { s.bytes += n }
func (s *recordingSink) SetSpeed(bps int64) { s.speeds = append(s.speeds, bps) }

func TestProgressReader_SamplesSpeed(t *testing.T) {
	sink := &recordingSink{}
	r := &progressReader{
		reader:     strings.NewReader(strings.Repeat("z", 1000)),
		sink:       sink,
		interval:   time.Second,
		lastSample: time.Now().Add(-2 * time.Second),
	}

	buf := make([]byte, 500)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 500, n)
	require.Len(t, sink.speeds, 1)
	assert.InDelta(t, 250, sink.speeds[0], 10, "500 bytes over ~2s")

	_, _ = r.Read(buf)
	assert.Len(t, sink.speeds, 1, "no new sample inside the window")
	assert.Equal(t, int64(1000), sink.bytes)
}

func TestDownloadFile_RetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestFetcher().DownloadFile(context.Background(), srv.URL, filepath.Join(t.TempDir(), "x"), Options{})
	after, ok := domain.GetRetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, after)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Zero(t, parseRetryAfter("-5"))
}
