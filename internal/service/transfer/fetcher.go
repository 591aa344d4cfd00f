package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
)

// FetcherConfig contains file transfer settings
type FetcherConfig struct {
	ProbeTimeout        time.Duration // bound on the HEAD capability probe
	IdleTimeout         time.Duration // abort when no bytes arrive for this long
	SpeedSampleInterval time.Duration
	BufferSize          int
}

// DefaultFetcherConfig returns default transfer settings
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		ProbeTimeout:        10 * time.Second,
		IdleTimeout:         5 * time.Minute,
		SpeedSampleInterval: time.Second,
		BufferSize:          512 * 1024,
	}
}

// Options controls a single DownloadFile call
type Options struct {
	// ResumeFrom > 0 appends to the existing file starting at this offset
	ResumeFrom int64
	Sink       ProgressSink
}

// Fetcher streams remote files to disk with optional byte-range resume
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a new Fetcher
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	def := DefaultFetcherConfig()
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.SpeedSampleInterval <= 0 {
		cfg.SpeedSampleInterval = def.SpeedSampleInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	// No client timeout; the idle watchdog bounds stalls.
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.IdleTimeout,
		DisableCompression:    true,
	}

	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		logger: logger,
	}
}

// DownloadFile writes url to dest and returns the bytes written by this call.
// With ResumeFrom set it probes for range support first and returns
// domain.ErrResumeUnsupported when the server cannot continue the file;
// the caller then restarts from scratch.
func (f *Fetcher) DownloadFile(ctx context.Context, url, dest string, opts Options) (int64, error) {
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}

	if opts.ResumeFrom > 0 {
		info, err := os.Stat(dest)
		if err != nil || info.Size() != opts.ResumeFrom {
			return 0, domain.ErrResumeUnsupported
		}
		if err := f.probeRanges(ctx, url); err != nil {
			return 0, err
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(f.cfg.IdleTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if opts.ResumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", opts.ResumeFrom))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, f.networkError(ctx, &stalled, err)
	}
	defer resp.Body.Close()

	if opts.ResumeFrom > 0 {
		if resp.StatusCode != http.StatusPartialContent {
			f.logger.Debug("range request not honoured",
				zap.String("dest", dest),
				zap.Int("status", resp.StatusCode))
			return 0, domain.ErrResumeUnsupported
		}
	} else if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp.StatusCode, resp.Header.Get("Retry-After"))
	}

	file, err := openDestination(dest, opts.ResumeFrom > 0)
	if err != nil {
		return 0, err
	}

	reader := &progressReader{
		reader:     resp.Body,
		sink:       sink,
		interval:   f.cfg.SpeedSampleInterval,
		lastSample: time.Now(),
		onRead:     func() { watchdog.Reset(f.cfg.IdleTimeout) },
	}

	written, copyErr := readLoop(reqCtx, file, reader, make([]byte, f.cfg.BufferSize))
	reader.flush()
	closeErr := file.Close()

	if copyErr != nil {
		var werr *writeError
		if errors.As(copyErr, &werr) {
			return written, fmt.Errorf("failed to write %s: %w", dest, werr.err)
		}
		return written, f.networkError(ctx, &stalled, copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("failed to close %s: %w", dest, closeErr)
	}

	if resp.ContentLength > 0 && written < resp.ContentLength {
		return written, domain.NewRetryableError(
			fmt.Errorf("short body: got %d of %d bytes", written, resp.ContentLength), 0)
	}

	return written, nil
}

// probeRanges issues a HEAD request and requires "Accept-Ranges: bytes"
func (f *Fetcher) probeRanges(ctx context.Context, url string) error {
	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Debug("range probe failed", zap.Error(err))
		return domain.ErrResumeUnsupported
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 || !strings.Contains(strings.ToLower(resp.Header.Get("Accept-Ranges")), "bytes") {
		return domain.ErrResumeUnsupported
	}
	return nil
}

func (f *Fetcher) networkError(ctx context.Context, stalled *atomic.Bool, err error) error {
	if stalled.Load() {
		return domain.NewRetryableError(domain.ErrTransferStalled, 0)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.NewRetryableError(err, 0)
}

func statusError(code int, retryAfter string) error {
	err := fmt.Errorf("unexpected status %d %s", code, http.StatusText(code))
	switch {
	case code >= 500, code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return domain.NewRetryableError(err, parseRetryAfter(retryAfter))
	case code == http.StatusForbidden, code == http.StatusNotFound, code == http.StatusGone:
		// expired direct link; a fresh unlock usually fixes it
		return domain.NewRetryableError(err, 0)
	default:
		return err
	}
}

// parseRetryAfter reads the delay-seconds form of Retry-After
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func openDestination(dest string, appendMode bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	file, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dest, err)
	}
	return file, nil
}

// writeError marks a failure on the local side of the copy
type writeError struct {
	err error
}

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// readLoop moves chunks from src to dst until EOF or cancellation
func readLoop(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, &writeError{err: werr}
			}
			if w != n {
				return written, &writeError{err: io.ErrShortWrite}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// progressReader wraps a reader to report bytes and sampled speed
type progressReader struct {
	reader      io.Reader
	sink        ProgressSink
	interval    time.Duration
	lastSample  time.Time
	sinceSample int64
	onRead      func()
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sink.Add(int64(n))
		r.sinceSample += int64(n)
		if r.onRead != nil {
			r.onRead()
		}
	}

	if elapsed := time.Since(r.lastSample); elapsed >= r.interval {
		r.sink.SetSpeed(int64(float64(r.sinceSample) / elapsed.Seconds()))
		r.sinceSample = 0
		r.lastSample = time.Now()
	}

	return n, err
}

// flush publishes the speed of the final partial window
func (r *progressReader) flush() {
	if elapsed := time.Since(r.lastSample); r.sinceSample > 0 && elapsed > 0 {
		r.sink.SetSpeed(int64(float64(r.sinceSample) / elapsed.Seconds()))
	}
}
