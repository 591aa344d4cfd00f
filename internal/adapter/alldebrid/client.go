package alldebrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/debrid-sync/internal/domain"
	"github.com/vertextoedge/debrid-sync/internal/port"
	"github.com/vertextoedge/debrid-sync/internal/util/ratelimiter"
)

// Client is an AllDebrid v4 API client
type Client struct {
	baseURL    string
	apiKey     string
	agent      string
	httpClient *http.Client
	limiter    *ratelimiter.Limiter
	logger     *zap.Logger
}

// Ensure Client implements port.DebridClient
var _ port.DebridClient = (*Client)(nil)

// ClientConfig contains client configuration
type ClientConfig struct {
	BaseURL            string
	APIKey             string
	Agent              string
	RequestTimeout     time.Duration
	MinRequestInterval time.Duration
}

// NewClient creates a new AllDebrid API client
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Agent == "" {
		cfg.Agent = "debrid-sync"
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		agent:   cfg.Agent,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		limiter: ratelimiter.New(cfg.MinRequestInterval),
		logger:  logger,
	}
}

// RegisterMagnet submits a magnet and returns the remote job id
func (c *Client) RegisterMagnet(ctx context.Context, magnet string) (string, error) {
	const op = "magnet upload"
	if strings.TrimSpace(magnet) == "" {
		return "", &domain.RemoteError{Op: op, Code: "MAGNET_NO_URI", Message: "magnet link is required"}
	}

	var data uploadData
	form := url.Values{"magnets[]": {magnet}}
	if err := c.doAPIRequest(ctx, op, http.MethodPost, pathMagnetUpload, form, &data); err != nil {
		return "", err
	}

	if len(data.Magnets) == 0 {
		return "", &domain.RemoteError{Op: op, Message: "no magnet in response"}
	}
	m := data.Magnets[0]
	if m.Error != nil {
		return "", &domain.RemoteError{Op: op, Code: m.Error.Code, Message: m.Error.Message}
	}
	if m.ID.String() == "" {
		return "", &domain.RemoteError{Op: op, Message: "magnet id missing from response"}
	}

	c.logger.Debug("magnet registered",
		zap.String("job_id", m.ID.String()),
		zap.String("hash", m.Hash),
		zap.Bool("ready", m.Ready))
	return m.ID.String(), nil
}

// GetJobStatus returns the normalized status of a remote job
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*domain.RemoteJobStatus, error) {
	const op = "magnet status"
	if jobID == "" {
		return nil, &domain.RemoteError{Op: op, Code: "MAGNET_INVALID_ID", Message: "job id is required"}
	}

	var data statusData
	params := url.Values{"id": {jobID}}
	if err := c.doAPIRequest(ctx, op, http.MethodGet, pathMagnetStatus, params, &data); err != nil {
		return nil, err
	}

	m, err := decodeMagnet(data.Magnets)
	if err != nil {
		return nil, &domain.RemoteError{Op: op, Message: "malformed status", Err: err, Transient: true}
	}
	return m.ToJobStatus(), nil
}

// UnlockLink converts a provider link into a direct download URL
func (c *Client) UnlockLink(ctx context.Context, link string) (string, error) {
	const op = "link unlock"
	if link == "" {
		return "", &domain.RemoteError{Op: op, Code: "LINK_IS_MISSING", Message: "link is required"}
	}

	var data unlockData
	if err := c.doAPIRequest(ctx, op, http.MethodPost, pathLinkUnlock, url.Values{"link": {link}}, &data); err != nil {
		return "", err
	}
	if data.Link == "" {
		return "", &domain.RemoteError{Op: op, Message: "no direct link in response"}
	}
	return data.Link, nil
}

// doAPIRequest performs an API call and decodes the envelope's data into out.
// Network failures, 429 and 5xx are transient; API-level errors are not.
func (c *Client) doAPIRequest(ctx context.Context, op, method, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("agent", c.agent)
	params.Set("apikey", c.apiKey)

	req, err := c.buildRequest(ctx, method, path, params)
	if err != nil {
		return &domain.RemoteError{Op: op, Message: "failed to create request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &domain.RemoteError{Op: op, Message: "request failed", Err: err, Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return &domain.RemoteError{
			Op:        op,
			Code:      fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:   http.StatusText(resp.StatusCode),
			Transient: true,
		}
	}

	var apiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return &domain.RemoteError{
			Op:        op,
			Code:      fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:   "failed to decode response",
			Err:       err,
			Transient: true,
		}
	}

	if apiResp.Status != "success" {
		info := apiResp.Error
		if info == nil {
			info = &ErrorInfo{Message: "unknown provider error"}
		}
		return &domain.RemoteError{Op: op, Code: info.Code, Message: info.Message}
	}

	if out != nil && len(apiResp.Data) > 0 {
		if err := json.Unmarshal(apiResp.Data, out); err != nil {
			return &domain.RemoteError{Op: op, Message: "failed to decode data", Err: err}
		}
	}
	return nil
}

func (c *Client) buildRequest(ctx context.Context, method, path string, params url.Values) (*http.Request, error) {
	endpoint := c.baseURL + path
	if method == http.MethodGet {
		return http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// IsAuthError reports whether err is a rejected API key
func IsAuthError(err error) bool {
	var re *domain.RemoteError
	return errors.As(err, &re) && strings.HasPrefix(re.Code, "AUTH_")
}
