package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	AllDebrid     AllDebridConfig     `mapstructure:"alldebrid"`
	Downloads     DownloadsConfig     `mapstructure:"downloads"`
	Paths         map[string]string   `mapstructure:"paths"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
}

// AllDebridConfig contains debrid API configuration
type AllDebridConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	APIKey             string `mapstructure:"api_key"`
	Agent              string `mapstructure:"agent"`
	RequestTimeout     string `mapstructure:"request_timeout"`
	MinRequestInterval string `mapstructure:"min_request_interval"`
}

// DownloadsConfig contains orchestration settings
type DownloadsConfig struct {
	PollInterval        string `mapstructure:"poll_interval"`
	StatusTimeout       string `mapstructure:"status_timeout"`
	ProgressInterval    string `mapstructure:"progress_interval"`
	TransferTimeout     string `mapstructure:"transfer_timeout"`
	ProbeTimeout        string `mapstructure:"probe_timeout"`
	SpeedSampleInterval string `mapstructure:"speed_sample_interval"`
	FileRetries         int    `mapstructure:"file_retries"`
	UnlockRetries       int    `mapstructure:"unlock_retries"`
	BufferSizeKB        int    `mapstructure:"buffer_size_kb"`
	ReserveSpaceMB      int    `mapstructure:"reserve_space_mb"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr       string   `mapstructure:"bind_addr"`
	ReadTimeout    string   `mapstructure:"read_timeout"`
	WriteTimeout   string   `mapstructure:"write_timeout"`
	IdleTimeout    string   `mapstructure:"idle_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// NotificationsConfig contains push notification settings
type NotificationsConfig struct {
	PushbulletAPIKey string `mapstructure:"pushbullet_api_key"`
}

// MaintenanceConfig contains reconciliation settings
type MaintenanceConfig struct {
	ReconcileSchedule string `mapstructure:"reconcile_schedule"`
}

// Load loads configuration from the specified file path.
// A missing file is tolerated when every required key comes from the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DEBRID_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alldebrid.base_url", "https://api.alldebrid.com/v4")
	v.SetDefault("alldebrid.api_key", "")
	v.SetDefault("alldebrid.agent", "debrid-sync")
	v.SetDefault("alldebrid.request_timeout", "30s")
	v.SetDefault("alldebrid.min_request_interval", "250ms")
	v.SetDefault("downloads.poll_interval", "8s")
	v.SetDefault("downloads.status_timeout", "30s")
	v.SetDefault("downloads.progress_interval", "2s")
	v.SetDefault("downloads.transfer_timeout", "5m")
	v.SetDefault("downloads.probe_timeout", "10s")
	v.SetDefault("downloads.speed_sample_interval", "1s")
	v.SetDefault("downloads.file_retries", 3)
	v.SetDefault("downloads.unlock_retries", 3)
	v.SetDefault("downloads.buffer_size_kb", 512)
	v.SetDefault("downloads.reserve_space_mb", 512)
	v.SetDefault("paths.movie", "/data/movies")
	v.SetDefault("paths.series", "/data/series")
	v.SetDefault("paths.music", "/data/music")
	v.SetDefault("http.bind_addr", "0.0.0.0:8080")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "debrid-sync.db")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("notifications.pushbullet_api_key", "")
	v.SetDefault("maintenance.reconcile_schedule", "@every 5m")
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.AllDebrid.BaseURL == "" {
		return fmt.Errorf("alldebrid.base_url is required")
	}
	if c.AllDebrid.APIKey == "" {
		return fmt.Errorf("alldebrid.api_key is required")
	}

	durations := map[string]string{
		"alldebrid.request_timeout":       c.AllDebrid.RequestTimeout,
		"alldebrid.min_request_interval":  c.AllDebrid.MinRequestInterval,
		"downloads.poll_interval":         c.Downloads.PollInterval,
		"downloads.status_timeout":        c.Downloads.StatusTimeout,
		"downloads.progress_interval":     c.Downloads.ProgressInterval,
		"downloads.transfer_timeout":      c.Downloads.TransferTimeout,
		"downloads.probe_timeout":         c.Downloads.ProbeTimeout,
		"downloads.speed_sample_interval": c.Downloads.SpeedSampleInterval,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Downloads.FileRetries < 0 {
		return fmt.Errorf("downloads.file_retries must not be negative")
	}
	if c.Downloads.UnlockRetries < 0 {
		return fmt.Errorf("downloads.unlock_retries must not be negative")
	}

	if len(c.Paths) == 0 {
		return fmt.Errorf("paths must map at least one category")
	}
	for category, dir := range c.Paths {
		if dir == "" {
			return fmt.Errorf("paths.%s must not be empty", category)
		}
	}

	if c.Maintenance.ReconcileSchedule == "" {
		return fmt.Errorf("maintenance.reconcile_schedule is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func parseOr(value string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(value)
	if d <= 0 {
		return fallback
	}
	return d
}

// GetRequestTimeout returns the per-request API timeout
func (c *AllDebridConfig) GetRequestTimeout() time.Duration {
	return parseOr(c.RequestTimeout, 30*time.Second)
}

// GetMinRequestInterval returns the minimum spacing between API calls
func (c *AllDebridConfig) GetMinRequestInterval() time.Duration {
	d, _ := time.ParseDuration(c.MinRequestInterval)
	return d
}

// GetPollInterval returns the remote status poll cadence
func (c *DownloadsConfig) GetPollInterval() time.Duration {
	return parseOr(c.PollInterval, 8*time.Second)
}

// GetStatusTimeout returns the timeout for a single status call
func (c *DownloadsConfig) GetStatusTimeout() time.Duration {
	return parseOr(c.StatusTimeout, 30*time.Second)
}

// GetProgressInterval returns the progress snapshot interval
func (c *DownloadsConfig) GetProgressInterval() time.Duration {
	return parseOr(c.ProgressInterval, 2*time.Second)
}

// GetTransferTimeout returns the stall timeout for file transfers
func (c *DownloadsConfig) GetTransferTimeout() time.Duration {
	return parseOr(c.TransferTimeout, 5*time.Minute)
}

// GetProbeTimeout returns the range-capability probe timeout
func (c *DownloadsConfig) GetProbeTimeout() time.Duration {
	return parseOr(c.ProbeTimeout, 10*time.Second)
}

// GetSpeedSampleInterval returns the speed sampling window
func (c *DownloadsConfig) GetSpeedSampleInterval() time.Duration {
	return parseOr(c.SpeedSampleInterval, time.Second)
}

// GetBufferSize returns the copy buffer size in bytes
func (c *DownloadsConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 512 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetReserveSpace returns the free space kept in reserve, in bytes
func (c *DownloadsConfig) GetReserveSpace() int64 {
	if c.ReserveSpaceMB < 0 {
		return 0
	}
	return int64(c.ReserveSpaceMB) * 1024 * 1024
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseOr(c.IdleTimeout, 60*time.Second)
}
