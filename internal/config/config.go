package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	StaticDir string `toml:"static_dir"`
}

// Server contains HTTP listener configuration.
type Server struct {
	Bind           string  `toml:"bind"`
	APIToken       string  `toml:"api_token"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// Pledge contains limits and timing for the payment flow.
type Pledge struct {
	MinSatoshi             int64    `toml:"min_satoshi_qnt"`
	MaxTextLength          int      `toml:"max_text_length"`
	Models                 []string `toml:"models"`
	SettlementPollInterval int      `toml:"settlement_poll_interval"`
	SettlementTimeout      int      `toml:"settlement_timeout"`
}

// Nostr contains relay connection settings.
type Nostr struct {
	Relays       []string `toml:"relays"`
	QueryTimeout int      `toml:"query_timeout"`
}

// Widget contains alert overlay timing. Millisecond fields mirror the
// environment variables of the same name.
type Widget struct {
	NotifyAudioURL     string   `toml:"notify_audio_url"`
	QueueCheckInterval int      `toml:"queue_check_interval"`
	DisplayDelay       int      `toml:"display_delay"`
	HideDelay          int      `toml:"hide_delay"`
	LookbackSeconds    int      `toml:"lookback_seconds"`
	StepTimeout        int      `toml:"step_timeout"`
	PlayerCommand      string   `toml:"player_command"`
	PlayerArgs         []string `toml:"player_args"`
}

// TTS contains speech synthesis backend settings. Rate, volume, and pitch
// are percentages relative to the voice's natural delivery.
type TTS struct {
	BaseURL        string `toml:"base_url"`
	Voice          string `toml:"voice"`
	Format         string `toml:"format"`
	Rate           int    `toml:"rate"`
	Volume         int    `toml:"volume"`
	Pitch          int    `toml:"pitch"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Alby contains credentials for invoice lookups by payment hash.
type Alby struct {
	Token          string `toml:"token"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	PledgeSettled  bool   `toml:"pledge_settled"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for zapvoice.
//
// Configuration sections by subsystem:
//   - Paths: data (ledger, lock), logs, and static assets
//   - Server: HTTP bind address and rate limiting
//   - Pledge: submission limits and settlement polling
//   - Nostr: relay list and query timeout
//   - Widget: alert queue cadence and overlay choreography delays
//   - TTS: speech synthesis backend and voice defaults
//   - Alby: invoice lookups by payment hash
//   - Notifications: ntfy push notifications for the streamer
//   - Logging: log format and level
//   - Metrics: Prometheus exposition
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Pledge        Pledge        `toml:"pledge"`
	Nostr         Nostr         `toml:"nostr"`
	Widget        Widget        `toml:"widget"`
	TTS           TTS           `toml:"tts"`
	Alby          Alby          `toml:"alby"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file, then applies
// .env and environment overrides. The returned config has all path fields
// expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("zapvoice.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for server operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns the SQLite database backing pledges and alert history.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// LockPath returns the single-instance lock file for the server process.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "zapvoice.lock")
}

// QueueCheckInterval is the alert and goal polling cadence.
func (c *Config) QueueCheckInterval() time.Duration {
	return time.Duration(c.Widget.QueueCheckInterval) * time.Millisecond
}

// DisplayDelay is how long the overlay stays visible before speech starts.
func (c *Config) DisplayDelay() time.Duration {
	return time.Duration(c.Widget.DisplayDelay) * time.Millisecond
}

// HideDelay is the pause after hiding the overlay before the next alert.
func (c *Config) HideDelay() time.Duration {
	return time.Duration(c.Widget.HideDelay) * time.Millisecond
}

// Lookback bounds how far back the alert poller searches for receipts.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Widget.LookbackSeconds) * time.Second
}

// StepTimeout bounds how long a presenter may take to acknowledge playback.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Widget.StepTimeout) * time.Second
}

// SettlementPollInterval is the invoice verification cadence.
func (c *Config) SettlementPollInterval() time.Duration {
	return time.Duration(c.Pledge.SettlementPollInterval) * time.Second
}

// SettlementTimeout is how long a pledge waits for payment. Zero means no limit.
func (c *Config) SettlementTimeout() time.Duration {
	return time.Duration(c.Pledge.SettlementTimeout) * time.Second
}

// QueryTimeout bounds a single relay query.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Nostr.QueryTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
