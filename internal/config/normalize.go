package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizePledge()
	c.normalizeNostr()
	c.normalizeWidget()
	c.normalizeTTS()
	c.normalizeAlby()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StaticDir) == "" {
		c.Paths.StaticDir = defaultStaticDir
	}
	if c.Paths.StaticDir, err = expandPath(c.Paths.StaticDir); err != nil {
		return fmt.Errorf("paths.static_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.RateLimitRPS <= 0 {
		c.Server.RateLimitRPS = defaultRateLimitRPS
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = defaultRateLimitBurst
	}
}

func (c *Config) normalizePledge() {
	models := make([]string, 0, len(c.Pledge.Models))
	seen := make(map[string]struct{}, len(c.Pledge.Models))
	for _, model := range c.Pledge.Models {
		trimmed := strings.TrimSpace(model)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		models = append(models, trimmed)
	}
	c.Pledge.Models = models
	if c.Pledge.SettlementPollInterval <= 0 {
		c.Pledge.SettlementPollInterval = defaultSettlementPollInterval
	}
	if c.Pledge.SettlementTimeout < 0 {
		c.Pledge.SettlementTimeout = 0
	}
}

func (c *Config) normalizeNostr() {
	relays := make([]string, 0, len(c.Nostr.Relays))
	seen := make(map[string]struct{}, len(c.Nostr.Relays))
	for _, relay := range c.Nostr.Relays {
		normalized := strings.TrimRight(strings.TrimSpace(relay), "/")
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		relays = append(relays, normalized)
	}
	if len(relays) == 0 {
		relays = append(relays, defaultRelays...)
	}
	c.Nostr.Relays = relays
	if c.Nostr.QueryTimeout <= 0 {
		c.Nostr.QueryTimeout = defaultQueryTimeout
	}
}

func (c *Config) normalizeWidget() {
	c.Widget.NotifyAudioURL = strings.TrimSpace(c.Widget.NotifyAudioURL)
	if c.Widget.NotifyAudioURL == "" {
		c.Widget.NotifyAudioURL = defaultNotifyAudioURL
	}
	if c.Widget.QueueCheckInterval <= 0 {
		c.Widget.QueueCheckInterval = defaultQueueCheckInterval
	}
	if c.Widget.DisplayDelay < 0 {
		c.Widget.DisplayDelay = 0
	}
	if c.Widget.HideDelay < 0 {
		c.Widget.HideDelay = 0
	}
	if c.Widget.LookbackSeconds <= 0 {
		c.Widget.LookbackSeconds = defaultLookbackSeconds
	}
	if c.Widget.StepTimeout <= 0 {
		c.Widget.StepTimeout = defaultStepTimeout
	}
	c.Widget.PlayerCommand = strings.TrimSpace(c.Widget.PlayerCommand)
	if c.Widget.PlayerCommand == "" {
		c.Widget.PlayerCommand = defaultPlayerCommand
		if len(c.Widget.PlayerArgs) == 0 {
			c.Widget.PlayerArgs = append([]string(nil), defaultPlayerArgs...)
		}
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.BaseURL = strings.TrimRight(strings.TrimSpace(c.TTS.BaseURL), "/")
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	c.TTS.Voice = strings.TrimSpace(c.TTS.Voice)
	if c.TTS.Voice == "" {
		c.TTS.Voice = defaultTTSVoice
	}
	c.TTS.Format = strings.TrimSpace(c.TTS.Format)
	if c.TTS.Format == "" {
		c.TTS.Format = defaultTTSFormat
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
}

func (c *Config) normalizeAlby() {
	c.Alby.Token = strings.TrimSpace(c.Alby.Token)
	c.Alby.BaseURL = strings.TrimRight(strings.TrimSpace(c.Alby.BaseURL), "/")
	if c.Alby.BaseURL == "" {
		c.Alby.BaseURL = defaultAlbyBaseURL
	}
	if c.Alby.TimeoutSeconds <= 0 {
		c.Alby.TimeoutSeconds = defaultAlbyTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
