package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePledge(); err != nil {
		return err
	}
	if err := c.validateNostr(); err != nil {
		return err
	}
	if err := c.validateWidget(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePledge() error {
	if c.Pledge.MinSatoshi < 1 {
		return errors.New("pledge.min_satoshi_qnt must be at least 1")
	}
	if c.Pledge.MaxTextLength < 1 {
		return errors.New("pledge.max_text_length must be positive")
	}
	return nil
}

func (c *Config) validateNostr() error {
	for _, relay := range c.Nostr.Relays {
		parsed, err := url.Parse(relay)
		if err != nil {
			return fmt.Errorf("nostr.relays: %q: %w", relay, err)
		}
		if parsed.Scheme != "wss" && parsed.Scheme != "ws" {
			return fmt.Errorf("nostr.relays: %q must use ws or wss", relay)
		}
	}
	return nil
}

func (c *Config) validateWidget() error {
	if c.Widget.QueueCheckInterval < 100 {
		return fmt.Errorf("widget.queue_check_interval must be at least 100ms (got %d)", c.Widget.QueueCheckInterval)
	}
	return nil
}

func (c *Config) validateTTS() error {
	parsed, err := url.Parse(c.TTS.BaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("tts.base_url: %q is not an absolute URL", c.TTS.BaseURL)
	}
	if c.TTS.Volume < 0 {
		return errors.New("tts.volume must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
