package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv so tests can supply a fixed environment.
type LookupFunc func(key string) (string, bool)

// loadDotEnv populates the process environment from .env (or ZAPVOICE_ENV_FILE)
// without overriding variables that are already set.
func loadDotEnv() error {
	path := ".env"
	if value, ok := os.LookupEnv("ZAPVOICE_ENV_FILE"); ok && strings.TrimSpace(value) != "" {
		path = strings.TrimSpace(value)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	env := envReader{lookup: lookup}

	env.int64("MIN_SATOSHI_QNT", &c.Pledge.MinSatoshi)
	env.int("MAX_TEXT_LENGTH", &c.Pledge.MaxTextLength)
	env.list("MODELS", &c.Pledge.Models)
	env.list("RELAYS", &c.Nostr.Relays)
	env.string("NOTIFY_AUDIO_URL", &c.Widget.NotifyAudioURL)
	env.int("QUEUE_CHECK_INTERVAL", &c.Widget.QueueCheckInterval)
	env.int("WIDGET_DISPLAY_DELAY", &c.Widget.DisplayDelay)
	env.int("WIDGET_HIDE_DELAY", &c.Widget.HideDelay)
	env.string("TTS_VOICE", &c.TTS.Voice)
	env.int("TTS_RATE", &c.TTS.Rate)
	env.int("TTS_VOLUME", &c.TTS.Volume)
	env.int("TTS_PITCH", &c.TTS.Pitch)
	env.string("TTS_API_URL", &c.TTS.BaseURL)
	if _, ok := lookup("TTS_API_URL"); !ok {
		host, hostOK := lookup("RVC_API_HOST")
		port, portOK := lookup("RVC_API_PORT")
		if hostOK && strings.TrimSpace(host) != "" {
			base := "http://" + strings.TrimSpace(host)
			if portOK && strings.TrimSpace(port) != "" {
				base += ":" + strings.TrimSpace(port)
			}
			c.TTS.BaseURL = base
		}
	}
	env.string("ALBY_TOKEN", &c.Alby.Token)
	env.string("NTFY_TOPIC", &c.Notifications.NtfyTopic)
	env.string("ZAPVOICE_BIND", &c.Server.Bind)
	env.string("ZAPVOICE_API_TOKEN", &c.Server.APIToken)
	env.string("ZAPVOICE_DATA_DIR", &c.Paths.DataDir)
	env.string("ZAPVOICE_LOG_LEVEL", &c.Logging.Level)
	env.string("ZAPVOICE_LOG_FORMAT", &c.Logging.Format)

	return env.err()
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) raw(key string) (string, bool) {
	value, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (e *envReader) string(key string, dst *string) {
	if value, ok := e.raw(key); ok {
		*dst = value
	}
}

func (e *envReader) int(key string, dst *int) {
	value, ok := e.raw(key)
	if !ok || value == "" {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return
	}
	*dst = parsed
}

func (e *envReader) int64(key string, dst *int64) {
	value, ok := e.raw(key)
	if !ok || value == "" {
		return
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return
	}
	*dst = parsed
}

func (e *envReader) list(key string, dst *[]string) {
	value, ok := e.raw(key)
	if !ok {
		return
	}
	*dst = splitList(value)
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
