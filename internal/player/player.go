package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"zapvoice/internal/alerts"
	"zapvoice/internal/config"
	"zapvoice/internal/logging"
	"zapvoice/internal/services"
	"zapvoice/internal/services/tts"
)

// Executor runs the audio player. It must block until playback ends.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

// Option configures the player.
type Option func(*Player)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(p *Player) {
		if exec != nil {
			p.exec = exec
		}
	}
}

// WithOutput sets where overlay text is written.
func WithOutput(w io.Writer) Option {
	return func(p *Player) {
		if w != nil {
			p.out = w
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Player) {
		p.logger = logger
	}
}

// Player implements alerts.Presenter with a local audio player.
type Player struct {
	binary     string
	args       []string
	notifySrc  string
	scratchDir string
	exec       Executor
	out        io.Writer
	logger     *slog.Logger

	mu      sync.Mutex
	showing bool
}

// New builds a player from the widget configuration.
func New(cfg *config.Config, opts ...Option) (*Player, error) {
	binary := strings.TrimSpace(cfg.Widget.PlayerCommand)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "player", "init", "widget.player_command is empty", nil)
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "player", "init", fmt.Sprintf("player %q not found", binary), err)
	}
	p := &Player{
		binary:     resolved,
		args:       slices.Clone(cfg.Widget.PlayerArgs),
		notifySrc:  notifySource(cfg),
		scratchDir: cfg.Paths.DataDir,
		exec:       commandExecutor{},
		out:        os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.scratchDir != "" {
		if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch directory: %w", err)
		}
	}
	p.logger = logging.NewComponentLogger(p.logger, "player")
	return p, nil
}

// notifySource maps the widget's notification URL onto the local static
// directory when it points at a bundled asset.
func notifySource(cfg *config.Config) string {
	source := strings.TrimSpace(cfg.Widget.NotifyAudioURL)
	if rel, ok := strings.CutPrefix(source, "/static/"); ok {
		return filepath.Join(cfg.Paths.StaticDir, filepath.FromSlash(rel))
	}
	return source
}

// PlayNotification plays the notification sound to completion.
func (p *Player) PlayNotification(ctx context.Context) error {
	if p.notifySrc == "" {
		return nil
	}
	return p.play(ctx, p.notifySrc)
}

// Show prints the alert.
func (p *Player) Show(ctx context.Context, alert alerts.Alert) error {
	p.mu.Lock()
	p.showing = true
	p.mu.Unlock()
	line := fmt.Sprintf("⚡ %d sats from %s", alert.AmountSats, alert.Name)
	if alert.Text != "" {
		line += ": " + alert.Text
	}
	_, err := fmt.Fprintln(p.out, line)
	return err
}

// PlaySpeech writes audio to a scratch file and plays it.
func (p *Player) PlaySpeech(ctx context.Context, audio tts.Audio) error {
	file, err := os.CreateTemp(p.scratchDir, "speech-*"+extension(audio.ContentType))
	if err != nil {
		return fmt.Errorf("create speech file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)
	if _, err := io.Copy(file, bytes.NewReader(audio.Data)); err != nil {
		file.Close()
		return fmt.Errorf("write speech file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close speech file: %w", err)
	}
	return p.play(ctx, path)
}

// Hide clears the alert.
func (p *Player) Hide(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showing = false
	return nil
}

// Showing reports whether an alert is on screen.
func (p *Player) Showing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.showing
}

// ReportError prints a short failure line.
func (p *Player) ReportError(ctx context.Context, alert alerts.Alert, err error) {
	fmt.Fprintf(p.out, "✗ alert from %s could not be played: %v\n", alert.Name, err)
}

func (p *Player) play(ctx context.Context, source string) error {
	args := append(slices.Clone(p.args), source)
	p.logger.Debug("playing audio", logging.String("source", source))
	if err := p.exec.Run(ctx, p.binary, args); err != nil {
		return services.Wrap(services.ErrPlayback, "player", filepath.Base(p.binary), "", err)
	}
	return nil
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("%w: %s", err, detail)
		}
		return err
	}
	return nil
}
