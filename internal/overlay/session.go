package overlay

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"zapvoice/internal/alerts"
	"zapvoice/internal/services"
	"zapvoice/internal/services/tts"
)

// CommandType names a widget instruction.
type CommandType string

const (
	CommandNotify CommandType = "notify"
	CommandShow   CommandType = "show"
	CommandSpeak  CommandType = "speak"
	CommandHide   CommandType = "hide"
	CommandError  CommandType = "error"
)

// Command is one instruction for the widget page.
type Command struct {
	Type CommandType `json:"type"`
	// Token must be acknowledged once the page has finished the command.
	// Only notify and speak carry one.
	Token    string        `json:"token,omitempty"`
	AudioURL string        `json:"audioUrl,omitempty"`
	Alert    *alerts.Alert `json:"alert,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// ErrSessionClosed is returned once the page has gone away.
var ErrSessionClosed = errors.New("widget session closed")

const commandBuffer = 8

// Session is the presenter for one widget page.
type Session struct {
	ID        string
	Recipient string

	notifyURL string
	audioPath func(sessionID, token string) string

	commands chan Command
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	pending map[string]chan error
	audio   map[string]tts.Audio
}

func newSession(recipient, notifyURL string, audioPath func(string, string) string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Recipient: recipient,
		notifyURL: notifyURL,
		audioPath: audioPath,
		commands:  make(chan Command, commandBuffer),
		closed:    make(chan struct{}),
		pending:   make(map[string]chan error),
		audio:     make(map[string]tts.Audio),
	}
}

// Commands is the stream the SSE handler forwards to the page.
func (s *Session) Commands() <-chan Command {
	return s.commands
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Close ends the session and fails any step waiting for an acknowledgement.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		defer s.mu.Unlock()
		for token, ch := range s.pending {
			ch <- ErrSessionClosed
			delete(s.pending, token)
		}
		clear(s.audio)
	})
}

// Ack completes the command identified by token. A non-empty failure means
// the page could not play the audio.
func (s *Session) Ack(token, failure string) error {
	s.mu.Lock()
	ch, ok := s.pending[token]
	if ok {
		delete(s.pending, token)
	}
	s.mu.Unlock()
	if !ok {
		return services.Wrap(services.ErrNotFound, "overlay", "ack", "unknown token", nil)
	}
	if failure != "" {
		ch <- errors.New(failure)
	} else {
		ch <- nil
	}
	return nil
}

// Audio returns the clip for a pending speak command.
func (s *Session) Audio(token string) (tts.Audio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.audio[token]
	return clip, ok
}

// PlayNotification asks the page to play the notification sound and waits
// until it has finished.
func (s *Session) PlayNotification(ctx context.Context) error {
	token := uuid.NewString()
	return s.await(ctx, token, Command{Type: CommandNotify, Token: token, AudioURL: s.notifyURL})
}

// Show reveals the overlay.
func (s *Session) Show(ctx context.Context, alert alerts.Alert) error {
	return s.send(ctx, Command{Type: CommandShow, Alert: &alert})
}

// PlaySpeech serves audio to the page and waits for playback to finish.
func (s *Session) PlaySpeech(ctx context.Context, audio tts.Audio) error {
	token := uuid.NewString()
	s.mu.Lock()
	s.audio[token] = audio
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.audio, token)
		s.mu.Unlock()
	}()
	return s.await(ctx, token, Command{Type: CommandSpeak, Token: token, AudioURL: s.audioPath(s.ID, token)})
}

// Hide hides the overlay.
func (s *Session) Hide(ctx context.Context) error {
	return s.send(ctx, Command{Type: CommandHide})
}

// ReportError shows a short error indicator on the page.
func (s *Session) ReportError(ctx context.Context, alert alerts.Alert, err error) {
	message := "alert could not be played"
	switch {
	case errors.Is(err, services.ErrSynthesis):
		message = "speech synthesis failed"
	case errors.Is(err, services.ErrPlayback):
		message = "playback failed"
	}
	_ = s.send(ctx, Command{Type: CommandError, Alert: &alert, Message: message})
}

func (s *Session) send(ctx context.Context, cmd Command) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	select {
	case s.commands <- cmd:
		return nil
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) await(ctx context.Context, token string, cmd Command) error {
	ack := make(chan error, 1)
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	default:
	}
	s.pending[token] = ack
	s.mu.Unlock()

	forget := func() {
		s.mu.Lock()
		delete(s.pending, token)
		s.mu.Unlock()
	}
	if err := s.send(ctx, cmd); err != nil {
		forget()
		return err
	}
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}
