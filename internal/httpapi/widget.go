package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"zapvoice/internal/alerts"
	"zapvoice/internal/logging"
	"zapvoice/internal/overlay"
	"zapvoice/internal/services"
	"zapvoice/internal/zaps"
)

// widgetOptions are the per-page overrides a streamer encodes in the widget URL.
type widgetOptions struct {
	Voice   string
	Rate    *int
	Volume  *int
	Pitch   *int
	MinSats *int64
	MaxText *int
}

func parseWidgetOptions(q url.Values) (widgetOptions, error) {
	opts := widgetOptions{Voice: strings.TrimSpace(q.Get("voice"))}
	var err error
	if opts.Rate, err = optionalInt(q, "rate", -100, 200); err != nil {
		return opts, err
	}
	if opts.Volume, err = optionalInt(q, "volume", 0, 200); err != nil {
		return opts, err
	}
	if opts.Pitch, err = optionalInt(q, "pitch", -100, 100); err != nil {
		return opts, err
	}
	if opts.MaxText, err = optionalInt(q, "max_text", 1, 10000); err != nil {
		return opts, err
	}
	if raw := strings.TrimSpace(q.Get("min_sats")); raw != "" {
		value, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || value < 0 {
			return opts, fmt.Errorf("min_sats: %q is not a non-negative integer", raw)
		}
		opts.MinSats = &value
	}
	return opts, nil
}

func optionalInt(q url.Values, key string, lo, hi int) (*int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < lo || value > hi {
		return nil, fmt.Errorf("%s: %q must be an integer between %d and %d", key, raw, lo, hi)
	}
	return &value, nil
}

func (o widgetOptions) apply(settings *alerts.Settings) {
	if o.Voice != "" {
		settings.Speech.Voice = o.Voice
	}
	if o.Rate != nil {
		settings.Speech.Rate = *o.Rate
	}
	if o.Volume != nil {
		settings.Speech.Volume = *o.Volume
	}
	if o.Pitch != nil {
		settings.Speech.Pitch = *o.Pitch
	}
	if o.MinSats != nil {
		settings.MinSats = *o.MinSats
	}
	if o.MaxText != nil {
		settings.MaxTextLength = *o.MaxText
	}
}

type sessionFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	AckURL    string `json:"ackUrl"`
}

type ackRequest struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// handleWidgetPage renders the configuration form until a voice has been
// chosen, then the live overlay.
func (s *Server) handleWidgetPage(w http.ResponseWriter, r *http.Request) {
	npub := chi.URLParam(r, "npub")
	if _, err := zaps.DecodePubkey(npub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid npub")
		return
	}
	opts, err := parseWidgetOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := alerts.SettingsFromConfig(s.cfg, "")
	opts.apply(&settings)

	if opts.Voice == "" {
		s.renderPage(w, "widget_form.html", widgetForm{
			Npub:    npub,
			Action:  r.URL.Path,
			Voice:   settings.Speech.Voice,
			Rate:    settings.Speech.Rate,
			Volume:  settings.Speech.Volume,
			Pitch:   settings.Speech.Pitch,
			MinSats: settings.MinSats,
			MaxText: settings.MaxTextLength,
		})
		return
	}
	s.renderPage(w, "widget_live.html", widgetLive{
		Npub:      npub,
		StreamURL: r.URL.Path + "/stream?" + r.URL.RawQuery,
	})
}

// handleWidgetStream runs an alert engine for as long as the page stays
// connected, forwarding its presenter commands as events.
func (s *Server) handleWidgetStream(w http.ResponseWriter, r *http.Request) {
	recipient, err := zaps.DecodePubkey(chi.URLParam(r, "npub"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid npub")
		return
	}
	opts, err := parseWidgetOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	settings := alerts.SettingsFromConfig(s.cfg, recipient)
	opts.apply(&settings)

	session := s.sessions.Open(recipient)
	ctx := services.WithSessionID(services.WithRecipient(r.Context(), recipient), session.ID)
	logger := logging.WithContext(ctx, s.logger)

	engineOpts := []alerts.Option{
		alerts.WithNotifier(s.deps.Notifier),
		alerts.WithMetrics(s.deps.Metrics),
		alerts.WithLogger(s.deps.Logger),
	}
	if s.deps.Ledger != nil {
		engineOpts = append(engineOpts, alerts.WithRecorder(s.deps.Ledger))
	}
	engine := alerts.NewEngine(settings, s.deps.Events, s.deps.Speech, session, engineOpts...)

	engineCtx, cancel := context.WithCancel(ctx)
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(engineCtx)
	}()
	defer func() {
		cancel()
		s.sessions.Close(session.ID)
		<-engineDone
		logger.Info("widget disconnected", logging.Int("processed", engine.Snapshot().Processed))
	}()

	stream := openStream(w)
	if err := stream.send(sessionFrame{
		Type:      "session",
		SessionID: session.ID,
		AckURL:    sessionsPath + "/" + session.ID + "/ack",
	}); err != nil {
		return
	}
	logger.Info("widget connected",
		logging.String("voice", settings.Speech.Voice),
		logging.Int64("min_sats", settings.MinSats),
	)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-session.Commands():
			if err := stream.send(cmd); err != nil {
				logger.Debug("widget stream write failed", logging.Error(err))
				return
			}
		case <-keepalive.C:
			if err := stream.keepalive(); err != nil {
				return
			}
		}
	}
}

func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*overlay.Session, bool) {
	session, ok := s.sessions.Get(chi.URLParam(r, "sid"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown widget session")
		return nil, false
	}
	return session, true
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	var req ackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid acknowledgement")
		return
	}
	if err := session.Ack(req.Token, req.Error); err != nil {
		writeError(w, services.HTTPStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}
	clip, ok := session.Audio(chi.URLParam(r, "token"))
	if !ok {
		writeError(w, http.StatusNotFound, "audio not available")
		return
	}
	contentType := clip.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}
