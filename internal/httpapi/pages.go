package httpapi

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"zapvoice/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type widgetForm struct {
	Npub    string
	Action  string
	Voice   string
	Rate    int
	Volume  int
	Pitch   int
	MinSats int64
	MaxText int
}

type widgetLive struct {
	Npub      string
	StreamURL string
}

type goalPage struct {
	GoalID    string
	StreamURL string
}

func (s *Server) renderPage(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("render page failed", logging.String("page", name), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
