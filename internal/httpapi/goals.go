package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"zapvoice/internal/goal"
	"zapvoice/internal/logging"
	"zapvoice/internal/services"
	"zapvoice/internal/zaps"
)

type progressFrame struct {
	goal.Progress
	Display float64 `json:"display"`
	GoalMet bool    `json:"reached"`
}

func newProgressFrame(p goal.Progress) progressFrame {
	return progressFrame{Progress: p, Display: p.Clamped(), GoalMet: p.Reached()}
}

func (s *Server) goalFromRequest(w http.ResponseWriter, r *http.Request) (*goal.Tracker, bool) {
	goalID, err := zaps.DecodeEventID(chi.URLParam(r, "eventId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal event id")
		return nil, false
	}
	return s.tracker(goalID), true
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.goalFromRequest(w, r)
	if !ok {
		return
	}
	progress, err := tracker.Compute(r.Context())
	if err != nil {
		writeError(w, services.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newProgressFrame(progress))
}

// handleGoalStream pushes a progress frame on every recompute. A goal that
// cannot be loaded fails the request before the stream opens.
func (s *Server) handleGoalStream(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.goalFromRequest(w, r)
	if !ok {
		return
	}
	first, err := tracker.Compute(r.Context())
	if err != nil {
		writeError(w, services.HTTPStatus(err), err.Error())
		return
	}

	stream := openStream(w)
	if err := stream.send(newProgressFrame(first)); err != nil {
		return
	}
	_ = tracker.Follow(r.Context(), func(p goal.Progress) {
		if err := stream.send(newProgressFrame(p)); err != nil {
			logging.WithContext(r.Context(), s.logger).Debug("goal stream closed by client", logging.Error(err))
		}
	})
}

func (s *Server) handleGoalWidgetPage(w http.ResponseWriter, r *http.Request) {
	goalID, err := zaps.DecodeEventID(chi.URLParam(r, "eventId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal event id")
		return
	}
	s.renderPage(w, "goal.html", goalPage{
		GoalID:    goalID,
		StreamURL: "/api/goals/" + goalID + "/stream",
	})
}
