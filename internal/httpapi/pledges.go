package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"zapvoice/internal/logging"
	"zapvoice/internal/payment"
	"zapvoice/internal/services"
	"zapvoice/internal/services/lnurl"
	"zapvoice/internal/textutil"
)

const maxBodyBytes = 64 << 10

type invoiceFrame struct {
	Invoice  lnurl.Invoice `json:"invoice"`
	PledgeID string        `json:"pledgeId"`
}

type statusFrame struct {
	Status string `json:"status"`
}

type modelInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req payment.PledgeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flow, err := s.deps.Pledges.SubmitPledge(r.Context(), req)
	if err != nil {
		writeError(w, services.HTTPStatus(err), err.Error())
		return
	}

	ctx := services.WithPledgeID(r.Context(), flow.ID)
	logger := logging.WithContext(ctx, s.logger)
	stream := openStream(w)
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-flow.Events():
			if !ok {
				if errors.Is(flow.Err(), services.ErrSettlementTimeout) {
					_ = stream.send(statusFrame{Status: "expired"})
				}
				return
			}
			var frame any = statusFrame{Status: "settled"}
			if event.Kind == payment.EventInvoiceCreated {
				frame = invoiceFrame{Invoice: event.Invoice, PledgeID: flow.ID}
			}
			if err := stream.send(frame); err != nil {
				logger.Debug("pledge stream closed by client", logging.Error(err))
				return
			}
		case <-keepalive.C:
			if err := stream.keepalive(); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleCheckInvoice(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimSpace(r.URL.Query().Get("payment_hash"))
	if hash == "" {
		writeError(w, http.StatusBadRequest, "Invalid payment_hash")
		return
	}
	if s.deps.Invoices == nil {
		writeError(w, http.StatusInternalServerError, "Failed to check invoice")
		return
	}
	settled, err := s.deps.Invoices.InvoiceSettled(r.Context(), hash)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "invoice lookup failed", "invoice_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check alby.token"),
		)
		writeError(w, http.StatusInternalServerError, "Failed to check invoice")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"status": settled})
}

// handleModels lists the backend's voices. When MODELS is configured only
// those voices are offered, and they are served as-is if the backend is down.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	allowed := s.cfg.Pledge.Models
	names := make([]string, 0)

	models, err := s.deps.Speech.Models(r.Context())
	switch {
	case err != nil && len(allowed) == 0:
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "model list unavailable", "models_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check tts.base_url"),
		)
		writeError(w, services.HTTPStatus(err), "Failed to fetch models")
		return
	case err != nil:
		s.logger.Debug("model list unavailable; serving configured models", logging.Error(err))
		names = append(names, allowed...)
	default:
		for _, model := range models {
			if len(allowed) == 0 || slices.Contains(allowed, model.Name) {
				names = append(names, model.Name)
			}
		}
	}

	out := make([]modelInfo, 0, len(names))
	for _, name := range names {
		out = append(out, modelInfo{Name: name, Label: textutil.DisplayName(name)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePledge(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusNotFound, "pledge history disabled")
		return
	}
	id := chi.URLParam(r, "id")
	pledge, err := s.deps.Ledger.GetPledge(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pledge == nil {
		writeError(w, http.StatusNotFound, "pledge not found")
		return
	}
	writeJSON(w, http.StatusOK, pledge)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"uptimeSeconds":   int64(s.now().Sub(s.started).Seconds()),
		"relaysConnected": s.deps.Events.Connected(),
		"relays":          s.cfg.Nostr.Relays,
		"widgetSessions":  s.sessions.Len(),
	}
	if s.deps.Ledger != nil {
		stats, err := s.deps.Ledger.Stats(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		payload["ledger"] = stats
	}
	writeJSON(w, http.StatusOK, payload)
}
