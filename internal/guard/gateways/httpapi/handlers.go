package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/focusgate/focusgate/internal/guard/domain"
	"github.com/focusgate/focusgate/internal/guard/repos/rules"
	"github.com/focusgate/focusgate/internal/guard/services/coordinator"
)

// Message is the action-tagged envelope shared by all coordinator messages.
// Which payload field applies depends on the action.
type Message struct {
	Action   string           `json:"action"`
	Domains  []domain.Rule    `json:"domains,omitempty"`
	Settings *domain.Settings `json:"settings,omitempty"`
	Domain   string           `json:"domain,omitempty"`
}

// StateResponse is the popup's initial load: settings plus the rule list.
type StateResponse struct {
	Settings domain.Settings `json:"settings"`
	Domains  []domain.Rule   `json:"domains"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMessage dispatches the action-tagged envelope. Actions without a
// response body return 204, matching the fire-and-forget messages of the
// original contract.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	ctx := r.Context()

	switch msg.Action {
	case "domainsUpdated":
		if err := s.coord.DomainsUpdated(ctx, msg.Domains); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "settingsUpdated":
		if msg.Settings == nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing settings payload"})
			return
		}
		if err := s.coord.SettingsUpdated(ctx, *msg.Settings); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "challengeCompleted":
		if err := s.coord.ChallengeCompleted(ctx, msg.Domain); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "getStatistics":
		stats, err := s.coord.Statistics(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)

	case "resetStatistics":
		if err := s.coord.ResetStatistics(ctx); err != nil {
			writeJSON(w, http.StatusInternalServerError, successResponse{Success: false})
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})

	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown action " + msg.Action})
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	settings, err := s.coord.Settings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{
		Settings: settings,
		Domains:  s.coord.Rules(r.Context()),
	})
}

func (s *Server) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.coord.StatisticsOverview(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	rule, err := s.coord.AddDomain(r.Context(), req.Domain)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.RemoveDomain(r.Context(), mux.Vars(r)["domain"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateDomain(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	rule.Domain = mux.Vars(r)["domain"]
	if err := s.coord.UpdateDomain(r.Context(), rule); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	state, err := s.watcher.HandleNavigation(r.Context(), req.URL)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePageState(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing host"})
		return
	}
	writeJSON(w, http.StatusOK, s.watcher.State(host))
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host   string `json:"host"`
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	completed := s.watcher.Manager().SubmitAnswer(req.Host, req.Answer)
	writeJSON(w, http.StatusOK, map[string]any{
		"completed": completed,
		"state":     s.watcher.State(req.Host),
	})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	s.watcher.Manager().SkipToMath(req.Host)
	writeJSON(w, http.StatusOK, s.watcher.State(req.Host))
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host    string `json:"host"`
		Success bool   `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if req.Success {
		s.watcher.Manager().WidgetSucceeded(req.Host)
	} else {
		s.watcher.Manager().WidgetFailed(req.Host)
	}
	writeJSON(w, http.StatusOK, s.watcher.State(req.Host))
}

// writeError maps validation sentinels to 400 and everything else to 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidDomain),
		errors.Is(err, domain.ErrInvalidTimeSlot),
		errors.Is(err, rules.ErrDuplicateDomain),
		errors.Is(err, rules.ErrUnknownDomain),
		errors.Is(err, coordinator.ErrInvalidSettings):
		status = http.StatusBadRequest
	default:
		s.logger.Error(map[string]any{"error": err}, "request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
