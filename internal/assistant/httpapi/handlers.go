package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/engine"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/governance"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

// handleTurn processes one conversation turn. The engine owns all error
// shaping, so the handler only translates transport.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var input engine.TurnInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := s.resolver.Resolve(r)
	result := s.engine.Turn(r.Context(), caller, input)
	JSON(w, http.StatusOK, result)
}

type proposeRequest struct {
	IntentID string            `json:"intent_id"`
	Params   map[string]string `json:"params"`
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IntentID == "" {
		Error(w, http.StatusBadRequest, "intent_id is required")
		return
	}

	caller := s.resolver.Resolve(r)
	proposal, err := s.service.ProposeIntent(r.Context(), req.IntentID, req.Params, caller)
	if err != nil {
		s.logger.Error("propose failed", "intent", req.IntentID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusCreated
	if proposal.Status == governance.StatusRejected {
		status = http.StatusUnprocessableEntity
	}
	JSON(w, status, proposal)
}

type intentResponse struct {
	LogID     string            `json:"log_id"`
	IntentID  string            `json:"intent_id"`
	Status    string            `json:"status"`
	RiskLevel string            `json:"risk_level"`
	Payload   map[string]string `json:"payload,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")

	row, err := s.db.GetIntentLog(r.Context(), logID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "intent not found")
			return
		}
		s.logger.Error("get intent failed", "log_id", logID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	caller := s.resolver.Resolve(r)
	if row.UserID != caller.UserID || row.SpaceID != caller.SpaceID {
		// Existence of other tenants' rows is not disclosed.
		Error(w, http.StatusNotFound, "intent not found")
		return
	}

	JSON(w, http.StatusOK, intentResponse{
		LogID:     row.ID,
		IntentID:  row.IntentID,
		Status:    row.Status,
		RiskLevel: row.RiskLevel,
		Payload:   row.Payload,
		Metadata:  row.Metadata,
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")
	caller := s.resolver.Resolve(r)

	result, err := s.executor.Confirm(r.Context(), logID, caller)
	if err != nil {
		s.writeLifecycleError(w, logID, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")
	caller := s.resolver.Resolve(r)

	result, err := s.executor.Execute(r.Context(), logID, caller)
	if err != nil {
		s.writeLifecycleError(w, logID, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	logID := chi.URLParam(r, "logID")
	caller := s.resolver.Resolve(r)

	if err := s.executor.Cancel(r.Context(), logID, caller); err != nil {
		s.writeLifecycleError(w, logID, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"log_id": logID, "status": string(governance.StatusCancelled)})
}

// writeLifecycleError maps governance errors to HTTP statuses.
func (s *Server) writeLifecycleError(w http.ResponseWriter, logID string, err error) {
	var authErr *governance.AuthorizationError
	var stErr *governance.StateTransitionError

	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "intent not found")
	case errors.As(err, &authErr):
		// Same shape as not-found so ownership probes learn nothing.
		Error(w, http.StatusNotFound, "intent not found")
	case errors.As(err, &stErr):
		Error(w, http.StatusConflict, stErr.Error())
	default:
		s.logger.Error("lifecycle operation failed", "log_id", logID, "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var entries []*store.AuditEntry
	var err error
	if traceID := r.URL.Query().Get("trace_id"); traceID != "" {
		entries, err = s.db.GetAuditByTrace(r.Context(), traceID)
	} else {
		entries, err = s.db.GetAuditLog(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		entry := map[string]any{
			"id":       e.ID,
			"ts":       e.Timestamp,
			"trace_id": e.TraceID,
			"actor_id": e.ActorID,
			"action":   e.Action,
			"result":   e.Result,
		}
		if e.SpaceID.Valid {
			entry["space_id"] = e.SpaceID.String
		}
		if e.Target.Valid {
			entry["target"] = e.Target.String
		}
		if e.ErrorMessage.Valid {
			entry["error"] = e.ErrorMessage.String
		}
		out = append(out, entry)
	}
	JSON(w, http.StatusOK, map[string]any{"entries": out})
}
