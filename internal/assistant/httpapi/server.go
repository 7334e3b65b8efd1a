// Package httpapi exposes the assistant over HTTP: the conversation turn
// endpoint and the governed propose/confirm/execute/cancel lifecycle.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/engine"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/governance"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/identity"
	"github.com/ChristianGroove/agency-manager-sub002/internal/assistant/store"
)

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	engine   *engine.Engine
	service  *governance.Service
	executor *governance.Executor
	db       *store.Store
	resolver identity.Resolver
	logger   *slog.Logger
}

// NewServer wires the API handlers.
func NewServer(eng *engine.Engine, service *governance.Service, executor *governance.Executor, db *store.Store, resolver identity.Resolver, logger *slog.Logger) *Server {
	if resolver == nil {
		resolver = identity.HeaderResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   eng,
		service:  service,
		executor: executor,
		db:       db,
		resolver: resolver,
		logger:   logger,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Heartbeat("/health"))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/assistant/turn", s.handleTurn)

		r.Route("/intents", func(r chi.Router) {
			r.Post("/", s.handlePropose)
			r.Get("/{logID}", s.handleGetIntent)
			r.Post("/{logID}/confirm", s.handleConfirm)
			r.Post("/{logID}/execute", s.handleExecute)
			r.Post("/{logID}/cancel", s.handleCancel)
		})

		r.Get("/audit", s.handleAudit)
	})

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
