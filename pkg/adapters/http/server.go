// Package http exposes the engine over a minimal JSON REST surface:
//
//	POST /graphs/{graph}/entities      create an entity at the initial state
//	GET  /entities/{id}                state, version, allowed events, log
//	POST /entities/{id}/transitions    apply a transition
//	GET  /healthz                      liveness probe
//
// Rejections map to structured JSON errors: 404 for unknown entities, 409
// for version conflicts (with both version numbers), 422 for illegal
// transitions and guard/callback vetoes.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatewright/passage"
	"github.com/gatewright/passage/internal/logging"
	"github.com/gatewright/passage/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// Server holds the engine and request logging.
type Server struct {
	engine *passage.Engine
	logger *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine *passage.Engine, opts ...Option) http.Handler {
	s := &Server{
		engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.health)
	r.Post("/graphs/{graph}/entities", s.createEntity)
	r.Get("/entities/{id}", s.getEntity)
	r.Post("/entities/{id}/transitions", s.applyTransition)
	return r
}

// EntityResponse describes an entity snapshot to API clients.
type EntityResponse struct {
	ID            string            `json:"id"`
	Graph         string            `json:"graph"`
	State         string            `json:"state"`
	Version       int64             `json:"version"`
	AllowedEvents []string          `json:"allowed_events"`
	Log           []domain.LogEntry `json:"log,omitempty"`
}

// TransitionRequest is the apply-transition payload. ExpectedVersion is
// mandatory: callers that want to race anyway must still fetch and echo
// the current version.
type TransitionRequest struct {
	Event           string         `json:"event"`
	ExpectedVersion *int64         `json:"expected_version"`
	Context         map[string]any `json:"context,omitempty"`
}

// TransitionResponse reports a committed transition.
type TransitionResponse struct {
	From          string   `json:"from"`
	To            string   `json:"to"`
	Version       int64    `json:"version"`
	AllowedEvents []string `json:"allowed_events"`
	Warnings      []string `json:"warnings,omitempty"`
}

// ErrorResponse is the structured rejection payload.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	// Expected and Actual are set on version conflicts so clients can
	// refetch and decide whether to retry.
	Expected *int64 `json:"expected_version,omitempty"`
	Actual   *int64 `json:"actual_version,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createEntity(w http.ResponseWriter, r *http.Request) {
	graph := chi.URLParam(r, "graph")

	snap, err := s.engine.CreateEntity(r.Context(), graph)
	if err != nil {
		if errors.Is(err, domain.ErrGraphNotFound) {
			s.writeError(w, http.StatusNotFound, ErrorResponse{
				Code: "graph_not_found", Message: err.Error(),
			})
			return
		}
		s.internalError(w, r, "create entity failed", err)
		return
	}

	g, _ := s.engine.Graph(snap.GraphName)
	s.writeJSON(w, http.StatusCreated, EntityResponse{
		ID:            snap.ID,
		Graph:         snap.GraphName,
		State:         snap.State,
		Version:       snap.Version,
		AllowedEvents: g.PossibleTransitions(snap.State),
	})
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, allowed, err := s.engine.GetEntity(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) {
			s.writeError(w, http.StatusNotFound, ErrorResponse{
				Code: "entity_not_found", Message: err.Error(),
			})
			return
		}
		s.internalError(w, r, "get entity failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, EntityResponse{
		ID:            snap.ID,
		Graph:         snap.GraphName,
		State:         snap.State,
		Version:       snap.Version,
		AllowedEvents: allowed,
		Log:           snap.Log.Snapshot(),
	})
}

func (s *Server) applyTransition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: "invalid_body", Message: "invalid request body",
		})
		return
	}
	if body.Event == "" {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: "event_required", Message: "event is required",
		})
		return
	}
	if body.ExpectedVersion == nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{
			Code: "expected_version_required", Message: "expected_version is required",
		})
		return
	}

	res, err := s.engine.ApplyTransition(r.Context(), id, body.Event, *body.ExpectedVersion, body.Context)
	if err != nil {
		s.writeRejection(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, TransitionResponse{
		From:          res.From,
		To:            res.To,
		Version:       res.NewVersion,
		AllowedEvents: res.AllowedNextEvents,
		Warnings:      res.Warnings,
	})
}

// writeRejection maps the engine's typed rejections to HTTP statuses.
func (s *Server) writeRejection(w http.ResponseWriter, r *http.Request, err error) {
	var (
		illegal  *domain.IllegalTransitionError
		gerr     *domain.GuardError
		cerr     *domain.CallbackError
		conflict *domain.VersionConflictError
	)

	switch {
	case errors.Is(err, domain.ErrEntityNotFound):
		s.writeError(w, http.StatusNotFound, ErrorResponse{
			Code: "entity_not_found", Message: err.Error(),
		})
	case errors.As(err, &conflict):
		s.writeError(w, http.StatusConflict, ErrorResponse{
			Code:     "version_conflict",
			Message:  err.Error(),
			Expected: &conflict.Expected,
			Actual:   &conflict.Actual,
		})
	case errors.As(err, &illegal):
		s.writeError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Code: "illegal_transition", Message: err.Error(),
		})
	case errors.As(err, &gerr):
		s.writeError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Code: "guard_rejected", Message: err.Error(), Reason: gerr.Reason,
		})
	case errors.As(err, &cerr):
		s.writeError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Code: "callback_rejected", Message: err.Error(),
		})
	default:
		s.internalError(w, r, "apply transition failed", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "path", r.URL.Path, "err", err)
	s.writeError(w, http.StatusInternalServerError, ErrorResponse{
		Code: "internal", Message: "internal error",
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	s.writeJSON(w, status, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
