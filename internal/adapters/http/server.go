// Package http exposes the engine and the administrative publication path as
// a JSON API. The turn endpoint serializes per session through the session
// manager; publication diffs the incoming version against the previous one
// and stores the resulting migration plan alongside it.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mroche14/flowline/internal/logging"
	"github.com/mroche14/flowline/internal/planner"
	"github.com/mroche14/flowline/internal/runtime"
	"github.com/mroche14/flowline/pkg/domain"
	"github.com/mroche14/flowline/pkg/ports"
	"github.com/mroche14/flowline/pkg/schema"
	"github.com/mroche14/flowline/pkg/session"
)

// TurnEngine is the slice of the runtime engine the server needs.
type TurnEngine interface {
	ProcessTurn(ctx context.Context, state *domain.SessionState, turn runtime.TurnInput) (domain.ReconciliationResult, error)
}

// Server holds the wired dependencies behind the API.
type Server struct {
	engine   TurnEngine
	sessions *session.Manager
	graphs   ports.GraphStore
	planner  *planner.Generator

	registry *prometheus.Registry
	logger   *slog.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithMetricsRegistry exposes the registry on GET /metrics.
func WithMetricsRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a Server over an engine and its stores.
func NewServer(engine TurnEngine, sessions *session.Manager, graphs ports.GraphStore, opts ...ServerOption) *Server {
	s := &Server{
		engine:   engine,
		sessions: sessions,
		graphs:   graphs,
		planner:  planner.NewGenerator(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHandler builds the chi router for the server.
func NewHandler(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.getHealth)

	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/turn", s.postTurn)

		r.Route("/sessions/{tenant}/{agent}/{interlocutor}/{channel}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Post("/", s.postScenario)
			r.Get("/{id}", s.getScenario)
			r.Get("/{id}/plans/{from}/{to}", s.getPlan)
		})
	})

	return r
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TurnRequest is the body of POST /v1/turn.
type TurnRequest struct {
	Tenant       string `json:"tenant"`
	Agent        string `json:"agent"`
	Interlocutor string `json:"interlocutor"`
	Channel      string `json:"channel"`

	TransitionScores map[string]float64 `json:"transition_scores,omitempty"`
	EntryCandidates  map[string]float64 `json:"entry_candidates,omitempty"`
	RecentTurns      []string           `json:"recent_turns,omitempty"`
}

// TurnResponse carries the reconciliation result and the session snapshot
// after the turn committed.
type TurnResponse struct {
	Result  domain.ReconciliationResult `json:"result"`
	Session *domain.SessionState        `json:"session"`
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := domain.SessionKey{Tenant: req.Tenant, Agent: req.Agent, Interlocutor: req.Interlocutor, Channel: req.Channel}
	if key.Tenant == "" || key.Interlocutor == "" {
		writeError(w, http.StatusBadRequest, "tenant and interlocutor are required")
		return
	}

	var resp TurnResponse
	err := s.sessions.WithLock(r.Context(), key, func(ctx context.Context) error {
		state, err := s.sessions.Store().Load(ctx, key)
		if errors.Is(err, domain.ErrSessionNotFound) {
			state = domain.NewSession(key)
			err = nil
		}
		if err != nil {
			return err
		}

		result, err := s.engine.ProcessTurn(ctx, state, runtime.TurnInput{
			TransitionScores: req.TransitionScores,
			EntryCandidates:  req.EntryCandidates,
			RecentTurns:      req.RecentTurns,
		})
		if err != nil {
			return err
		}

		// Session and result commit together; a failed save voids the turn.
		if err := s.sessions.Store().Save(ctx, state); err != nil {
			return err
		}
		resp = TurnResponse{Result: result, Session: state}
		return nil
	})
	if err != nil {
		s.logger.Error("turn failed", "session", key.String(), "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	key := keyFromURL(r)
	state, err := s.sessions.Load(r.Context(), key)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.Context(), keyFromURL(r)); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishResponse is the body returned by POST /v1/scenarios.
type PublishResponse struct {
	ScenarioID string                   `json:"scenario_id"`
	Version    int                      `json:"version"`
	Plan       *domain.MigrationSummary `json:"plan,omitempty"`
}

// postScenario accepts a scenario definition as YAML, publishes it, and when
// a previous version exists, generates and stores the migration plan in the
// same request. The response carries the plan summary for operator review.
func (s *Server) postScenario(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	sc, err := schema.Parse(body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	newG, err := sc.ToGraph()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := PublishResponse{ScenarioID: newG.ID(), Version: newG.Version()}

	prev, err := s.graphs.GetScenario(r.Context(), newG.ID(), ports.CurrentVersion)
	switch {
	case err == nil && prev.Version() < newG.Version():
		plan, err := s.planner.Generate(r.Context(), prev, newG)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := s.graphs.SaveMigrationPlan(r.Context(), plan); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Plan = &plan.Summary
	case err == nil:
		writeError(w, http.StatusConflict, "version must be greater than the published one")
		return
	case !errors.Is(err, domain.ErrScenarioNotFound):
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.graphs.PublishScenario(r.Context(), newG); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Plan != nil {
		if err := s.graphs.ArchivePreviousVersion(r.Context(), newG.ID(), newG.Version()-1); err != nil {
			s.logger.Warn("failed to archive previous version", "scenario", newG.ID(), "err", err)
		}
	}

	s.logger.Info("scenario published", "scenario", newG.ID(), "version", newG.Version())
	writeJSON(w, http.StatusCreated, resp)
}

// ScenarioResponse is the inspection view of one graph version.
type ScenarioResponse struct {
	ScenarioID string        `json:"scenario_id"`
	Version    int           `json:"version"`
	Steps      []domain.Step `json:"steps"`
}

func (s *Server) getScenario(w http.ResponseWriter, r *http.Request) {
	version := ports.CurrentVersion
	if q := r.URL.Query().Get("version"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "version must be an integer")
			return
		}
		version = v
	}

	g, err := s.graphs.GetScenario(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ScenarioResponse{ScenarioID: g.ID(), Version: g.Version(), Steps: g.Steps()})
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	from, err1 := strconv.Atoi(chi.URLParam(r, "from"))
	to, err2 := strconv.Atoi(chi.URLParam(r, "to"))
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "from and to must be integers")
		return
	}

	plan, err := s.graphs.GetMigrationPlan(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// -- Helpers --

func keyFromURL(r *http.Request) domain.SessionKey {
	return domain.SessionKey{
		Tenant:       chi.URLParam(r, "tenant"),
		Agent:        chi.URLParam(r, "agent"),
		Interlocutor: chi.URLParam(r, "interlocutor"),
		Channel:      chi.URLParam(r, "channel"),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrScenarioNotFound),
		errors.Is(err, domain.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidGraph):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
