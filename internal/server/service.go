package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/bus"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/pipeline"
)

// Service exposes the pipeline over HTTP: starting runs, fetching run
// snapshots, and streaming progress events.
type Service struct {
	orch      *pipeline.Orchestrator
	registry  *pipeline.Registry
	bus       *bus.Bus
	logger    *zap.Logger
	heartbeat time.Duration
}

func NewService(orch *pipeline.Orchestrator, registry *pipeline.Registry, b *bus.Bus, heartbeat time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orch:      orch,
		registry:  registry,
		bus:       b,
		logger:    logger,
		heartbeat: heartbeat,
	}
}

// Router builds the chi route tree.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", s.handleStartRun)
		r.Get("/{jobID}", s.handleSnapshot)
		r.Get("/{jobID}/events", s.handleEvents)
	})
	return r
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("write response failed", zap.Error(err))
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
