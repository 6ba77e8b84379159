package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/job"
)

// startRunRequest is the body of POST /v1/runs.
type startRunRequest struct {
	Subject      string                     `json:"subject"`
	Context      string                     `json:"context,omitempty"`
	Instructions string                     `json:"instructions,omitempty"`
	JobID        string                     `json:"job_id,omitempty"`
	Precomputed  map[string]json.RawMessage `json:"precomputed,omitempty"`
}

func (s *Service) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Subject == "" {
		s.writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	j := job.New(req.JobID, job.Input{
		Subject:      req.Subject,
		Context:      req.Context,
		Instructions: req.Instructions,
	}, s.orch.Definition().StageNames())
	if err := s.registry.Add(j); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		s.runAndRespond(w, r, j, req.Precomputed)
		return
	}

	// Asynchronous start: the run continues even if the caller goes away,
	// so it gets its own context rather than the request's.
	go s.runDetached(j, req.Precomputed)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": j.ID()})
}

func (s *Service) runAndRespond(w http.ResponseWriter, r *http.Request, j *job.Job, pre map[string]json.RawMessage) {
	// A started run completes or fails on its own terms; the caller hanging
	// up must not abort it mid-stage and mislabel the job as failed.
	final, err := s.orch.Run(context.WithoutCancel(r.Context()), j, pre)
	s.registry.Finish(j.ID())
	if err != nil {
		// Partial progress rides along for diagnosis; it is not a result.
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"job":   j.Snapshot(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id": j.ID(),
		"result": final,
	})
}

func (s *Service) runDetached(j *job.Job, pre map[string]json.RawMessage) {
	if _, err := s.orch.Run(context.Background(), j, pre); err != nil {
		s.logger.Warn("run failed", zap.String("job_id", j.ID()), zap.Error(err))
	}
	s.registry.Finish(j.ID())
}

func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	j, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown job "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, j.Snapshot())
}
