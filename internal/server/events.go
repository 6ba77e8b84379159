package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/bus"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/job"
)

// wireEvent is the JSON shape sent on the progress stream. Type is one of
// stage, progress, heartbeat, done, error.
type wireEvent struct {
	Type      string          `json:"type"`
	Stage     string          `json:"stage,omitempty"`
	Status    string          `json:"status,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func toWire(ev bus.Event) wireEvent {
	out := wireEvent{Stage: ev.Stage, Payload: ev.Payload, Timestamp: ev.Timestamp}
	switch ev.Type {
	case bus.StageStart:
		out.Type, out.Status = "stage", "running"
	case bus.StageComplete:
		out.Type, out.Status = "stage", "completed"
	case bus.StageFailed:
		out.Type = "error"
	case bus.StepProgress:
		out.Type = "progress"
	case bus.Heartbeat:
		out.Type = "heartbeat"
	case bus.Done:
		out.Type = "done"
	default:
		out.Type = string(ev.Type)
	}
	return out
}

// handleEvents serves the long-lived SSE progress stream for one job. An
// initial heartbeat goes out on connect, periodic heartbeats keep the
// connection visibly alive through long stages, and the stream ends after a
// done or error event or when the client disconnects. Disconnecting never
// stops the underlying run.
func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	j, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown job "+id)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev wireEvent) bool {
		bs, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("encode stream event failed", zap.String("job_id", id), zap.Error(err))
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", bs); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	send(wireEvent{Type: "heartbeat", Timestamp: time.Now().UnixMilli()})

	events, cancel := s.bus.Subscribe(id)
	defer cancel()

	// A run that finished before this subscriber attached has no live topic
	// anymore; synthesize its terminal event from the job record. The
	// subscription is taken first so a run finishing right now is seen one
	// way or the other.
	switch j.State() {
	case job.StateCompleted:
		send(terminalFromSnapshot(j, "done"))
		return
	case job.StateFailed:
		send(terminalFromSnapshot(j, "error"))
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send(wireEvent{Type: "heartbeat", Timestamp: time.Now().UnixMilli()}) {
				return
			}
		case ev, open := <-events:
			if !open {
				return
			}
			if !send(toWire(ev)) {
				return
			}
			if ev.Type.Terminal() {
				return
			}
		}
	}
}

func terminalFromSnapshot(j *job.Job, kind string) wireEvent {
	snap := j.Snapshot()
	payload := map[string]any{}
	if kind == "error" {
		payload["error"] = snap.Failure
		payload["stage"] = snap.CurrentStage
	} else if snap.FinalResult != nil {
		payload["title"] = snap.FinalResult.Title
		payload["refined"] = snap.FinalResult.Refined
	}
	bs, _ := json.Marshal(payload)
	return wireEvent{
		Type:      kind,
		Stage:     snap.CurrentStage,
		Payload:   bs,
		Timestamp: snap.FinishedAt.UnixMilli(),
	}
}
