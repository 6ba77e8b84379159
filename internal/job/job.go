package job

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StageStatus is the lifecycle of one stage within a run.
type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
)

// RunState is the run-level state machine: NotStarted -> Running ->
// {Completed | Failed}. Transitions are strictly forward.
type RunState string

const (
	StateNotStarted RunState = "not_started"
	StateRunning    RunState = "running"
	StateCompleted  RunState = "completed"
	StateFailed     RunState = "failed"
)

// Input is the initiating request; immutable once the run starts.
type Input struct {
	Subject      string `json:"subject"`
	Context      string `json:"context,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// StageRecord tracks one stage's status and output within a run. Once
// Completed its Data is never mutated, only read by later stages; the single
// quality-gate refinement pass replaces the whole record (last-write-wins
// for that one stage only).
type StageRecord struct {
	Status StageStatus     `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// FinalResult is the aggregated outcome of a fully completed run. Pure
// projection over stage outputs; assembling it makes no remote calls.
type FinalResult struct {
	Title           string             `json:"title"`
	MetaDescription string             `json:"meta_description,omitempty"`
	PrimaryKeyword  string             `json:"primary_keyword,omitempty"`
	Keywords        []string           `json:"keywords,omitempty"`
	Content         string             `json:"content"`
	Images          []Image            `json:"images,omitempty"`
	Scores          map[string]float64 `json:"scores,omitempty"`
	Refined         bool               `json:"refined"`
}

// Image is one illustration reference picked by the image stage.
type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// Job is the mutable state of one orchestration run. The orchestrator
// executing the run is the only writer; the snapshot endpoint and the SSE
// attach path read concurrently, so access goes through the lock.
type Job struct {
	mu sync.RWMutex

	id         string
	input      Input
	stageOrder []string
	stages     map[string]*StageRecord
	state      RunState
	current    string
	failure    string
	final      *FinalResult
	startedAt  time.Time
	finishedAt time.Time
}

// New creates a job for the given stage order. An empty id gets a generated
// UUID; callers may supply their own for idempotent resubmission.
func New(id string, input Input, stageOrder []string) *Job {
	if id == "" {
		id = uuid.New().String()
	}
	stages := make(map[string]*StageRecord, len(stageOrder))
	for _, name := range stageOrder {
		stages[name] = &StageRecord{Status: StatusPending}
	}
	return &Job{
		id:         id,
		input:      input,
		stageOrder: append([]string(nil), stageOrder...),
		stages:     stages,
		state:      StateNotStarted,
	}
}

func (j *Job) ID() string { return j.id }

func (j *Job) Input() Input { return j.input }

// Begin moves the run into the Running state.
func (j *Job) Begin() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateRunning
	j.startedAt = time.Now()
}

// StartStage marks a stage Running and records it as the current stage.
func (j *Job) StartStage(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stages[name].Status = StatusRunning
	j.stages[name].Error = ""
	j.current = name
}

// CompleteStage records a stage's validated output. A second call for the
// same stage (the refinement pass) replaces the prior record.
func (j *Job) CompleteStage(name string, data json.RawMessage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stages[name] = &StageRecord{Status: StatusCompleted, Data: data}
}

// FailStage records the stage failure and moves the run to Failed.
func (j *Job) FailStage(name string, reason string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stages[name].Status = StatusFailed
	j.stages[name].Error = reason
	j.state = StateFailed
	j.failure = reason
	j.finishedAt = time.Now()
}

// Complete records the final aggregated result and finishes the run.
func (j *Job) Complete(final *FinalResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.final = final
	j.state = StateCompleted
	j.finishedAt = time.Now()
}

// StageData returns a completed stage's output, or nil if the stage has not
// completed. Data is append-only: callers must not mutate the returned raw
// message.
func (j *Job) StageData(name string) json.RawMessage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.stages[name]
	if !ok || rec.Status != StatusCompleted {
		return nil
	}
	return rec.Data
}

// StageStatusOf returns the current status of a stage.
func (j *Job) StageStatusOf(name string) StageStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.stages[name]
	if !ok {
		return StatusPending
	}
	return rec.Status
}

// State returns the run-level state.
func (j *Job) State() RunState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Final returns the final result, or nil while the run is unfinished or
// failed.
func (j *Job) Final() *FinalResult {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.final
}

// Snapshot is a point-in-time, caller-owned copy of the run for diagnostics.
// Partial stage data is included on failed runs but never presented as a
// usable final result.
type Snapshot struct {
	ID           string                 `json:"id"`
	Input        Input                  `json:"input"`
	State        RunState               `json:"state"`
	CurrentStage string                 `json:"current_stage,omitempty"`
	Failure      string                 `json:"failure,omitempty"`
	StageOrder   []string               `json:"stage_order"`
	Stages       map[string]StageRecord `json:"stages"`
	FinalResult  *FinalResult           `json:"final_result,omitempty"`
	StartedAt    time.Time              `json:"started_at,omitzero"`
	FinishedAt   time.Time              `json:"finished_at,omitzero"`
}

// Snapshot copies the job state under the read lock.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	stages := make(map[string]StageRecord, len(j.stages))
	for name, rec := range j.stages {
		stages[name] = *rec
	}
	var final *FinalResult
	if j.final != nil {
		f := *j.final
		final = &f
	}
	return Snapshot{
		ID:           j.id,
		Input:        j.input,
		State:        j.state,
		CurrentStage: j.current,
		Failure:      j.failure,
		StageOrder:   append([]string(nil), j.stageOrder...),
		Stages:       stages,
		FinalResult:  final,
		StartedAt:    j.startedAt,
		FinishedAt:   j.finishedAt,
	}
}
