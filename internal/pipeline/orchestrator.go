package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/bus"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/common"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/gateway"
	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/job"
)

// Invoker is the Stage Function boundary the orchestrator calls through.
// *gateway.Gateway is the production implementation.
type Invoker interface {
	Invoke(ctx context.Context, stage string, input any, timeout time.Duration) (json.RawMessage, error)
}

var _ Invoker = (*gateway.Gateway)(nil)

// Orchestrator runs the full ordered stage sequence for one job: composing
// inputs, invoking stages through the gateway, validating outputs, reporting
// transitions on the bus, and applying the quality gate. Stages execute
// strictly sequentially; a failing stage aborts the whole run.
type Orchestrator struct {
	def        *Definition
	gw         Invoker
	bus        *bus.Bus
	log        *slog.Logger
	timeout    time.Duration
	thresholds Thresholds
}

func NewOrchestrator(def *Definition, gw Invoker, b *bus.Bus, timeout time.Duration, thresholds Thresholds, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		def:        def,
		gw:         gw,
		bus:        b,
		log:        logger,
		timeout:    timeout,
		thresholds: thresholds,
	}
}

// Definition exposes the stage catalog for callers building jobs.
func (o *Orchestrator) Definition() *Definition { return o.def }

// Run drives the job to a terminal state and returns the final aggregated
// result. Precomputed outputs, keyed by stage name, are contract-validated
// and recorded without invoking the stage function. The returned error is
// always a *common.StageError naming the failed stage.
func (o *Orchestrator) Run(ctx context.Context, j *job.Job, precomputed map[string]json.RawMessage) (*job.FinalResult, error) {
	start := time.Now()
	j.Begin()
	o.bus.Publish(j.ID(), bus.NewEvent(bus.Heartbeat, "", nil))
	o.log.Info("pipeline.run.start", "job_id", j.ID(), "subject", j.Input().Subject, "stages", len(o.def.Stages))

	for _, st := range o.def.Stages {
		if raw, ok := precomputed[st.Name]; ok {
			if err := o.recordPrecomputed(j, st, raw); err != nil {
				return nil, err
			}
			continue
		}
		if err := o.runStage(ctx, j, st, false); err != nil {
			return nil, err
		}
	}

	scores, refined, err := o.applyQualityGate(ctx, j)
	if err != nil {
		return nil, err
	}

	final, err := assembleFinal(o.def, j, scores, refined)
	if err != nil {
		return nil, o.fail(j, common.NewUnknownError(o.def.Review, err))
	}
	j.Complete(final)
	o.bus.Publish(j.ID(), bus.NewEvent(bus.Done, "", map[string]any{
		"title":   final.Title,
		"refined": final.Refined,
		"scores":  final.Scores,
	}))
	o.log.Info("pipeline.run.ok", "job_id", j.ID(), "refined", refined, "elapsed_ms", time.Since(start).Milliseconds())
	return final, nil
}

// runStage executes one stage end to end: compose, invoke, validate, record.
// refinement marks the single quality-gate re-run of the refinement stage.
func (o *Orchestrator) runStage(ctx context.Context, j *job.Job, st StageDef, refinement bool) error {
	stageStart := time.Now()
	o.bus.Publish(j.ID(), bus.NewEvent(bus.StageStart, st.Name, map[string]any{
		"label":      o.def.Label(st.Name),
		"refinement": refinement,
	}))
	j.StartStage(st.Name)

	input, err := compose(st, j)
	if err != nil {
		return o.fail(j, common.NewUnknownError(st.Name, err))
	}

	var raw json.RawMessage
	if st.Itemized != nil {
		raw, err = o.runItemized(ctx, j, st, input)
	} else {
		raw, err = o.gw.Invoke(ctx, st.Name, input, o.timeout)
	}
	if err != nil {
		return o.fail(j, common.AsStageError(st.Name, err))
	}

	// Shape correctness is as load-bearing as transport success: a
	// contract miss fails the stage even though the call succeeded.
	if res := o.def.Schema(st.Name).Validate(raw); !res.OK {
		return o.fail(j, common.NewContractViolation(st.Name, res.Violations))
	}

	j.CompleteStage(st.Name, raw)
	o.bus.Publish(j.ID(), bus.NewEvent(bus.StageComplete, st.Name, map[string]any{
		"label": o.def.Label(st.Name),
	}))
	o.log.Info("pipeline.stage.ok",
		"job_id", j.ID(),
		"stage", st.Name,
		"refinement", refinement,
		"elapsed_ms", time.Since(stageStart).Milliseconds(),
	)
	return nil
}

// runItemized invokes the stage function once per element of the source
// collection, sequentially, publishing a StepProgress percentage after each
// element, and aggregates the outputs under the Collect field.
func (o *Orchestrator) runItemized(ctx context.Context, j *job.Job, st StageDef, base map[string]any) (json.RawMessage, error) {
	items, err := collection(st.Itemized, j)
	if err != nil {
		return nil, common.NewUnknownError(st.Name, err)
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		input := make(map[string]any, len(base)+3)
		for k, v := range base {
			input[k] = v
		}
		input[st.Itemized.As] = item
		input["item_index"] = i
		input["item_count"] = len(items)

		raw, err := o.gw.Invoke(ctx, st.Name, input, o.timeout)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, common.NewUnknownError(st.Name, fmt.Errorf("decode item %d output: %w", i, err))
		}
		results = append(results, decoded)

		o.bus.Publish(j.ID(), bus.NewEvent(bus.StepProgress, st.Name, map[string]any{
			"progress": (i + 1) * 100 / len(items),
			"label":    o.def.Label(st.Name),
		}))
	}

	out, err := json.Marshal(map[string]any{st.Itemized.Collect: results})
	if err != nil {
		return nil, common.NewUnknownError(st.Name, err)
	}
	return out, nil
}

// recordPrecomputed accepts a caller-supplied stage output instead of
// invoking the stage, holding it to the same contract.
func (o *Orchestrator) recordPrecomputed(j *job.Job, st StageDef, raw json.RawMessage) error {
	if res := o.def.Schema(st.Name).Validate(raw); !res.OK {
		return o.fail(j, common.NewContractViolation(st.Name, res.Violations))
	}
	j.CompleteStage(st.Name, raw)
	o.bus.Publish(j.ID(), bus.NewEvent(bus.StageComplete, st.Name, map[string]any{
		"label":       o.def.Label(st.Name),
		"precomputed": true,
	}))
	o.log.Info("pipeline.stage.precomputed", "job_id", j.ID(), "stage", st.Name)
	return nil
}

// applyQualityGate reads the review scores and, on a threshold miss, re-runs
// the refinement stage exactly once, replacing its record and accepting the
// result unconditionally. The retry budget is one, not a loop: a second
// attempt against a non-deterministic generator is worth shipping, an
// unbounded retry is not.
func (o *Orchestrator) applyQualityGate(ctx context.Context, j *job.Job) (Scores, bool, error) {
	scores, err := ParseScores(j.StageData(o.def.Review))
	if err != nil {
		return Scores{}, false, o.fail(j, common.NewUnknownError(o.def.Review, err))
	}

	misses := o.thresholds.Misses(scores)
	if len(misses) == 0 {
		return scores, false, nil
	}

	o.log.Warn("pipeline.gate.refining",
		"job_id", j.ID(),
		"refinement_stage", o.def.Refinement,
		"misses", misses,
	)
	st, _ := o.def.Stage(o.def.Refinement)
	if err := o.runStage(ctx, j, st, true); err != nil {
		return Scores{}, false, err
	}
	return scores, true, nil
}

// fail records the stage failure, publishes the terminal StageFailed event,
// and returns the error. Downstream stages never run: partial, inconsistent
// pipelines are worse than an early, clearly-attributed failure.
func (o *Orchestrator) fail(j *job.Job, se *common.StageError) error {
	j.FailStage(se.Stage, se.Error())
	o.bus.Publish(j.ID(), bus.NewEvent(bus.StageFailed, se.Stage, map[string]any{
		"kind":       string(se.Kind),
		"message":    se.Message,
		"violations": se.Violations,
		"error":      se.Error(),
	}))
	o.log.Error("pipeline.stage.failed",
		"job_id", j.ID(),
		"stage", se.Stage,
		"kind", se.Kind,
		"error", se.Error(),
	)
	return se
}
