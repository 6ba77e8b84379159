package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/job"
)

// compose builds a stage's input object from the immutable job input and
// prior completed stage outputs. Pure, declarative merge: no stage ever sees
// output of a stage that has not completed yet, and nothing here mutates the
// job.
func compose(st StageDef, j *job.Job) (map[string]any, error) {
	out := make(map[string]any, len(st.Inputs))
	for _, ref := range st.Inputs {
		v, err := resolve(ref, j)
		if err != nil {
			return nil, fmt.Errorf("compose input for stage %s: %w", st.Name, err)
		}
		out[ref.As] = v
	}
	return out, nil
}

func resolve(ref InputRef, j *job.Job) (any, error) {
	if ref.From == SourceInput {
		in := j.Input()
		switch ref.Field {
		case "subject":
			return in.Subject, nil
		case "context":
			return in.Context, nil
		case "instructions":
			return in.Instructions, nil
		case "":
			return map[string]any{
				"subject":      in.Subject,
				"context":      in.Context,
				"instructions": in.Instructions,
			}, nil
		default:
			return nil, fmt.Errorf("unknown job input field %q", ref.Field)
		}
	}

	raw := j.StageData(ref.From)
	if raw == nil {
		return nil, fmt.Errorf("stage %q has not completed", ref.From)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode output of stage %q: %w", ref.From, err)
	}
	if ref.Field == "" {
		return m, nil
	}
	v, ok := m[ref.Field]
	if !ok {
		return nil, fmt.Errorf("output of stage %q has no field %q", ref.From, ref.Field)
	}
	return v, nil
}

// collection extracts the array an itemized stage iterates over.
func collection(it *Itemized, j *job.Job) ([]any, error) {
	raw := j.StageData(it.From)
	if raw == nil {
		return nil, fmt.Errorf("itemized source stage %q has not completed", it.From)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode output of stage %q: %w", it.From, err)
	}
	items, ok := m[it.Field].([]any)
	if !ok {
		return nil, fmt.Errorf("field %q of stage %q is not an array", it.Field, it.From)
	}
	return items, nil
}
