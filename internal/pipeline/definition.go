package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MarvinWicks1/Blog-Elite-sub000/internal/contract"
)

// InputRef names one source feeding a stage's composed input: either a field
// of the immutable job input or (a field of) a prior stage's validated
// output.
type InputRef struct {
	From  string `yaml:"from"`            // "input" or a prior stage name
	Field string `yaml:"field,omitempty"` // empty takes the whole source object
	As    string `yaml:"as"`              // key in the composed input
}

// Itemized marks a stage that runs once per element of a prior stage's
// collection. Each element gets its own atomic stage call; the per-element
// outputs aggregate into a single array field that the stage contract sees.
type Itemized struct {
	From    string `yaml:"from"`    // stage whose output holds the collection
	Field   string `yaml:"field"`   // array field within that output
	As      string `yaml:"as"`      // key each element is passed under
	Collect string `yaml:"collect"` // output field the element results collect into
}

// StageDef is one named unit of the fixed pipeline sequence.
type StageDef struct {
	Name     string             `yaml:"name"`
	Label    string             `yaml:"label"` // human-readable progress label, one-to-one
	Inputs   []InputRef         `yaml:"inputs"`
	Output   *contract.Contract `yaml:"output"`
	Itemized *Itemized          `yaml:"itemized,omitempty"`
}

// Definition is the static pipeline configuration: ordered stages, their
// contracts, and the quality-gate roles. Consulted, never mutated, during a
// run.
type Definition struct {
	Stages     []StageDef `yaml:"stages"`
	Review     string     `yaml:"review"`     // stage producing quality scores
	Refinement string     `yaml:"refinement"` // stage re-run once on a gate miss

	schemas map[string]*contract.Schema
	index   map[string]int
}

// Load reads a pipeline definition from a YAML file.
func Load(path string) (*Definition, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(bs, &def); err != nil {
		return nil, fmt.Errorf("parse pipeline file: %w", err)
	}
	if err := def.finalize(); err != nil {
		return nil, err
	}
	return &def, nil
}

// finalize checks structural invariants and compiles every stage contract.
func (d *Definition) finalize() error {
	if len(d.Stages) == 0 {
		return fmt.Errorf("pipeline has no stages")
	}
	d.index = make(map[string]int, len(d.Stages))
	d.schemas = make(map[string]*contract.Schema, len(d.Stages))
	for i, st := range d.Stages {
		if st.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if _, dup := d.index[st.Name]; dup {
			return fmt.Errorf("duplicate stage name %q", st.Name)
		}
		d.index[st.Name] = i
		if st.Output == nil {
			return fmt.Errorf("stage %q has no output contract", st.Name)
		}
		if st.Output.Stage == "" {
			st.Output.Stage = st.Name
		}
		schema, err := contract.Compile(st.Output)
		if err != nil {
			return err
		}
		d.schemas[st.Name] = schema
	}
	// Input refs and itemized sources must point strictly backwards.
	for i, st := range d.Stages {
		for _, ref := range st.Inputs {
			if ref.From == SourceInput {
				continue
			}
			src, ok := d.index[ref.From]
			if !ok {
				return fmt.Errorf("stage %q reads unknown stage %q", st.Name, ref.From)
			}
			if src >= i {
				return fmt.Errorf("stage %q reads stage %q which runs later", st.Name, ref.From)
			}
		}
		if it := st.Itemized; it != nil {
			src, ok := d.index[it.From]
			if !ok || src >= i {
				return fmt.Errorf("stage %q iterates over invalid source %q", st.Name, it.From)
			}
		}
	}
	if _, ok := d.index[d.Review]; !ok {
		return fmt.Errorf("review stage %q not in pipeline", d.Review)
	}
	if _, ok := d.index[d.Refinement]; !ok {
		return fmt.Errorf("refinement stage %q not in pipeline", d.Refinement)
	}
	return nil
}

// SourceInput is the InputRef.From value naming the job input.
const SourceInput = "input"

// Stage returns the definition of a named stage.
func (d *Definition) Stage(name string) (StageDef, bool) {
	i, ok := d.index[name]
	if !ok {
		return StageDef{}, false
	}
	return d.Stages[i], true
}

// Schema returns the compiled output contract for a stage.
func (d *Definition) Schema(name string) *contract.Schema {
	return d.schemas[name]
}

// StageNames returns the execution order.
func (d *Definition) StageNames() []string {
	names := make([]string, len(d.Stages))
	for i, st := range d.Stages {
		names[i] = st.Name
	}
	return names
}

// Label returns the human-readable progress label for a stage name.
func (d *Definition) Label(name string) string {
	if st, ok := d.Stage(name); ok && st.Label != "" {
		return st.Label
	}
	return name
}
