package contract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Result is the outcome of validating one value against one contract.
// Violations lists every detected problem; validation never short-circuits,
// so a failing stage produces a complete diagnostic in one pass.
type Result struct {
	OK         bool
	Violations []string
}

// Schema is a compiled contract, safe for concurrent use.
type Schema struct {
	stage    string
	compiled *jsonschema.Schema
}

// Compile turns a contract into a reusable validator.
func Compile(c *Contract) (*Schema, error) {
	b, err := json.Marshal(c.BuildJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema for stage %s: %w", c.Stage, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema for stage %s: %w", c.Stage, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for stage %s: %w", c.Stage, err)
	}
	return &Schema{stage: c.Stage, compiled: compiled}, nil
}

// Validate checks raw JSON against the compiled contract. Pure function of
// its inputs: identical arguments always yield identical results.
func (s *Schema) Validate(data []byte) Result {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Result{Violations: []string{fmt.Sprintf("/: output is not valid JSON: %v", err)}}
	}
	return s.ValidateValue(v)
}

// ValidateValue checks an already-decoded JSON value against the contract.
func (s *Schema) ValidateValue(v any) Result {
	err := s.compiled.Validate(v)
	if err == nil {
		return Result{OK: true}
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return Result{Violations: []string{err.Error()}}
	}
	var violations []string
	flatten(ve, &violations)
	return Result{Violations: violations}
}

// Validate compiles and runs a contract in one shot. The orchestrator
// compiles contracts once at definition load; this is for one-off callers.
func Validate(c *Contract, data []byte) (Result, error) {
	s, err := Compile(c)
	if err != nil {
		return Result{}, err
	}
	return s.Validate(data), nil
}

// flatten walks the validation error tree and keeps the leaf messages,
// each prefixed with its instance location.
func flatten(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		flatten(c, out)
	}
}
