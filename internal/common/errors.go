package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a stage failure.
type ErrorKind string

const (
	// KindTimeout means the stage exceeded its per-call bound.
	KindTimeout ErrorKind = "timeout"
	// KindTransport means the stage call completed but signaled failure
	// (non-2xx status, unreachable endpoint, malformed response body).
	KindTransport ErrorKind = "transport"
	// KindContractViolation means the stage returned successfully but its
	// output failed shape validation.
	KindContractViolation ErrorKind = "contract_violation"
	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "unknown"
)

// StageError is the uniform failure type for anything that goes wrong inside
// one pipeline stage. It always names the stage so callers can diagnose a
// failed run without inspecting internals.
type StageError struct {
	Stage      string
	Kind       ErrorKind
	Message    string
	Status     int      // upstream HTTP status for transport errors, 0 otherwise
	Violations []string // populated for contract violations
	Cause      error
}

func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s: %s", e.Stage, e.Kind)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Violations) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Violations, "; "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// Error constructors

func NewTimeoutError(stage string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: KindTimeout, Message: "stage call exceeded its timeout", Cause: cause}
}

func NewTransportError(stage string, status int, message string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: KindTransport, Status: status, Message: message, Cause: cause}
}

func NewContractViolation(stage string, violations []string) *StageError {
	return &StageError{Stage: stage, Kind: KindContractViolation, Message: "output failed contract validation", Violations: violations}
}

func NewUnknownError(stage string, cause error) *StageError {
	return &StageError{Stage: stage, Kind: KindUnknown, Message: "unexpected stage failure", Cause: cause}
}

// AsStageError extracts a *StageError from err, wrapping unclassified errors
// as KindUnknown so every failure carries a stage attribution.
func AsStageError(stage string, err error) *StageError {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return NewUnknownError(stage, err)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
