package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the failure taxonomy surfaced to callers. Every run ends
// either with a report carrying explicit quality flags or with a
// PipelineError naming one of these kinds - never a silent partial result.
type ErrorKind string

const (
	ErrKindInput           ErrorKind = "input_error"             // Empty or unparseable input; fatal
	ErrKindResolutionCycle ErrorKind = "resolution_cycle"        // Circular anchor chain; localized
	ErrKindPartialStrategy ErrorKind = "partial_strategy_failure" // Assisted branch failed; degraded
	ErrKindRuleStrategy    ErrorKind = "rule_strategy_failure"    // Deterministic branch failed; defect
	ErrKindLowConfidence   ErrorKind = "low_confidence"           // Below threshold under rigorous gate
	ErrKindAborted         ErrorKind = "abort_requested"          // Cooperative cancellation
	ErrKindStageFailure    ErrorKind = "stage_failure"            // Stage error with no finer kind
)

// PipelineError is a structured failure carrying the taxonomy kind and
// the stage it occurred in
type PipelineError struct {
	Kind  ErrorKind
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at stage %s: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s at stage %s", e.Kind, e.Stage)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError wraps err with a taxonomy kind and stage
func NewPipelineError(kind ErrorKind, stage Stage, err error) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, Err: err}
}

// ErrorKindOf extracts the taxonomy kind from an error chain.
// Returns empty string when the chain carries no PipelineError.
func ErrorKindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether the error chain carries the given taxonomy kind
func IsKind(err error, kind ErrorKind) bool {
	return ErrorKindOf(err) == kind
}
