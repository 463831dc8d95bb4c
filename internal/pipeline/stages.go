package pipeline

import (
	"context"
	"fmt"
)

// Stage is a discrete unit of work in the site build.
type Stage func(ctx context.Context, bs *BuildState) error

// StageName is a strongly-typed identifier for a build stage.
type StageName string

// Canonical stage names, in execution order.
const (
	StageLoad      StageName = "load"
	StageValidate  StageName = "validate"
	StageAggregate StageName = "aggregate"
	StageRender    StageName = "render"
	StageAudit     StageName = "audit"
	StageWrite     StageName = "write"
)

// StageErrorKind classifies the outcome of a stage.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage StageName
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// StageResult captures the high-level outcome of a stage.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultWarning  StageResult = "warning"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
)

// NewFatalStageError creates a new fatal stage error.
func NewFatalStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}

func NewWarnStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}

func NewCanceledStageError(stage StageName, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   Stage
}

// Stages is a fluent builder for ordered stage definitions.
type Stages struct{ defs []StageDef }

// NewStages creates an empty stage list.
func NewStages() *Stages { return &Stages{defs: make([]StageDef, 0, 6)} }

// Add appends a stage unconditionally.
func (s *Stages) Add(name StageName, fn Stage) *Stages {
	s.defs = append(s.defs, StageDef{Name: name, Fn: fn})
	return s
}

// AddIf appends a stage only if cond is true.
func (s *Stages) AddIf(cond bool, name StageName, fn Stage) *Stages {
	if cond {
		s.Add(name, fn)
	}
	return s
}

// Build returns a copy of the stage definitions.
func (s *Stages) Build() []StageDef {
	out := make([]StageDef, len(s.defs))
	copy(out, s.defs)
	return out
}
