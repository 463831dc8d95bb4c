package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/appshelf/internal/diag"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/output"
	"git.home.luguber.info/inful/appshelf/internal/version"
)

// reportSchemaVersion is bumped when the JSON layout changes incompatibly.
const reportSchemaVersion = 1

// BuildOutcome is the typed enumeration of final build result states.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// EntryCounts tracks entries through the build.
type EntryCounts struct {
	Loaded   int `json:"loaded"`   // records read from data files
	Rendered int `json:"rendered"` // entries placed on a rendered page
	Skipped  int `json:"skipped"`  // loaded but not rendered
}

// PageCounts tracks planned pages.
type PageCounts struct {
	Planned  int `json:"planned"`
	Rendered int `json:"rendered"`
	Failed   int `json:"failed"`
}

// WriteCounts mirrors output.WriteReport.
type WriteCounts struct {
	Written   int `json:"written"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// BuildReport captures the result of one pipeline run.
type BuildReport struct {
	BuildID    string
	Start      time.Time
	End        time.Time
	State      State
	Outcome    BuildOutcome
	Violations []diag.Violation
	// Errors holds stage errors that aborted the run.
	Errors []error
	// Warnings holds non-fatal stage errors.
	Warnings       []error
	Files          int
	Entries        EntryCounts
	Pages          PageCounts
	Writes         WriteCounts
	StageDurations map[StageName]time.Duration
	StageResults   map[StageName]StageResult
	// Templates maps template names to their content fingerprints.
	Templates map[string]string
	// OutputRoot is the rendered site root; the report never goes there.
	OutputRoot string
}

// NewBuildReport constructs a new BuildReport with a fresh build id.
func NewBuildReport(outputRoot string) *BuildReport {
	return &BuildReport{
		BuildID:        uuid.NewString(),
		Start:          time.Now(),
		State:          StateIdle,
		StageDurations: make(map[StageName]time.Duration),
		StageResults:   make(map[StageName]StageResult),
		Templates:      make(map[string]string),
		OutputRoot:     outputRoot,
	}
}

// Finish sets the end time of the report.
func (r *BuildReport) Finish() { r.End = time.Now() }

// RecordStage stores a stage's duration and result.
func (r *BuildReport) RecordStage(stage StageName, d time.Duration, res StageResult) {
	r.StageDurations[stage] = d
	r.StageResults[stage] = res
}

// ViolationsByKind groups the report's violations by kind.
func (r *BuildReport) ViolationsByKind() map[diag.Kind][]diag.Violation {
	return diag.GroupByKind(r.Violations)
}

// ErrorCount returns the number of error-severity violations.
func (r *BuildReport) ErrorCount() int { return diag.Count(r.Violations, diag.SeverityError) }

// WarningCount returns the number of warning-severity violations.
func (r *BuildReport) WarningCount() int { return diag.Count(r.Violations, diag.SeverityWarning) }

// DeriveOutcome sets Outcome from the final state, stage errors and
// violations. Violations of either severity make a completed build a
// warning; only an aborted run fails.
func (r *BuildReport) DeriveOutcome() {
	for _, e := range r.Errors {
		var se *StageError
		if errors.As(e, &se) && se.Kind == StageErrorCanceled {
			r.Outcome = OutcomeCanceled
			return
		}
	}
	switch {
	case r.State == StateFailed || len(r.Errors) > 0:
		r.Outcome = OutcomeFailed
	case len(r.Violations) > 0 || len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomeSuccess
	}
}

// Summary returns a human-readable single-line summary.
func (r *BuildReport) Summary() string {
	dur := r.End.Sub(r.Start)
	return fmt.Sprintf("outcome=%s state=%s files=%d entries=%d/%d pages=%d/%d written=%d unchanged=%d failed=%d errors=%d warnings=%d duration=%s",
		r.Outcome, r.State, r.Files,
		r.Entries.Rendered, r.Entries.Loaded,
		r.Pages.Rendered, r.Pages.Planned,
		r.Writes.Written, r.Writes.Unchanged, r.Writes.Failed,
		r.ErrorCount(), r.WarningCount(), dur.Truncate(time.Millisecond))
}

// Persist writes the report as JSON to path atomically. Paths inside the
// output root are refused so reports never end up in the published site.
func (r *BuildReport) Persist(path string) error {
	if r.End.IsZero() {
		r.Finish()
		r.DeriveOutcome()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve report path: %w", err)
	}
	if r.OutputRoot != "" && within(r.OutputRoot, abs) {
		return foundation.ValidationError("report path is inside the output directory").
			WithContext("path", abs).
			WithContext("output", r.OutputRoot).
			Build()
	}
	data, err := json.MarshalIndent(r.Serializable(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}
	if err := output.WriteAtomic(abs, append(data, '\n'), 0o600); err != nil {
		return foundation.WrapError(err, foundation.CategoryFileSystem, "failed to write build report").
			WithContext("path", abs).
			Build()
	}
	return nil
}

func within(root, path string) bool {
	root, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Serializable returns the JSON form of the report.
func (r *BuildReport) Serializable() *BuildReportSerializable {
	s := &BuildReportSerializable{
		SchemaVersion:  reportSchemaVersion,
		BuildID:        r.BuildID,
		Version:        version.Version,
		Start:          r.Start,
		End:            r.End,
		DurationMS:     r.End.Sub(r.Start).Milliseconds(),
		State:          string(r.State),
		Outcome:        string(r.Outcome),
		Errors:         make([]string, len(r.Errors)),
		Warnings:       make([]string, len(r.Warnings)),
		Files:          r.Files,
		Entries:        r.Entries,
		Pages:          r.Pages,
		Writes:         r.Writes,
		StageDurations: make(map[string]float64, len(r.StageDurations)),
		StageResults:   make(map[string]string, len(r.StageResults)),
		Templates:      r.Templates,
		Counts:         make(map[string]ViolationCount),
		Violations:     make(map[string][]diag.Violation),
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	for k, d := range r.StageDurations {
		s.StageDurations[string(k)] = float64(d.Microseconds()) / 1000
	}
	for k, res := range r.StageResults {
		s.StageResults[string(k)] = string(res)
	}
	for kind, group := range r.ViolationsByKind() {
		s.Counts[string(kind)] = ViolationCount{
			Errors:   diag.Count(group, diag.SeverityError),
			Warnings: diag.Count(group, diag.SeverityWarning),
		}
		s.Violations[string(kind)] = group
	}
	if s.Templates == nil {
		s.Templates = map[string]string{}
	}
	return s
}

// ViolationCount is the per-kind tally in the JSON report.
type ViolationCount struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// BuildReportSerializable is the JSON document written by Persist and
// printed by --format json.
type BuildReportSerializable struct {
	SchemaVersion  int                         `json:"schema_version"`
	BuildID        string                      `json:"build_id"`
	Version        string                      `json:"version"`
	Start          time.Time                   `json:"start"`
	End            time.Time                   `json:"end"`
	DurationMS     int64                       `json:"duration_ms"`
	State          string                      `json:"state"`
	Outcome        string                      `json:"outcome"`
	Errors         []string                    `json:"errors"`
	Warnings       []string                    `json:"warnings"`
	Files          int                         `json:"files"`
	Entries        EntryCounts                 `json:"entries"`
	Pages          PageCounts                  `json:"pages"`
	Writes         WriteCounts                 `json:"writes"`
	StageDurations map[string]float64          `json:"stage_durations_ms"`
	StageResults   map[string]string           `json:"stage_results"`
	Templates      map[string]string           `json:"templates"`
	Counts         map[string]ViolationCount   `json:"counts"`
	Violations     map[string][]diag.Violation `json:"violations"`
}
