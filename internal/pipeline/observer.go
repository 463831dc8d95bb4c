package pipeline

import (
	"log/slog"
	"time"

	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/metrics"
)

// BuildObserver receives callbacks around stage execution and build lifecycle.
type BuildObserver interface {
	OnStateChange(from, to State)
	OnStageStart(stage StageName)
	OnStageComplete(stage StageName, duration time.Duration, result StageResult)
	OnBuildComplete(report *BuildReport)
}

// NoopObserver is a no-op implementation.
type NoopObserver struct{}

func (NoopObserver) OnStateChange(_, _ State)                                    {}
func (NoopObserver) OnStageStart(_ StageName)                                    {}
func (NoopObserver) OnStageComplete(_ StageName, _ time.Duration, _ StageResult) {}
func (NoopObserver) OnBuildComplete(_ *BuildReport)                              {}

// RecorderObserver adapts metrics.Recorder into a BuildObserver.
type RecorderObserver struct{ Recorder metrics.Recorder }

func (r RecorderObserver) OnStateChange(_, _ State)  {}
func (r RecorderObserver) OnStageStart(_ StageName) {}

func (r RecorderObserver) OnStageComplete(stage StageName, d time.Duration, _ StageResult) {
	if r.Recorder != nil {
		r.Recorder.ObserveStageDuration(string(stage), d)
	}
}

func (r RecorderObserver) OnBuildComplete(report *BuildReport) {
	if r.Recorder == nil {
		return
	}
	r.Recorder.ObserveBuildDuration(report.End.Sub(report.Start))
	r.Recorder.IncBuildOutcome(metrics.BuildOutcomeLabel(report.Outcome))
	for kind, group := range report.ViolationsByKind() {
		r.Recorder.AddViolations(string(kind), diag.SeverityError.String(), diag.Count(group, diag.SeverityError))
		r.Recorder.AddViolations(string(kind), diag.SeverityWarning.String(), diag.Count(group, diag.SeverityWarning))
	}
	r.Recorder.AddEntries("loaded", report.Entries.Loaded)
	r.Recorder.AddEntries("rendered", report.Entries.Rendered)
	r.Recorder.AddEntries("skipped", report.Entries.Skipped)
	r.Recorder.AddWrites("written", report.Writes.Written)
	r.Recorder.AddWrites("unchanged", report.Writes.Unchanged)
	r.Recorder.AddWrites("failed", report.Writes.Failed)
}

// LogObserver logs lifecycle events.
type LogObserver struct{ Logger *slog.Logger }

func (l LogObserver) OnStateChange(from, to State) {
	l.Logger.Debug("Build state", slog.String("from", string(from)), logfields.State(string(to)))
}

func (l LogObserver) OnStageStart(stage StageName) {
	l.Logger.Debug("Stage started", logfields.Stage(string(stage)))
}

func (l LogObserver) OnStageComplete(stage StageName, d time.Duration, result StageResult) {
	l.Logger.Info("Stage complete",
		logfields.Stage(string(stage)),
		logfields.DurationMS(float64(d.Microseconds())/1000),
		slog.String("result", string(result)))
}

func (l LogObserver) OnBuildComplete(report *BuildReport) {
	l.Logger.Info("Build complete",
		logfields.BuildID(report.BuildID),
		logfields.State(string(report.State)),
		slog.String("outcome", string(report.Outcome)),
		logfields.DurationMS(float64(report.End.Sub(report.Start).Microseconds())/1000))
}

// Observers fans callbacks out to several observers in order.
type Observers []BuildObserver

func (o Observers) OnStateChange(from, to State) {
	for _, ob := range o {
		ob.OnStateChange(from, to)
	}
}

func (o Observers) OnStageStart(stage StageName) {
	for _, ob := range o {
		ob.OnStageStart(stage)
	}
}

func (o Observers) OnStageComplete(stage StageName, d time.Duration, result StageResult) {
	for _, ob := range o {
		ob.OnStageComplete(stage, d, result)
	}
}

func (o Observers) OnBuildComplete(report *BuildReport) {
	for _, ob := range o {
		ob.OnBuildComplete(report)
	}
}
