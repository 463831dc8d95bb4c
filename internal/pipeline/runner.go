package pipeline

import (
	"context"
	"errors"
	"time"

	"git.home.luguber.info/inful/appshelf/internal/metrics"
)

// RunStages executes stages in order, recording timing and stopping on the
// first fatal error or cancellation. A stage that adds violations without
// failing is recorded as a warning.
func RunStages(ctx context.Context, bs *BuildState, stages []StageDef, recorder metrics.Recorder) error {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			se := NewCanceledStageError(st.Name, err)
			bs.Report.Errors = append(bs.Report.Errors, se)
			recordStage(bs, recorder, st.Name, 0, StageResultCanceled)
			return se
		}

		bs.observer.OnStageStart(st.Name)
		before := len(bs.Report.Violations)

		t0 := time.Now()
		err := st.Fn(ctx, bs)
		dur := time.Since(t0)

		res, se := classifyStageResult(st.Name, err, len(bs.Report.Violations) > before)
		recordStage(bs, recorder, st.Name, dur, res)

		if se == nil {
			continue
		}
		if se.Kind == StageErrorWarning {
			bs.Report.Warnings = append(bs.Report.Warnings, se)
			continue
		}
		bs.Report.Errors = append(bs.Report.Errors, se)
		return se
	}
	return nil
}

func recordStage(bs *BuildState, recorder metrics.Recorder, stage StageName, d time.Duration, res StageResult) {
	bs.Report.RecordStage(stage, d, res)
	recorder.IncStageResult(string(stage), resultLabel(res))
	bs.observer.OnStageComplete(stage, d, res)
}

// classifyStageResult converts a raw stage error into a result. Plain
// errors are fatal; context errors are cancellations.
func classifyStageResult(stage StageName, err error, addedViolations bool) (StageResult, *StageError) {
	if err == nil {
		if addedViolations {
			return StageResultWarning, nil
		}
		return StageResultSuccess, nil
	}
	var se *StageError
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			se = NewCanceledStageError(stage, err)
		} else {
			se = NewFatalStageError(stage, err)
		}
	}
	switch se.Kind {
	case StageErrorWarning:
		return StageResultWarning, se
	case StageErrorCanceled:
		return StageResultCanceled, se
	default:
		return StageResultFatal, se
	}
}

func resultLabel(res StageResult) metrics.ResultLabel {
	switch res {
	case StageResultWarning:
		return metrics.ResultWarning
	case StageResultFatal:
		return metrics.ResultFatal
	case StageResultCanceled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultSuccess
	}
}
