package commands

import (
	"log/slog"

	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/metrics"
	"git.home.luguber.info/inful/appshelf/internal/pipeline"
)

// RenderCmd implements the 'render' command.
type RenderCmd struct {
	Data        string `help:"Override data.root"`
	Output      string `short:"o" help:"Override output.directory"`
	Report      string `help:"Write the JSON build report to this file (outside the output directory)"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics in text format to this file"`
	Format      string `help:"Report format" enum:"text,json" default:"text"`
}

func (r *RenderCmd) Run(g *Global, root *CLI) error {
	cfg, logger, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, r.Data, r.Output); err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var prom *metrics.PrometheusRecorder
	if r.MetricsFile != "" {
		prom = metrics.NewPrometheusRecorder(nil)
		recorder = prom
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("Starting build",
		slog.String("data", cfg.DataRoot()),
		slog.String("output", cfg.OutputDir()))
	report, buildErr := pipeline.New(cfg, pipeline.WithLogger(logger), pipeline.WithRecorder(recorder)).Build(ctx)
	if report == nil {
		return buildErr
	}
	if err := r.finish(g, report, prom); err != nil {
		return err
	}
	if buildErr != nil {
		return buildErr
	}
	return warningsError(cfg, report)
}

// finish emits and persists the report and the metrics dump.
func (r *RenderCmd) finish(g *Global, report *pipeline.BuildReport, prom *metrics.PrometheusRecorder) error {
	if err := emitReport(g, report, r.Format); err != nil {
		return err
	}
	if r.Report != "" {
		if err := report.Persist(r.Report); err != nil {
			return err
		}
		slog.Info("Build report written", logfields.Path(r.Report))
	}
	if prom != nil {
		if err := prom.WriteTextfile(r.MetricsFile); err != nil {
			return foundation.WrapError(err, foundation.CategoryFileSystem, "failed to write metrics file").
				WithContext("path", r.MetricsFile).
				Build()
		}
	}
	return nil
}
