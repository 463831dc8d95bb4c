// Package pipeline runs an appshelf build: load, validate, aggregate,
// render, audit and write, in that order.
//
// Problems in one file, record, page or output file are accumulated as
// diagnostics and never stop sibling units. The only fatal outcome after
// startup is an empty catalogue, which moves the build to Failed.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/appshelf/internal/aggregate"
	"git.home.luguber.info/inful/appshelf/internal/audit"
	"git.home.luguber.info/inful/appshelf/internal/config"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/loader"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/metrics"
	"git.home.luguber.info/inful/appshelf/internal/output"
	"git.home.luguber.info/inful/appshelf/internal/render"
	"git.home.luguber.info/inful/appshelf/internal/schema"
)

// ErrNoEntries is the cause of a Failed build.
var ErrNoEntries = errors.New("no valid entries remain after aggregation")

// Builder runs builds for one configuration.
type Builder struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder
	observer BuildObserver
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithObserver registers an observer notified after the metrics and log
// observers.
func WithObserver(o BuildObserver) Option {
	return func(b *Builder) {
		if o != nil {
			b.observer = o
		}
	}
}

// New creates a builder.
func New(cfg *config.Config, opts ...Option) *Builder {
	b := &Builder{cfg: cfg, logger: slog.Default(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// run holds the per-build collaborators.
type run struct {
	*Builder
	logger    *slog.Logger
	schema    *schema.Schema
	templates *render.Set
	loader    *loader.Loader
}

// Build runs every stage. The returned error is a classified startup error
// (schema, templates), a cancellation, or a Failed build; partial failures
// are only reported.
func (b *Builder) Build(ctx context.Context) (*BuildReport, error) {
	return b.execute(ctx, true)
}

// Check loads, validates and aggregates without rendering or writing.
func (b *Builder) Check(ctx context.Context) (*BuildReport, error) {
	return b.execute(ctx, false)
}

func (b *Builder) execute(ctx context.Context, full bool) (*BuildReport, error) {
	report := NewBuildReport(b.cfg.OutputDir())
	r := &run{Builder: b, logger: b.logger.With(logfields.BuildID(report.BuildID))}

	s, err := schema.Load(b.cfg.SchemaPath())
	if err != nil {
		return nil, err
	}
	r.schema = s
	if full {
		set, err := render.LoadTemplates(b.cfg.TemplatesDir(), b.cfg.Templates.Pages, b.cfg.Templates.Partials)
		if err != nil {
			return nil, err
		}
		for _, terr := range set.Errors() {
			r.logger.Warn("Template unusable", logfields.Error(terr))
		}
		r.templates = set
		report.Templates = set.Fingerprints()
	}
	r.loader = loader.New(s, loader.Options{
		Root:        b.cfg.DataRoot(),
		Include:     b.cfg.Data.Include,
		Exclude:     b.cfg.Data.Exclude,
		Concurrency: b.cfg.Build.Concurrency,
		Logger:      r.logger,
		Recorder:    b.recorder,
	})

	observers := Observers{RecorderObserver{Recorder: b.recorder}, LogObserver{Logger: r.logger}}
	if b.observer != nil {
		observers = append(observers, b.observer)
	}
	bs := newBuildState(report, observers)

	stages := NewStages().
		Add(StageLoad, r.stageLoad).
		Add(StageValidate, r.stageValidate).
		Add(StageAggregate, r.stageAggregate).
		AddIf(full, StageRender, r.stageRender).
		AddIf(full && b.cfg.Build.AuditEnabled(), StageAudit, r.stageAudit).
		AddIf(full, StageWrite, r.stageWrite).
		Build()

	runErr := RunStages(ctx, bs, stages, b.recorder)
	if runErr == nil {
		_ = bs.transition(StateDone)
	}

	diag.Sort(report.Violations)
	report.Finish()
	report.DeriveOutcome()
	observers.OnBuildComplete(report)

	switch {
	case runErr == nil:
		return report, nil
	case errors.Is(runErr, ErrNoEntries):
		return report, foundation.WrapError(runErr, foundation.CategoryBuild, "build failed").
			WithContext("violations", len(report.Violations)).
			Build()
	default:
		return report, runErr
	}
}

func (r *run) stageLoad(ctx context.Context, bs *BuildState) error {
	if err := bs.transition(StateLoading); err != nil {
		return err
	}
	paths, err := r.loader.Discover()
	if err != nil {
		return NewFatalStageError(StageLoad, foundation.WrapError(err, foundation.CategoryFileSystem, "cannot list data files").
			WithContext("root", r.cfg.DataRoot()).
			Build())
	}
	r.logger.Info("Discovered data files", logfields.Count(len(paths)), logfields.Path(r.cfg.DataRoot()))
	records, vs, err := r.loader.Parse(ctx, paths)
	if err != nil {
		return err
	}
	bs.records = records
	bs.Report.Files = len(paths)
	bs.Report.Entries.Loaded = len(records)
	bs.addViolations(vs)
	return nil
}

func (r *run) stageValidate(_ context.Context, bs *BuildState) error {
	if err := bs.transition(StateValidating); err != nil {
		return err
	}
	entries, vs := r.loader.Validate(bs.records)
	bs.entries = entries
	bs.addViolations(vs)
	return nil
}

func (r *run) stageAggregate(_ context.Context, bs *BuildState) error {
	if err := bs.transition(StateAggregating); err != nil {
		return err
	}
	view, vs := aggregate.Aggregate(bs.entries, r.schema.Categories)
	bs.view = view
	bs.addViolations(vs)
	bs.Report.Entries.Skipped = bs.Report.Entries.Loaded - view.Len()
	if view.Len() == 0 {
		if err := bs.transition(StateFailed); err != nil {
			return err
		}
		return NewFatalStageError(StageAggregate, ErrNoEntries)
	}
	r.logger.Info("Aggregated catalogue", logfields.Count(view.Len()))
	return nil
}

func (r *run) stageRender(ctx context.Context, bs *BuildState) error {
	if err := bs.transition(StateRendering); err != nil {
		return err
	}
	plan := render.Plan(bs.view, r.site(), r.templates)
	renderer := render.NewRenderer(r.templates, r.cfg.Build.Concurrency, r.logger, r.recorder)
	results, vs, err := renderer.RenderAll(ctx, plan)
	if err != nil {
		return err
	}
	bs.results = results
	bs.addViolations(vs)

	rendered := make(map[string]bool, len(results))
	for _, res := range results {
		rendered[res.Path] = true
	}
	for _, p := range plan {
		if !rendered[p.Path] {
			bs.failedPages[p.Path] = true
		}
	}
	bs.Report.Pages = PageCounts{Planned: len(plan), Rendered: len(results), Failed: len(plan) - len(results)}

	onPage := 0
	for _, ev := range bs.view.Entries() {
		if !bs.failedPages[ev.Page] {
			onPage++
		}
	}
	bs.Report.Entries.Rendered = onPage
	bs.Report.Entries.Skipped = bs.Report.Entries.Loaded - onPage
	return nil
}

func (r *run) stageAudit(_ context.Context, bs *BuildState) error {
	bs.addViolations(audit.Check(bs.view, bs.results, bs.failedPages))
	return nil
}

func (r *run) stageWrite(_ context.Context, bs *BuildState) error {
	if err := bs.transition(StateWriting); err != nil {
		return err
	}
	wr := output.NewWriter(r.cfg.OutputDir(), r.logger).Write(bs.results)
	bs.addViolations(wr.Violations)
	bs.Report.Writes = WriteCounts{Written: wr.Written, Unchanged: wr.Unchanged, Failed: wr.Failed}
	return nil
}

func (r *run) site() render.Site {
	s := r.cfg.Site
	return render.Site{
		Title:       s.Title,
		BaseURL:     s.BaseURL,
		Description: s.Description,
		Locale:      s.Locale,
		Params:      s.Params,
	}
}
