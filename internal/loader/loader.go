// Package loader discovers data files, decodes their records and turns the
// records that pass schema validation into catalogue entries.
//
// Every failure is reported as a diagnostic attached to the smallest unit it
// affects: a malformed file contributes no records, an invalid record is
// excluded on its own, and nothing stops sibling files or records.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/markdown"
	"git.home.luguber.info/inful/appshelf/internal/metrics"
	"git.home.luguber.info/inful/appshelf/internal/schema"
)

// Record is one decoded record awaiting validation.
type Record struct {
	Fields map[string]any
	// Value holds the decoded record when it is not a mapping.
	Value  any
	Kind   string
	Source diag.Provenance
}

// Options configure a Loader.
type Options struct {
	Root        string
	Include     []string
	Exclude     []string
	Concurrency int
	Logger      *slog.Logger
	Recorder    metrics.Recorder
}

// Loader reads catalogue entries for one schema.
type Loader struct {
	schema   *schema.Schema
	opts     Options
	markdown *markdown.Renderer
	logger   *slog.Logger
	recorder metrics.Recorder
}

// New creates a loader. The schema must already be compiled.
func New(s *schema.Schema, opts Options) *Loader {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var rec metrics.Recorder = metrics.NoopRecorder{}
	if opts.Recorder != nil {
		rec = opts.Recorder
	}
	return &Loader{
		schema:   s,
		opts:     opts,
		markdown: markdown.New(),
		logger:   logger,
		recorder: rec,
	}
}

// Discover lists the data files of the configured root, skipping the
// schema's own files.
func (l *Loader) Discover() ([]string, error) {
	return Discover(l.opts.Root, l.opts.Include, l.opts.Exclude, l.schema.Files)
}

// LoadAll parses and validates the given data-root relative paths. It
// returns the accepted entries ordered by source and every violation. The
// error is non-nil only when ctx is canceled.
func (l *Loader) LoadAll(ctx context.Context, paths []string) ([]*catalog.Entry, []diag.Violation, error) {
	records, parseViolations, err := l.Parse(ctx, paths)
	if err != nil {
		return nil, parseViolations, err
	}
	entries, violations := l.Validate(records)
	return entries, append(parseViolations, violations...), nil
}

type fileResult struct {
	records    []Record
	violations []diag.Violation
}

// Parse decodes files concurrently. Results are merged in the order of
// paths, independent of completion order.
func (l *Loader) Parse(ctx context.Context, paths []string) ([]Record, []diag.Violation, error) {
	results := make([]fileResult, len(paths))
	workers := min(l.opts.Concurrency, max(len(paths), 1))
	l.recorder.SetWorkers("load", workers)

	tasks := make(chan int)
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for i := range tasks {
			if ctx.Err() != nil {
				continue
			}
			results[i] = l.parseFile(paths[i])
		}
	}
	wg.Add(workers)
	for range workers {
		go worker()
	}
	for i := range paths {
		if ctx.Err() != nil {
			break
		}
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		records    []Record
		violations []diag.Violation
	)
	for _, r := range results {
		records = append(records, r.records...)
		violations = append(violations, r.violations...)
	}
	return records, violations, nil
}

func (l *Loader) parseFile(rel string) fileResult {
	src := diag.FileOnly(rel)
	fail := func(format string, args ...any) fileResult {
		v := diag.Errorf(diag.KindParse, src, "", format, args...)
		l.logger.Warn("Skipping data file", logfields.File(rel), slog.String("reason", v.Message))
		return fileResult{violations: []diag.Violation{v}}
	}

	format, ok := FormatOf(rel)
	if !ok {
		return fail("unsupported file extension %q", path.Ext(rel))
	}
	// #nosec G304 -- rel was discovered under the data root.
	data, err := os.ReadFile(filepath.Join(l.opts.Root, filepath.FromSlash(rel)))
	if err != nil {
		return fail("read: %v", err)
	}
	doc, err := decode(format, data)
	if errors.Is(err, errEmptyDocument) {
		return fileResult{violations: []diag.Violation{diag.Warnf(diag.KindParse, src, "", "document is empty")}}
	}
	if err != nil {
		return fail("%v", err)
	}

	kind, err := l.fileKind(rel, doc.kind)
	if err != nil {
		return fail("%v", err)
	}

	res := fileResult{records: make([]Record, 0, len(doc.records))}
	for _, key := range doc.unknown {
		res.violations = append(res.violations, diag.Warnf(diag.KindParse, src, key, "unknown top-level key ignored"))
	}
	for i, raw := range doc.records {
		rec := Record{
			Kind:   kind,
			Source: diag.Provenance{File: rel, Index: i, Line: raw.line},
		}
		if m, ok := raw.value.(map[string]any); ok {
			rec.Fields = m
		} else {
			rec.Value = raw.value
		}
		res.records = append(res.records, rec)
	}
	l.logger.Debug("Parsed data file", logfields.File(rel), logfields.Kind(kind), logfields.Count(len(res.records)))
	return res
}

// fileKind resolves the kind of a file: the document's own kind, else its
// first directory segment when that names a kind, else the default kind.
func (l *Loader) fileKind(rel, declared string) (string, error) {
	if declared != "" {
		if _, ok := l.schema.Kind(declared); !ok {
			return "", fmt.Errorf("unknown kind %q (known: %s)", declared, strings.Join(l.schema.KindNames(), ", "))
		}
		return declared, nil
	}
	if dir, _, found := strings.Cut(rel, "/"); found {
		if _, ok := l.schema.Kind(dir); ok {
			return dir, nil
		}
	}
	return l.schema.DefaultKind, nil
}
