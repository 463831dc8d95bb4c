package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/metrics"
)

// TemplateError reports a page that could not be rendered.
type TemplateError struct {
	Page     string
	Template string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("page %s (template %s): %v", e.Page, e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Violation converts the error to a diagnostic attached to the page.
func (e *TemplateError) Violation() diag.Violation {
	return diag.Errorf(diag.KindTemplate, diag.Provenance{}, "", "template %s: %v", e.Template, e.Err).WithSubject(e.Page)
}

// Result is one rendered page.
type Result struct {
	PageID  string
	Path    string
	Content []byte
	// Hash is the hex sha256 of Content.
	Hash string
}

// NewResult builds a result and computes its hash.
func NewResult(pageID, path string, content []byte) Result {
	sum := sha256.Sum256(content)
	return Result{PageID: pageID, Path: path, Content: content, Hash: hex.EncodeToString(sum[:])}
}

// RenderPage executes the template registered for kind against ctx.
func (s *Set) RenderPage(kind PageKind, ctx *Context) (string, error) {
	pageID := ""
	if ctx != nil {
		pageID = ctx.Page.ID
	}
	t, ok := s.byKind[kind]
	if !ok {
		return "", &TemplateError{Page: pageID, Template: string(kind), Err: fmt.Errorf("no template for page kind %q", kind)}
	}
	if t.Err != nil {
		return "", &TemplateError{Page: pageID, Template: t.Name, Err: t.Err}
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, ctx); err != nil {
		return "", &TemplateError{Page: pageID, Template: t.Name, Err: err}
	}
	return buf.String(), nil
}

// Renderer renders planned pages concurrently.
type Renderer struct {
	set         *Set
	concurrency int
	logger      *slog.Logger
	recorder    metrics.Recorder
}

// NewRenderer creates a renderer for set.
func NewRenderer(set *Set, concurrency int, logger *slog.Logger, recorder metrics.Recorder) *Renderer {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Renderer{set: set, concurrency: concurrency, logger: logger, recorder: recorder}
}

type pageOutcome struct {
	result *Result
	err    *TemplateError
}

// RenderAll renders every page. Results keep plan order; failed pages are
// omitted and reported as TemplateError violations. The error is non-nil
// only when ctx is canceled.
func (r *Renderer) RenderAll(ctx context.Context, plan []Page) ([]Result, []diag.Violation, error) {
	outcomes := make([]pageOutcome, len(plan))
	workers := min(r.concurrency, max(len(plan), 1))
	r.recorder.SetWorkers("render", workers)

	tasks := make(chan int)
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for i := range tasks {
			if ctx.Err() != nil {
				continue
			}
			outcomes[i] = r.renderOne(plan[i])
		}
	}
	wg.Add(workers)
	for range workers {
		go worker()
	}
	for i := range plan {
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

	results := make([]Result, 0, len(plan))
	var violations []diag.Violation
	for _, o := range outcomes {
		if o.err != nil {
			violations = append(violations, o.err.Violation())
			continue
		}
		results = append(results, *o.result)
	}
	return results, violations, nil
}

func (r *Renderer) renderOne(p Page) pageOutcome {
	out, err := r.set.RenderPage(p.Kind, p.Context)
	if err != nil {
		var te *TemplateError
		if !errors.As(err, &te) {
			te = &TemplateError{Page: p.ID, Template: string(p.Kind), Err: err}
		}
		r.logger.Warn("Page render failed", logfields.Page(p.ID), logfields.Template(te.Template), logfields.Error(te.Err))
		return pageOutcome{err: te}
	}
	res := NewResult(p.ID, p.Path, []byte(out))
	r.logger.Debug("Rendered page", logfields.Page(p.ID), logfields.Path(p.Path))
	return pageOutcome{result: &res}
}
