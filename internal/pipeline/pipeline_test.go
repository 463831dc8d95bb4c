package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appshelf/internal/audit"
	"git.home.luguber.info/inful/appshelf/internal/config"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/metrics"
)

const testConfig = `
data:
  root: data
templates:
  dir: templates
output:
  directory: public
site:
  title: Test Shelf
build:
  concurrency: 4
logging:
  level: error
`

const testSchema = `
default_kind: application
categories:
  - {id: editors, name: Editors, priority: 1}
  - {id: browsers, name: Browsers, priority: 2}
licenses:
  list:
    - {id: MIT, osi: true}
kinds:
  application:
    additional: allow
    fields:
      - {path: name, required: true, type: string, min_length: 1}
      - {path: categories, required: true, type: list, min_length: 1}
      - {path: "categories[]", type: string}
      - {path: "licenses[]", enum: license}
      - {path: "urls[]", type: string, url: true}
`

var testTemplates = map[string]string{
	"templates/index.html.tmpl": `---
title: Everything
---
<h1>{{ .Page.Title }}</h1>
<ul>{{ range .Categories }}<li><a href="{{ categoryURL .ID }}">{{ .Name }}</a></li>{{ end }}</ul>
`,
	"templates/category.html.tmpl": `<h1>{{ .Page.Title }}</h1>
{{ range .Category.Entries }}{{ template "card.tmpl" . }}
{{ end }}{{ range .Category.SeeAlso }}<a href="{{ $.Page.Root }}{{ .Href }}">{{ .Name }}</a>
{{ end }}`,
	"templates/partials/card.tmpl": `<article id="{{ .Anchor }}" data-entry-id="{{ .ID }}">{{ .Name }}</article>`,
}

var goodData = map[string]string{
	"data/apps/editors.yaml": `
- name: foo
  categories: [editors]
  licenses: [MIT]
- name: Vim
  publisher: Bram
  categories: [editors]
`,
	"data/apps/browsers.json": `[{"name": "Firefox", "categories": ["browsers", "editors"], "urls": ["https://firefox.com"]}]`,
}

func writeSite(t *testing.T, files ...map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	all := map[string]string{
		"appshelf.yaml":    testConfig,
		"data/schema.yaml": testSchema,
	}
	for k, v := range testTemplates {
		all[k] = v
	}
	for _, set := range files {
		for k, v := range set {
			all[k] = v
		}
	}
	for name, body := range all {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return dir
}

func loadConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(dir, "appshelf.yaml"), true)
	require.NoError(t, err)
	return cfg
}

func readOutput(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(cfg.OutputDir(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func TestBuild_Success(t *testing.T) {
	dir := writeSite(t, goodData)
	cfg := loadConfig(t, dir)

	report, err := New(cfg).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Empty(t, report.Violations)
	assert.Equal(t, 2, report.Files)
	assert.Equal(t, EntryCounts{Loaded: 3, Rendered: 3, Skipped: 0}, report.Entries)
	assert.Equal(t, PageCounts{Planned: 3, Rendered: 3}, report.Pages)
	assert.Equal(t, WriteCounts{Written: 3}, report.Writes)
	assert.NotEmpty(t, report.BuildID)
	assert.Contains(t, report.Templates, "index.html.tmpl")
	for _, st := range []StageName{StageLoad, StageValidate, StageAggregate, StageRender, StageAudit, StageWrite} {
		assert.Equal(t, StageResultSuccess, report.StageResults[st], st)
	}

	editors := readOutput(t, cfg, "by-category/editors.html")
	assert.Contains(t, editors, `data-entry-id="foo"`)
	assert.Contains(t, editors, `data-entry-id="bram-vim"`)
	assert.Contains(t, editors, `href="../by-category/browsers.html#entry-firefox"`)
	assert.Less(t, strings.Index(editors, `"foo"`), strings.Index(editors, `"bram-vim"`))

	index := readOutput(t, cfg, "index.html")
	assert.Contains(t, index, "<h1>Everything</h1>")
}

// One good file and one malformed file: the malformed file is reported once
// and the good file's entries are still published.
func TestBuild_MalformedFileIsIsolated(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"data/apps/editors.yaml": "- name: foo\n  categories: [editors]\n",
		"data/apps/broken.yaml":  "- name: [unterminated\n",
	})
	cfg := loadConfig(t, dir)

	report, err := New(cfg).Build(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	assert.Equal(t, diag.KindParse, report.Violations[0].Kind)
	assert.Equal(t, "apps/broken.yaml", report.Violations[0].Source.File)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, OutcomeWarning, report.Outcome)
	assert.Equal(t, StageResultWarning, report.StageResults[StageLoad])
	assert.Contains(t, readOutput(t, cfg, "by-category/editors.html"), `data-entry-id="foo"`)
}

func TestBuild_UnknownCategoryIsExcluded(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"data/apps/editors.yaml": "- name: foo\n  categories: [editors]\n- name: ghost\n  category: nonexistent\n",
	})
	cfg := loadConfig(t, dir)

	report, err := New(cfg).Build(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	v := report.Violations[0]
	assert.Equal(t, diag.KindReference, v.Kind)
	assert.True(t, v.IsError())
	assert.Equal(t, "ghost", v.Subject)
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 1, report.Entries.Skipped)

	for _, page := range []string{"index.html", "by-category/editors.html", "by-category/browsers.html"} {
		assert.NotContains(t, readOutput(t, cfg, page), "ghost", page)
	}
}

func TestBuild_SecondRunWritesNothing(t *testing.T) {
	dir := writeSite(t, goodData)
	cfg := loadConfig(t, dir)
	b := New(cfg)

	first, err := b.Build(context.Background())
	require.NoError(t, err)
	before := readOutput(t, cfg, "by-category/editors.html")

	second, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Writes.Written)
	assert.Equal(t, first.Pages.Rendered, second.Writes.Unchanged)
	assert.Equal(t, before, readOutput(t, cfg, "by-category/editors.html"))
	assert.NotEqual(t, first.BuildID, second.BuildID)
}

func TestBuild_OutputIndependentOfConcurrency(t *testing.T) {
	extra := map[string]string{}
	for i, name := range []string{"zeta", "Alpha", "mid", "beta", "Omega", "gamma"} {
		extra["data/bulk/"+string(rune('a'+i))+".yaml"] = "- name: " + name + "\n  categories: [editors]\n"
	}
	dir := writeSite(t, goodData, extra)

	outputs := make([]map[string]string, 0, 2)
	for _, workers := range []int{1, 8} {
		cfg := loadConfig(t, dir)
		cfg.Build.Concurrency = workers
		cfg.OverrideOutput(filepath.Join(t.TempDir(), "public"))
		_, err := New(cfg).Build(context.Background())
		require.NoError(t, err)

		files := map[string]string{}
		for _, rel := range []string{"index.html", "by-category/editors.html", "by-category/browsers.html"} {
			files[rel] = readOutput(t, cfg, rel)
		}
		outputs = append(outputs, files)
	}
	assert.Equal(t, outputs[0], outputs[1])
}

func TestBuild_EveryEntryRenderedOnce(t *testing.T) {
	dir := writeSite(t, goodData)
	cfg := loadConfig(t, dir)

	report, err := New(cfg).Build(context.Background())
	require.NoError(t, err)

	seen := map[string]int{}
	for _, rel := range []string{"index.html", "by-category/editors.html", "by-category/browsers.html"} {
		occ, err := audit.Scan(rel, []byte(readOutput(t, cfg, rel)))
		require.NoError(t, err)
		for _, o := range occ {
			seen[o.EntryID]++
		}
	}
	assert.Equal(t, map[string]int{"foo": 1, "bram-vim": 1, "firefox": 1}, seen)
	assert.Equal(t, 3, report.Entries.Rendered)
}

func TestBuild_FailsWhenNothingIsValid(t *testing.T) {
	dir := writeSite(t, map[string]string{
		"data/apps/broken.yaml": "{not yaml",
		"data/apps/empty.json":  `[{"categories": ["editors"]}]`,
	})
	cfg := loadConfig(t, dir)

	report, err := New(cfg).Build(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntries)
	assert.True(t, foundation.HasCategory(err, foundation.CategoryBuild))

	require.NotNil(t, report)
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Equal(t, StageResultFatal, report.StageResults[StageAggregate])
	assert.NotContains(t, report.StageResults, StageRender)
	_, statErr := os.Stat(cfg.OutputDir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_TemplateErrorIsolatedToPages(t *testing.T) {
	dir := writeSite(t, goodData, map[string]string{
		"templates/category.html.tmpl": `<h1>{{ .Page.Missing }}</h1>`,
	})
	cfg := loadConfig(t, dir)

	report, err := New(cfg).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PageCounts{Planned: 3, Rendered: 1, Failed: 2}, report.Pages)
	assert.Equal(t, 1, report.Writes.Written)
	assert.Equal(t, 0, report.Entries.Rendered)
	groups := report.ViolationsByKind()
	assert.Len(t, groups[diag.KindTemplate], 2)
	assert.FileExists(t, filepath.Join(cfg.OutputDir(), "index.html"))
}

func TestBuild_StartupErrors(t *testing.T) {
	t.Run("missing schema", func(t *testing.T) {
		dir := writeSite(t, goodData)
		require.NoError(t, os.Remove(filepath.Join(dir, "data", "schema.yaml")))
		_, err := New(loadConfig(t, dir)).Build(context.Background())
		require.Error(t, err)
		assert.True(t, foundation.HasCategory(err, foundation.CategoryConfig))
	})
	t.Run("missing templates dir", func(t *testing.T) {
		dir := writeSite(t, goodData)
		require.NoError(t, os.RemoveAll(filepath.Join(dir, "templates")))
		_, err := New(loadConfig(t, dir)).Build(context.Background())
		require.Error(t, err)
		assert.True(t, foundation.HasCategory(err, foundation.CategoryTemplate))
	})
}

func TestBuild_Canceled(t *testing.T) {
	dir := writeSite(t, goodData)
	cfg := loadConfig(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(cfg).Build(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Equal(t, StageResultCanceled, report.StageResults[StageLoad])
}

func TestCheck_DoesNotWrite(t *testing.T) {
	dir := writeSite(t, goodData, map[string]string{
		"data/apps/bad.yaml": "- name: bad\n  categories: [editors]\n  urls: [not-a-url]\n",
	})
	cfg := loadConfig(t, dir)

	report, err := New(cfg).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, report.State)
	assert.True(t, diag.HasErrors(report.Violations))
	assert.Len(t, report.StageResults, 3)
	_, statErr := os.Stat(cfg.OutputDir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_RecordsMetrics(t *testing.T) {
	dir := writeSite(t, goodData)
	cfg := loadConfig(t, dir)
	rec := metrics.NewPrometheusRecorder(prom.NewRegistry())

	_, err := New(cfg, WithRecorder(rec)).Build(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "appshelf.prom")
	require.NoError(t, rec.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, `appshelf_output_files_total{result="written"} 3`)
	assert.Contains(t, text, `appshelf_entries_total{state="rendered"} 3`)
	assert.Contains(t, text, `appshelf_build_outcomes_total{outcome="success"} 1`)
}

func TestPersist(t *testing.T) {
	dir := writeSite(t, goodData)
	cfg := loadConfig(t, dir)
	report, err := New(cfg).Build(context.Background())
	require.NoError(t, err)

	inside := filepath.Join(cfg.OutputDir(), "report.json")
	err = report.Persist(inside)
	require.Error(t, err)
	assert.True(t, foundation.HasCategory(err, foundation.CategoryValidation))
	assert.NoFileExists(t, inside)

	path := filepath.Join(dir, "reports", "build.json")
	require.NoError(t, report.Persist(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, report.BuildID, doc["build_id"])
	assert.Equal(t, "success", doc["outcome"])
	assert.Equal(t, "Done", doc["state"])
}
