package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appshelf/internal/aggregate"
	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
)

const indexTmpl = `---
title: All applications
hero: true
---
<h1>{{ .Page.Title }}</h1>
<ul>{{ range .Categories }}<li><a href="{{ $.Page.Root }}{{ categoryURL .ID }}">{{ .Name }}</a></li>{{ end }}</ul>
<p>{{ .Stats.Entries }} entries</p>`

const categoryTmpl = `<h1>{{ .Page.Title }}</h1>
{{ range .Category.Entries }}{{ template "card.tmpl" . }}{{ end }}
{{ range .Category.SeeAlso }}<a href="{{ $.Page.Root }}{{ .Href }}">{{ .Name }}</a>{{ end }}`

const cardTmpl = `<article id="{{ entryAnchor .ID }}" data-entry-id="{{ .ID }}">{{ .Name }} [{{ join ", " .Licenses }}] {{ lower .Status }}</article>`

var defaultMapping = map[string]string{"index": "index.html.tmpl", "category": "category.html.tmpl"}

func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return dir
}

func sampleView(t *testing.T) *aggregate.View {
	t.Helper()
	reg, err := catalog.NewRegistry([]catalog.Category{
		{ID: "editors", Name: "Editors", Priority: 1},
		{ID: "browsers", Name: "Browsers", Priority: 2},
	})
	require.NoError(t, err)
	entries := []*catalog.Entry{
		{ID: "vim", Name: "Vim", Categories: []string{"editors"}, Licenses: []string{"Vim"}, Status: "Active"},
		{ID: "emacs", Name: "Emacs", Categories: []string{"editors", "browsers"}, Licenses: []string{"GPL-3.0", "FOSS"}},
	}
	v, vs := aggregate.Aggregate(entries, reg)
	require.Empty(t, vs)
	return v
}

func TestLoadTemplates(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl":    indexTmpl,
		"category.html.tmpl": categoryTmpl,
		"partials/card.tmpl": cardTmpl,
	})

	set, err := LoadTemplates(dir, defaultMapping, "partials")
	require.NoError(t, err)
	assert.Empty(t, set.Errors())

	idx, ok := set.Template(KindIndex)
	require.True(t, ok)
	assert.Equal(t, "All applications", idx.Header.Title)
	assert.Equal(t, map[string]any{"hero": true}, idx.Header.Params)
	assert.NotEmpty(t, idx.Fingerprint)

	fps := set.Fingerprints()
	assert.Len(t, fps, 3)
	assert.Contains(t, fps, "partials/card.tmpl")
}

func TestLoadTemplates_StartupErrors(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "missing"), defaultMapping, "")
	require.Error(t, err)
	assert.True(t, foundation.HasCategory(err, foundation.CategoryTemplate))

	dir := t.TempDir()
	_, err = LoadTemplates(dir, map[string]string{"index": "i.tmpl"}, "")
	require.Error(t, err)

	_, err = LoadTemplates(dir, map[string]string{"index": "i", "category": "c", "detail": "d"}, "")
	require.Error(t, err)
}

func TestLoadTemplates_BrokenTemplateIsPerKind(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl": "{{ .Page.Title }",
	})

	set, err := LoadTemplates(dir, defaultMapping, "partials")
	require.NoError(t, err)
	require.Len(t, set.Errors(), 2, "index fails to parse, category is missing")

	_, err = set.RenderPage(KindIndex, &Context{Page: PageInfo{ID: "index"}})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "index", te.Page)
	assert.Equal(t, "index.html.tmpl", te.Template)
}

func TestLoadTemplates_BrokenPartialFailsAllKinds(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl":    indexTmpl,
		"category.html.tmpl": categoryTmpl,
		"partials/card.tmpl": "{{ if }}",
	})
	set, err := LoadTemplates(dir, defaultMapping, "partials")
	require.NoError(t, err)
	assert.Len(t, set.Errors(), 2)
}

func TestPlan(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl":    indexTmpl,
		"category.html.tmpl": "---\ndescription: Fallback\n---\n{{ .Page.Title }}",
	})
	set, err := LoadTemplates(dir, defaultMapping, "")
	require.NoError(t, err)

	pages := Plan(sampleView(t), Site{Title: "Apps"}, set)
	require.Len(t, pages, 3)

	assert.Equal(t, "index", pages[0].ID)
	assert.Equal(t, "index.html", pages[0].Path)
	assert.Equal(t, "All applications", pages[0].Context.Page.Title)
	assert.Equal(t, "", pages[0].Context.Page.Root)
	assert.Nil(t, pages[0].Context.Category)

	assert.Equal(t, "by-category/editors", pages[1].ID)
	assert.Equal(t, "by-category/editors.html", pages[1].Path)
	assert.Equal(t, "Editors", pages[1].Context.Page.Title)
	assert.Equal(t, "Fallback", pages[1].Context.Page.Description)
	assert.Equal(t, "../", pages[1].Context.Page.Root)
	assert.Equal(t, "editors", pages[1].Context.Category.ID)
	assert.Equal(t, "by-category/browsers.html", pages[2].Path)
}

func TestRenderAll(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl":    indexTmpl,
		"category.html.tmpl": categoryTmpl,
		"partials/card.tmpl": cardTmpl,
	})
	set, err := LoadTemplates(dir, defaultMapping, "partials")
	require.NoError(t, err)
	plan := Plan(sampleView(t), Site{Title: "Apps"}, set)

	results, vs, err := NewRenderer(set, 4, nil, nil).RenderAll(context.Background(), plan)
	require.NoError(t, err)
	assert.Empty(t, vs)
	require.Len(t, results, 3)

	index := string(results[0].Content)
	assert.Contains(t, index, `<h1>All applications</h1>`)
	assert.Contains(t, index, `<a href="by-category/editors.html">Editors</a>`)
	assert.Contains(t, index, `<p>2 entries</p>`)

	editors := string(results[1].Content)
	assert.Contains(t, editors, `<article id="entry-emacs" data-entry-id="emacs">Emacs [GPL-3.0, FOSS] </article>`)
	assert.Contains(t, editors, `data-entry-id="vim">Vim [Vim] active</article>`)
	assert.Less(t, strings.Index(editors, "entry-emacs"), strings.Index(editors, "entry-vim"))

	browsers := string(results[2].Content)
	assert.NotContains(t, browsers, "data-entry-id")
	assert.Contains(t, browsers, `<a href="../by-category/editors.html#entry-emacs">Emacs</a>`)

	assert.Equal(t, NewResult("index", "index.html", results[0].Content).Hash, results[0].Hash)
	assert.Len(t, results[0].Hash, 64)
}

func TestRenderAll_TemplateErrorIsolatedToPage(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl":    `{{ .Category.Name }}`,
		"category.html.tmpl": `{{ .Category.Name }}`,
	})
	set, err := LoadTemplates(dir, defaultMapping, "")
	require.NoError(t, err)
	plan := Plan(sampleView(t), Site{}, set)

	results, vs, err := NewRenderer(set, 2, nil, nil).RenderAll(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "by-category/editors.html", results[0].Path)
	require.Len(t, vs, 1)
	assert.Equal(t, diag.KindTemplate, vs[0].Kind)
	assert.Equal(t, "index", vs[0].Subject)
	assert.True(t, vs[0].IsError())
}

func TestRenderPage_MissingKeyIsError(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl":    `{{ .Page.Params.missing }}`,
		"category.html.tmpl": `{{ .Page.Nope }}`,
	})
	set, err := LoadTemplates(dir, defaultMapping, "")
	require.NoError(t, err)

	_, err = set.RenderPage(KindIndex, &Context{Page: PageInfo{ID: "index", Params: map[string]any{}}})
	require.Error(t, err)
	_, err = set.RenderPage(KindCategory, &Context{Page: PageInfo{ID: "c"}})
	require.Error(t, err)
}

func TestRenderAll_Canceled(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"index.html.tmpl":    "x",
		"category.html.tmpl": "y",
	})
	set, err := LoadTemplates(dir, defaultMapping, "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = NewRenderer(set, 1, nil, nil).RenderAll(ctx, Plan(sampleView(t), Site{}, set))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDict(t *testing.T) {
	m, err := dict("Entry", "vim", "Root", "../")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Entry": "vim", "Root": "../"}, m)

	_, err = dict("odd")
	require.Error(t, err)
	_, err = dict(1, "x")
	require.Error(t, err)
}
