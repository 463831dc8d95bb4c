package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appshelf/internal/aggregate"
	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/render"
)

func view(t *testing.T) *aggregate.View {
	t.Helper()
	reg, err := catalog.NewRegistry([]catalog.Category{{ID: "editors"}, {ID: "browsers"}})
	require.NoError(t, err)
	v, vs := aggregate.Aggregate([]*catalog.Entry{
		{ID: "vim", Name: "Vim", Categories: []string{"editors"}},
		{ID: "firefox", Name: "Firefox", Categories: []string{"browsers"}},
	}, reg)
	require.Empty(t, vs)
	return v
}

func page(path, body string) render.Result {
	return render.NewResult(path, path, []byte(body))
}

func TestScan(t *testing.T) {
	occ, err := Scan("p.html", []byte(`<div data-entry-id="a"><span data-entry-id="b"></span></div><p data-entry-id="a">`))
	require.NoError(t, err)
	assert.Equal(t, []Occurrence{{"a", "p.html"}, {"b", "p.html"}, {"a", "p.html"}}, occ)
}

func TestCheck_Clean(t *testing.T) {
	results := []render.Result{
		page("index.html", `<a href="by-category/editors.html">Editors</a>`),
		page("by-category/browsers.html", `<article data-entry-id="firefox"></article>`),
		page("by-category/editors.html", `<article data-entry-id="vim"></article>`),
	}
	assert.Empty(t, Check(view(t), results, nil))
}

func TestCheck_Deviations(t *testing.T) {
	results := []render.Result{
		page("index.html", `<i data-entry-id="vim"></i><i data-entry-id="ghost"></i>`),
		page("by-category/editors.html", `<article data-entry-id="vim"></article>`),
		page("by-category/browsers.html", ``),
	}
	vs := Check(view(t), results, nil)
	require.Len(t, vs, 3)
	for _, v := range vs {
		assert.Equal(t, diag.KindTemplate, v.Kind)
		assert.Equal(t, diag.SeverityWarning, v.Severity)
	}
	assert.Equal(t, "firefox", vs[0].Subject)
	assert.Contains(t, vs[0].Message, "missing")
	assert.Equal(t, "vim", vs[1].Subject)
	assert.Contains(t, vs[1].Message, "2 times")
	assert.Equal(t, "ghost", vs[2].Subject)
}

func TestCheck_WrongPage(t *testing.T) {
	results := []render.Result{
		page("by-category/browsers.html", `<article data-entry-id="firefox"></article><article data-entry-id="vim"></article>`),
	}
	vs := Check(view(t), results, map[string]bool{})
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "expected by-category/editors.html")
}

func TestCheck_FailedPagesAreNotMissing(t *testing.T) {
	results := []render.Result{
		page("by-category/browsers.html", `<article data-entry-id="firefox"></article>`),
	}
	assert.Empty(t, Check(view(t), results, map[string]bool{"by-category/editors.html": true}))
}
