package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/schema"
)

const loaderSchema = `
default_kind: application
categories:
  - {id: editors, name: Editors}
  - {id: browsers, name: Browsers}
enums:
  platform: [linux, windows, macos]
licenses:
  list:
    - {id: MIT, osi: true}
    - {id: CC-BY-NC-4.0}
kinds:
  application:
    additional: warn
    fields:
      - {path: name, required: true, type: string, min_length: 1}
      - {path: categories, required: true, type: list, min_length: 1}
      - {path: "categories[]", type: string}
      - {path: "urls[]", type: string, url: true}
      - {path: "licenses[]", enum: license}
      - {path: publisher, type: string}
      - {path: description, type: string}
      - {path: comment, type: string}
      - {path: related, type: list}
      - {path: stars, type: int}
  game:
    fields:
      - {path: name, required: true, type: string}
      - {path: categories, required: true, type: list}
      - {path: "platforms[]", enum: platform}
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return root
}

func newLoader(t *testing.T, root string, concurrency int) *Loader {
	t.Helper()
	f, err := schema.Parse(strings.NewReader(loaderSchema))
	require.NoError(t, err)
	s, err := schema.Compile(f, root)
	require.NoError(t, err)
	s.Files = []string{filepath.Join(root, "schema.yaml")}
	return New(s, Options{Root: root, Concurrency: concurrency})
}

func loadTree(t *testing.T, files map[string]string) ([]*catalog.Entry, []diag.Violation) {
	t.Helper()
	root := writeTree(t, files)
	l := newLoader(t, root, 4)
	paths, err := l.Discover()
	require.NoError(t, err)
	entries, vs, err := l.LoadAll(context.Background(), paths)
	require.NoError(t, err)
	return entries, vs
}

func ids(entries []*catalog.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestDiscover(t *testing.T) {
	root := writeTree(t, map[string]string{
		"schema.yaml":          "x",
		"b.yaml":               "x",
		"a.json":               "x",
		"nested/deep/c.toml":   "x",
		"nested/d.yml":         "x",
		"notes.md":             "x",
		"drafts/skip.yaml":     "x",
		"resources/spdx.json":  "x",
	})

	got, err := Discover(root, nil, []string{"drafts/**"}, []string{
		filepath.Join(root, "schema.yaml"),
		filepath.Join(root, "resources", "spdx.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.yaml", "nested/d.yml", "nested/deep/c.toml"}, got)

	_, err = Discover(filepath.Join(root, "missing"), nil, nil, nil)
	require.Error(t, err)
}

func TestLoadAll_Formats(t *testing.T) {
	entries, vs := loadTree(t, map[string]string{
		"a.yaml": `
- name: Vim
  categories: [editors]
  licenses: [MIT]
- name: Emacs
  publisher: GNU Project
  category: editors
  url: https://www.gnu.org/software/emacs/
`,
		"b.json": `{"entries": [{"id": "firefox", "name": "Firefox", "categories": ["browsers"], "urls": ["https://www.mozilla.org"]}]}`,
		"c.toml": `
[[entries]]
name = "Helix"
categories = ["editors"]
stars = 42
`,
	})
	assert.Empty(t, vs)
	assert.Equal(t, []string{"vim", "gnu_project-emacs", "firefox", "helix"}, ids(entries))

	vim := entries[0]
	assert.Equal(t, diag.Provenance{File: "a.yaml", Index: 0, Line: 2}, vim.Source)
	assert.True(t, vim.IsFOSS)
	assert.Equal(t, "application", vim.Kind)

	emacs := entries[1]
	assert.Equal(t, []string{"editors"}, emacs.Categories)
	assert.Equal(t, []string{"https://www.gnu.org/software/emacs/"}, emacs.URLs)
	assert.False(t, emacs.IsFOSS, "no licenses means not FOSS")
	assert.Equal(t, 5, emacs.Source.Line)

	assert.Equal(t, diag.Provenance{File: "b.json", Index: 0}, entries[2].Source)
	assert.Equal(t, int64(42), entries[3].Metadata["stars"])
}

func TestLoadAll_MalformedFileIsIsolated(t *testing.T) {
	entries, vs := loadTree(t, map[string]string{
		"good.yaml": "- {id: foo, name: Foo, categories: [editors]}\n",
		"bad.yaml":  "- name: [unclosed\n",
	})
	assert.Equal(t, []string{"foo"}, ids(entries))
	require.Len(t, vs, 1)
	assert.Equal(t, diag.KindParse, vs[0].Kind)
	assert.Equal(t, "bad.yaml", vs[0].Source.File)
	assert.True(t, vs[0].IsError())
}

func TestLoadAll_InvalidRecordIsIsolated(t *testing.T) {
	entries, vs := loadTree(t, map[string]string{
		"a.yaml": `
- {name: One, categories: [editors]}
- {name: "", categories: [editors], urls: ["ftp://nope"]}
- just a string
- {name: Three, categories: [editors]}
`,
	})
	assert.Equal(t, []string{"one", "three"}, ids(entries))

	var paths []string
	for _, v := range vs {
		assert.Equal(t, diag.KindSchema, v.Kind)
		paths = append(paths, v.Path)
	}
	assert.ElementsMatch(t, []string{"name", "urls[0]", "id", ""}, paths)
}

func TestLoadAll_DuplicateIDs(t *testing.T) {
	entries, vs := loadTree(t, map[string]string{
		"a.yaml": "- {id: dup, name: First, categories: [editors]}\n",
		"b.yaml": "- {id: dup, name: Second, categories: [editors]}\n",
	})
	require.Len(t, entries, 1)
	assert.Equal(t, "First", entries[0].Name)
	require.Len(t, vs, 1)
	assert.Equal(t, "id", vs[0].Path)
	assert.Equal(t, "b.yaml", vs[0].Source.File)
	assert.Contains(t, vs[0].Message, "a.yaml")
}

func TestLoadAll_DeclaredIDMustBeSanitised(t *testing.T) {
	_, vs := loadTree(t, map[string]string{
		"a.yaml": "- {id: 'Bad Id', name: X, categories: [editors]}\n",
	})
	require.Len(t, vs, 1)
	assert.Equal(t, "id", vs[0].Path)
	assert.Contains(t, vs[0].Message, "bad_id")
}

func TestLoadAll_KindResolution(t *testing.T) {
	entries, vs := loadTree(t, map[string]string{
		"game/chess.yaml":   "- {name: Chess, categories: [editors], platforms: [linux]}\n",
		"explicit.yaml":     "kind: game\nentries:\n  - {name: Go, categories: [editors], platforms: [amiga]}\n",
		"unknown-kind.yaml": "kind: plugin\nentries: []\n",
	})
	require.Len(t, entries, 1)
	assert.Equal(t, "game", entries[0].Kind)

	kinds := map[diag.Kind]int{}
	for _, v := range vs {
		kinds[v.Kind]++
	}
	assert.Equal(t, map[diag.Kind]int{diag.KindParse: 1, diag.KindSchema: 1}, kinds)
}

func TestLoadAll_UnsupportedShapes(t *testing.T) {
	_, vs := loadTree(t, map[string]string{
		"scalar.yaml":  "hello\n",
		"noentry.json": `{"apps": []}`,
		"empty.yaml":   "",
		"trailing.json": `[] []`,
	})
	byFile := map[string]diag.Violation{}
	for _, v := range vs {
		byFile[v.Source.File] = v
	}
	require.Len(t, byFile, 4)
	assert.True(t, byFile["scalar.yaml"].IsError())
	assert.True(t, byFile["noentry.json"].IsError())
	assert.True(t, byFile["trailing.json"].IsError())
	assert.False(t, byFile["empty.yaml"].IsError())
}

func TestLoadAll_MetadataAndMarkdown(t *testing.T) {
	entries, vs := loadTree(t, map[string]string{
		"a.yaml": "- {name: Vim, categories: [editors, editors, browsers], comment: 'Use **modal** editing', homepage_note: x}\n",
	})
	require.Len(t, entries, 1)
	assert.Len(t, vs, 1, "homepage_note is an unknown key")
	e := entries[0]
	assert.Equal(t, []string{"editors", "browsers"}, e.Categories)
	assert.Equal(t, "<p>Use <strong>modal</strong> editing</p>", string(e.Comment))
	assert.Equal(t, map[string]any{"homepage_note": "x"}, e.Metadata)
}

func TestParse_OrderIndependentOfConcurrency(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"e", "a", "d", "c", "b", "f", "h", "g"} {
		files[n+".yaml"] = "- {name: " + n + ", categories: [editors]}\n"
	}
	root := writeTree(t, files)

	var got [][]string
	for _, workers := range []int{1, 3, 16} {
		l := newLoader(t, root, workers)
		paths, err := l.Discover()
		require.NoError(t, err)
		entries, _, err := l.LoadAll(context.Background(), paths)
		require.NoError(t, err)
		got = append(got, ids(entries))
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h"}, got[0])
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, got[0], got[2])
}

func TestParse_Canceled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.yaml": "- {name: A, categories: [editors]}\n"})
	l := newLoader(t, root, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := l.LoadAll(ctx, []string{"a.yaml"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMergeAlias(t *testing.T) {
	fields := applyAliases(map[string]any{
		"category":   "extra",
		"categories": []any{"first"},
		"url":        "https://a.org",
		"urls":       []any{"https://b.org"},
	})
	assert.Equal(t, []any{"first", "extra"}, fields["categories"])
	assert.Equal(t, []any{"https://a.org", "https://b.org"}, fields["urls"])
	assert.NotContains(t, fields, "category")
	assert.NotContains(t, fields, "url")
}
