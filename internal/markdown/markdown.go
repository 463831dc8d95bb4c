// Package markdown renders the free-text fields of catalogue entries
// (comment, note) to HTML safe for direct inclusion in page templates.
package markdown

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts Markdown to HTML. Raw HTML in the source is dropped.
// A Renderer is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New returns a renderer with GitHub-flavoured tables, strikethrough and
// autolinks enabled.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Strikethrough, extension.Linkify, extension.Table),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// Render converts src to HTML. Blank input renders to the empty string.
func (r *Renderer) Render(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	// #nosec G203 -- goldmark escapes text and omits raw HTML without WithUnsafe.
	return template.HTML(strings.TrimSpace(buf.String())), nil
}

// Inline renders a single paragraph without the wrapping <p> element.
func (r *Renderer) Inline(src string) (template.HTML, error) {
	out, err := r.Render(src)
	if err != nil {
		return "", err
	}
	s := string(out)
	if strings.HasPrefix(s, "<p>") && strings.HasSuffix(s, "</p>") && strings.Count(s, "<p>") == 1 {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "<p>"), "</p>")
	}
	// #nosec G203 -- derived from sanitised goldmark output.
	return template.HTML(s), nil
}
