// Package render turns the aggregated view into HTML pages.
//
// Page templates are html/template sources, optionally headed by YAML front
// matter, executed with missingkey=error. Shared partials are parsed once
// and cloned into every page template.
package render

import (
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inful/mdfp"

	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/frontmatter"
)

// PageKind selects the template a page renders with.
type PageKind string

const (
	KindIndex    PageKind = "index"
	KindCategory PageKind = "category"
)

// PageKinds lists every kind a template mapping must cover.
var PageKinds = []PageKind{KindIndex, KindCategory}

// Template is one loaded page template. Err is set when the template could
// not be read or parsed; pages of its kind then fail to render.
type Template struct {
	Kind        PageKind
	Name        string
	Header      frontmatter.Header
	Fingerprint string
	Err         error

	tmpl *template.Template
}

// Set holds the page templates of a build.
type Set struct {
	byKind       map[PageKind]*Template
	fingerprints map[string]string
}

// Template returns the template for kind.
func (s *Set) Template(kind PageKind) (*Template, bool) {
	t, ok := s.byKind[kind]
	return t, ok
}

// Fingerprints maps template and partial file names to content fingerprints.
func (s *Set) Fingerprints() map[string]string {
	out := make(map[string]string, len(s.fingerprints))
	for k, v := range s.fingerprints {
		out[k] = v
	}
	return out
}

// Errors returns the load errors of every broken template, sorted by kind.
func (s *Set) Errors() []error {
	var out []error
	for _, kind := range PageKinds {
		if t, ok := s.byKind[kind]; ok && t.Err != nil {
			out = append(out, t.Err)
		}
	}
	return out
}

// LoadTemplates reads the page templates named by mapping (page kind to file
// name under dir) and the partials under dir/partialsDir. A missing template
// directory or an incomplete mapping is a startup error; a missing or broken
// individual template is recorded on its Template.
func LoadTemplates(dir string, mapping map[string]string, partialsDir string) (*Set, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, foundation.WrapError(err, foundation.CategoryTemplate, "template directory is not usable").
			Fatal().
			WithContext("path", dir).
			Build()
	}
	for _, kind := range PageKinds {
		if mapping[string(kind)] == "" {
			return nil, foundation.TemplateError("no template mapped for page kind").
				WithContext("kind", string(kind)).
				Build()
		}
	}
	for kind := range mapping {
		if !knownKind(kind) {
			return nil, foundation.TemplateError("unknown page kind in template mapping").
				WithContext("kind", kind).
				Build()
		}
	}

	set := &Set{
		byKind:       make(map[PageKind]*Template, len(PageKinds)),
		fingerprints: make(map[string]string),
	}
	base, partialsErr := set.loadPartials(dir, partialsDir)

	for _, kind := range PageKinds {
		name := mapping[string(kind)]
		t := &Template{Kind: kind, Name: name}
		set.byKind[kind] = t
		if partialsErr != nil {
			t.Err = partialsErr
			continue
		}
		t.Err = set.loadPage(t, base, filepath.Join(dir, filepath.FromSlash(name)))
	}
	return set, nil
}

func knownKind(kind string) bool {
	for _, k := range PageKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}

func (s *Set) loadPartials(dir, partialsDir string) (*template.Template, error) {
	base := template.New("").Funcs(funcMap()).Option("missingkey=error")
	if partialsDir == "" {
		return base, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, partialsDir, "*.tmpl"))
	if err != nil {
		return nil, fmt.Errorf("list partials: %w", err)
	}
	sort.Strings(matches)
	for _, p := range matches {
		// #nosec G304 -- partials are globbed under the template directory.
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read partial %s: %w", filepath.Base(p), err)
		}
		name := filepath.Base(p)
		if _, err := base.New(name).Parse(string(src)); err != nil {
			return nil, fmt.Errorf("parse partial %s: %w", name, err)
		}
		s.fingerprints[filepath.ToSlash(filepath.Join(partialsDir, name))] = mdfp.CalculateFingerprintFromParts("", string(src))
	}
	return base, nil
}

func (s *Set) loadPage(t *Template, base *template.Template, path string) error {
	// #nosec G304 -- path is a configured template under the template directory.
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template %s: %w", t.Name, err)
	}
	front, body, _, err := frontmatter.Split(src)
	if err != nil {
		return fmt.Errorf("template %s: %w", t.Name, err)
	}
	header, _, err := frontmatter.Parse(src)
	if err != nil {
		return fmt.Errorf("template %s: %w", t.Name, err)
	}

	clone, err := base.Clone()
	if err != nil {
		return fmt.Errorf("template %s: %w", t.Name, err)
	}
	tmpl, err := clone.New(t.Name).Parse(string(body))
	if err != nil {
		return fmt.Errorf("parse template %s: %w", t.Name, err)
	}

	t.Header = header
	t.tmpl = tmpl
	t.Fingerprint = mdfp.CalculateFingerprintFromParts(strings.TrimSuffix(string(front), "\n"), string(body))
	s.fingerprints[t.Name] = t.Fingerprint
	return nil
}
