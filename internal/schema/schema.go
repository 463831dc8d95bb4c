// Package schema compiles the declarative record schema and validates
// loaded records against it.
//
// A schema file declares the category registry, named enums, the license
// set and one rule set per record kind. Compilation happens once, before
// any data is read, so that a broken schema stops the run early.
package schema

import (
	"sort"

	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/license"
)

// Additional controls how top-level keys no field mentions are treated.
type Additional string

const (
	AdditionalAllow Additional = "allow"
	AdditionalWarn  Additional = "warn"
	AdditionalError Additional = "error"
)

// Field is the compiled rule set attached to one path.
type Field struct {
	Path     Path
	Severity diag.Severity
	Rules    []Rule
}

// Required reports whether the field carries a required rule.
func (f Field) Required() bool {
	for _, r := range f.Rules {
		if r.Kind == RuleRequired {
			return true
		}
	}
	return false
}

// Kind is the compiled schema for one record kind.
type Kind struct {
	Name       string
	Additional Additional
	Fields     []Field
	known      map[string]struct{}
}

// Knows reports whether key is a declared top-level key of the kind.
func (k *Kind) Knows(key string) bool {
	_, ok := k.known[key]
	return ok
}

// Schema is a compiled schema file.
type Schema struct {
	Version     int
	DefaultKind string
	Categories  *catalog.Registry
	Licenses    *license.Registry
	// Files holds the absolute paths of the schema file and SPDX list.
	// Loaders skip them and the watcher observes them.
	Files []string

	kinds map[string]*Kind
}

// Kind returns the compiled kind with name.
func (s *Schema) Kind(name string) (*Kind, bool) {
	k, ok := s.kinds[name]
	return k, ok
}

// KindNames returns every kind name in sorted order.
func (s *Schema) KindNames() []string {
	names := make([]string, 0, len(s.kinds))
	for n := range s.kinds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
