package catalog

import (
	"html/template"

	"git.home.luguber.info/inful/appshelf/internal/diag"
)

// Entry is one validated catalogue record.
type Entry struct {
	ID          string
	Name        string
	Publisher   string
	Description string
	// Categories are ordered and de-duplicated. The first is primary.
	Categories []string
	URLs       []string
	Licenses   []string
	IsFOSS     bool
	Status     string
	Comment    template.HTML
	Note       template.HTML
	Related    []string
	// Metadata carries every record field not mapped above.
	Metadata map[string]any
	Kind     string
	Source   diag.Provenance
}

// PrimaryCategory returns the first category, or "" when there is none.
func (e *Entry) PrimaryCategory() string {
	if len(e.Categories) == 0 {
		return ""
	}
	return e.Categories[0]
}

// SecondaryCategories returns every category after the first.
func (e *Entry) SecondaryCategories() []string {
	if len(e.Categories) < 2 {
		return nil
	}
	return e.Categories[1:]
}

// Param returns a metadata value by key.
func (e *Entry) Param(key string) any {
	return e.Metadata[key]
}

// Dedupe removes empty strings and repeats, keeping first occurrences.
func Dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
