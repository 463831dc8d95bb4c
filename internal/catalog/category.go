package catalog

import (
	"fmt"
	"regexp"
	"sort"

	"golang.org/x/text/cases"
)

var categoryIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Category is a named grouping of entries, rendered as one page.
type Category struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Priority    int    `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// ValidCategoryID reports whether id is safe to use as a path segment.
func ValidCategoryID(id string) bool {
	return categoryIDPattern.MatchString(id)
}

// Registry is the closed set of categories a build knows about, in display
// order: ascending priority, then case-folded name, then id.
type Registry struct {
	ordered []Category
	byID    map[string]int
}

// NewRegistry validates and orders categories. Duplicate or path-unsafe ids
// and missing names are rejected.
func NewRegistry(categories []Category) (*Registry, error) {
	r := &Registry{
		ordered: make([]Category, 0, len(categories)),
		byID:    make(map[string]int, len(categories)),
	}
	seen := make(map[string]struct{}, len(categories))
	for i, c := range categories {
		if !ValidCategoryID(c.ID) {
			return nil, fmt.Errorf("category %d: id %q must match %s", i, c.ID, categoryIDPattern)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("category %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Name == "" {
			c.Name = c.ID
		}
		r.ordered = append(r.ordered, c)
	}

	fold := cases.Fold()
	sort.SliceStable(r.ordered, func(i, j int) bool {
		a, b := r.ordered[i], r.ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		fa, fb := fold.String(a.Name), fold.String(b.Name)
		if fa != fb {
			return fa < fb
		}
		return a.ID < b.ID
	})
	for i, c := range r.ordered {
		r.byID[c.ID] = i
	}
	return r, nil
}

// Get returns the category with id.
func (r *Registry) Get(id string) (Category, bool) {
	if r == nil {
		return Category{}, false
	}
	i, ok := r.byID[id]
	if !ok {
		return Category{}, false
	}
	return r.ordered[i], true
}

// Has reports whether id is a registered category.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// All returns a copy of the categories in display order.
func (r *Registry) All() []Category {
	if r == nil {
		return nil
	}
	out := make([]Category, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the number of categories.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}
