// Package aggregate groups validated entries into categories and resolves
// cross references, producing the read-only View that pages render from.
package aggregate

import (
	"git.home.luguber.info/inful/appshelf/internal/catalog"
)

// Link points at an entry card from another place in the site. Href is
// relative to the site root.
type Link struct {
	ID     string
	Name   string
	Page   string
	Anchor string
	Href   string
}

// EntryView is an entry placed on its primary category page.
type EntryView struct {
	*catalog.Entry
	Anchor  string
	Page    string // site-root relative path of the primary category page
	Href    string
	Primary catalog.Category
	// Also lists the secondary categories, in entry order.
	Also    []catalog.Category
	Related []Link
}

// Link returns a link to the entry's card.
func (e *EntryView) Link() Link {
	return Link{ID: e.ID, Name: e.Name, Page: e.Page, Anchor: e.Anchor, Href: e.Href}
}

// CategoryView is one category with the entries placed on its page.
type CategoryView struct {
	catalog.Category
	Page    string
	Entries []*EntryView
	// SeeAlso links to entries whose primary category is elsewhere.
	SeeAlso []Link
}

// Empty reports whether the category page has nothing to show.
func (c *CategoryView) Empty() bool {
	return len(c.Entries) == 0 && len(c.SeeAlso) == 0
}

// Stats summarises a view.
type Stats struct {
	Entries    int
	Categories int
	FOSS       int
	Publishers int
}

// View is the aggregated catalogue. It is immutable once built; accessors
// return copies of its slices.
type View struct {
	categories []*CategoryView
	byCategory map[string]*CategoryView
	entries    []*EntryView
	byID       map[string]*EntryView
	stats      Stats
}

// Categories returns every registry category in display order, including
// empty ones.
func (v *View) Categories() []*CategoryView {
	out := make([]*CategoryView, len(v.categories))
	copy(out, v.categories)
	return out
}

// Category returns the category view with id.
func (v *View) Category(id string) (*CategoryView, bool) {
	c, ok := v.byCategory[id]
	return c, ok
}

// Entries returns every placed entry, in category order then entry order.
func (v *View) Entries() []*EntryView {
	out := make([]*EntryView, len(v.entries))
	copy(out, v.entries)
	return out
}

// Entry returns the placed entry with id.
func (v *View) Entry(id string) (*EntryView, bool) {
	e, ok := v.byID[id]
	return e, ok
}

// Stats returns summary counts.
func (v *View) Stats() Stats { return v.stats }

// Len returns the number of placed entries.
func (v *View) Len() int { return len(v.entries) }
