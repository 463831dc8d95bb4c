package aggregate

import (
	"sort"
	"strconv"

	"golang.org/x/text/cases"

	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
)

// Aggregate places entries on their primary category pages. Entries naming
// an unknown category are reported once per unknown category and left out
// of the view. Dangling related ids are reported as warnings.
func Aggregate(entries []*catalog.Entry, registry *catalog.Registry) (*View, []diag.Violation) {
	var violations []diag.Violation
	fold := cases.Fold()

	v := &View{
		byCategory: make(map[string]*CategoryView, registry.Len()),
		byID:       make(map[string]*EntryView, len(entries)),
	}
	for _, c := range registry.All() {
		cv := &CategoryView{Category: c, Page: catalog.CategoryPath(c.ID)}
		v.categories = append(v.categories, cv)
		v.byCategory[c.ID] = cv
	}

	placed := make([]*EntryView, 0, len(entries))
	for _, e := range entries {
		if vs := checkCategories(e, registry); len(vs) > 0 {
			violations = append(violations, vs...)
			continue
		}
		primary, _ := registry.Get(e.PrimaryCategory())
		ev := &EntryView{
			Entry:   e,
			Anchor:  catalog.Anchor(e.ID),
			Page:    catalog.CategoryPath(primary.ID),
			Primary: primary,
		}
		ev.Href = ev.Page + "#" + ev.Anchor
		for _, id := range e.SecondaryCategories() {
			c, _ := registry.Get(id)
			ev.Also = append(ev.Also, c)
		}
		placed = append(placed, ev)
		v.byID[e.ID] = ev
	}

	sort.SliceStable(placed, func(i, j int) bool {
		return entryLess(fold, placed[i].Entry, placed[j].Entry)
	})

	publishers := make(map[string]struct{})
	for _, ev := range placed {
		cv := v.byCategory[ev.Primary.ID]
		cv.Entries = append(cv.Entries, ev)
		for _, also := range ev.Also {
			v.byCategory[also.ID].SeeAlso = append(v.byCategory[also.ID].SeeAlso, ev.Link())
		}
		if ev.IsFOSS {
			v.stats.FOSS++
		}
		if ev.Publisher != "" {
			publishers[fold.String(ev.Publisher)] = struct{}{}
		}
	}
	for _, ev := range placed {
		violations = append(violations, resolveRelated(ev, v.byID)...)
	}
	for _, cv := range v.categories {
		v.entries = append(v.entries, cv.Entries...)
	}

	v.stats.Entries = len(v.entries)
	v.stats.Categories = len(v.categories)
	v.stats.Publishers = len(publishers)
	return v, violations
}

func checkCategories(e *catalog.Entry, registry *catalog.Registry) []diag.Violation {
	if len(e.Categories) == 0 {
		return []diag.Violation{
			diag.Errorf(diag.KindReference, e.Source, "categories", "entry has no category").WithSubject(e.ID),
		}
	}
	var out []diag.Violation
	for i, id := range e.Categories {
		if !registry.Has(id) {
			out = append(out, diag.Errorf(diag.KindReference, e.Source, indexPath("categories", i),
				"unknown category %q", id).WithSubject(e.ID))
		}
	}
	return out
}

func resolveRelated(ev *EntryView, byID map[string]*EntryView) []diag.Violation {
	var out []diag.Violation
	for i, id := range ev.Entry.Related {
		target, ok := byID[id]
		switch {
		case id == ev.ID:
			out = append(out, diag.Warnf(diag.KindReference, ev.Source, indexPath("related", i),
				"entry relates to itself").WithSubject(ev.ID))
		case !ok:
			out = append(out, diag.Warnf(diag.KindReference, ev.Source, indexPath("related", i),
				"related entry %q does not exist or was excluded", id).WithSubject(ev.ID))
		default:
			ev.Related = append(ev.Related, target.Link())
		}
	}
	return out
}

// entryLess orders entries by case-folded name, then id.
func entryLess(fold cases.Caser, a, b *catalog.Entry) bool {
	fa, fb := fold.String(a.Name), fold.String(b.Name)
	if fa != fb {
		return fa < fb
	}
	return a.ID < b.ID
}

func indexPath(key string, i int) string {
	return key + "[" + strconv.Itoa(i) + "]"
}
