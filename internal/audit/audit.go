// Package audit checks rendered pages against the aggregated view: every
// placed entry must carry exactly one data-entry-id card, on its primary
// category page. Deviations point at template bugs and are reported as
// warnings.
package audit

import (
	"bytes"
	"fmt"
	"sort"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/appshelf/internal/aggregate"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/render"
)

// EntryAttr marks an entry card in rendered HTML.
const EntryAttr = "data-entry-id"

// Occurrence is one entry card found in a page.
type Occurrence struct {
	EntryID string
	Page    string
}

// Scan returns the entry cards of one page in document order.
func Scan(pagePath string, content []byte) ([]Occurrence, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pagePath, err)
	}
	var out []Occurrence
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id, ok := attr(n, EntryAttr); ok {
				out = append(out, Occurrence{EntryID: id, Page: pagePath})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

// Check scans every result and compares the cards found with the view.
// Pages that failed to render are not in results; entries whose primary page
// is among failedPages are not reported as missing.
func Check(view *aggregate.View, results []render.Result, failedPages map[string]bool) []diag.Violation {
	found := make(map[string][]string)
	var violations []diag.Violation

	for _, r := range results {
		occ, err := Scan(r.Path, r.Content)
		if err != nil {
			violations = append(violations, diag.Warnf(diag.KindTemplate, diag.Provenance{}, "", "%v", err).WithSubject(r.PageID))
			continue
		}
		for _, o := range occ {
			found[o.EntryID] = append(found[o.EntryID], o.Page)
		}
	}

	for _, ev := range view.Entries() {
		pages := found[ev.ID]
		delete(found, ev.ID)
		switch {
		case len(pages) == 0:
			if failedPages[ev.Page] {
				continue
			}
			violations = append(violations, warn(ev.ID, "entry card missing from %s", ev.Page))
		case len(pages) > 1:
			violations = append(violations, warn(ev.ID, "entry card rendered %d times (%v)", len(pages), pages))
		case pages[0] != ev.Page:
			violations = append(violations, warn(ev.ID, "entry card rendered on %s, expected %s", pages[0], ev.Page))
		}
	}

	unknown := make([]string, 0, len(found))
	for id := range found {
		unknown = append(unknown, id)
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		violations = append(violations, warn(id, "card for unknown entry on %v", found[id]))
	}
	return violations
}

func warn(subject, format string, args ...any) diag.Violation {
	return diag.Warnf(diag.KindTemplate, diag.Provenance{}, EntryAttr, format, args...).WithSubject(subject)
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
