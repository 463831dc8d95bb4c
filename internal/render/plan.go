package render

import (
	"maps"

	"git.home.luguber.info/inful/appshelf/internal/aggregate"
	"git.home.luguber.info/inful/appshelf/internal/catalog"
)

// Site is the site-wide metadata exposed as .Site.
type Site struct {
	Title       string
	BaseURL     string
	Description string
	Locale      string
	Params      map[string]any
}

// PageInfo describes the page being rendered, exposed as .Page.
type PageInfo struct {
	ID          string
	Kind        PageKind
	Title       string
	Description string
	// Path is the site-root relative output path.
	Path string
	// Root leads from this page back to the site root, e.g. "../".
	Root   string
	Params map[string]any
}

// Context is the data a page template executes against. It holds no
// timestamps so identical input renders identical bytes.
type Context struct {
	Site       Site
	Page       PageInfo
	Categories []*aggregate.CategoryView
	Stats      aggregate.Stats
	// Category is set on category pages only.
	Category *aggregate.CategoryView
}

// Page is one planned output page.
type Page struct {
	ID      string
	Kind    PageKind
	Path    string
	Context *Context
}

// Plan enumerates the pages of a build: the index, then one page per
// registry category in display order. Front matter of the kind's template
// supplies titles and params.
func Plan(view *aggregate.View, site Site, set *Set) []Page {
	cats := view.Categories()
	pages := make([]Page, 0, len(cats)+1)

	index := Page{ID: catalog.IndexPageID, Kind: KindIndex, Path: catalog.IndexPath}
	index.Context = &Context{
		Site:       site,
		Page:       pageInfo(index, set, site.Title, site.Description),
		Categories: cats,
		Stats:      view.Stats(),
	}
	pages = append(pages, index)

	for _, c := range cats {
		p := Page{ID: catalog.CategoryPageID(c.ID), Kind: KindCategory, Path: c.Page}
		p.Context = &Context{
			Site:       site,
			Page:       pageInfo(p, set, c.Name, c.Description),
			Categories: cats,
			Stats:      view.Stats(),
			Category:   c,
		}
		pages = append(pages, p)
	}
	return pages
}

func pageInfo(p Page, set *Set, title, description string) PageInfo {
	info := PageInfo{
		ID:          p.ID,
		Kind:        p.Kind,
		Title:       title,
		Description: description,
		Path:        p.Path,
		Root:        catalog.RootPrefix(p.Path),
		Params:      map[string]any{},
	}
	if set == nil {
		return info
	}
	t, ok := set.Template(p.Kind)
	if !ok || t.Err != nil {
		return info
	}
	// Category pages keep their own name; index pages take the template title.
	if t.Header.Title != "" && p.Kind == KindIndex {
		info.Title = t.Header.Title
	}
	if t.Header.Description != "" && info.Description == "" {
		info.Description = t.Header.Description
	}
	info.Params = maps.Clone(t.Header.Params)
	return info
}
