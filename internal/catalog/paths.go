package catalog

import "path"

// Site-root relative page locations. Output paths depend only on ids.
const (
	IndexPageID   = "index"
	IndexPath     = "index.html"
	CategoryDir   = "by-category"
	pageExt       = ".html"
)

// CategoryPageID returns the page id of a category page.
func CategoryPageID(categoryID string) string {
	return path.Join(CategoryDir, categoryID)
}

// CategoryPath returns the site-root relative output path of a category page.
func CategoryPath(categoryID string) string {
	return CategoryPageID(categoryID) + pageExt
}

// Anchor returns the HTML id of an entry card.
func Anchor(entryID string) string {
	return "entry-" + entryID
}

// RootPrefix returns the relative prefix leading from the page at p back to
// the site root, e.g. "../" for "by-category/editors.html".
func RootPrefix(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	prefix := ""
	for d := dir; d != "." && d != "/"; d = path.Dir(d) {
		prefix += "../"
	}
	return prefix
}
