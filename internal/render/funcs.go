package render

import (
	"errors"
	"fmt"
	"html/template"
	"strings"

	"git.home.luguber.info/inful/appshelf/internal/catalog"
)

// funcMap returns the helpers available to every template. Paths are site
// root relative; templates prefix them with .Page.Root.
func funcMap() template.FuncMap {
	return template.FuncMap{
		"categoryURL": catalog.CategoryPath,
		"entryAnchor": catalog.Anchor,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
		"lower": strings.ToLower,
		"dict":  dict,
	}
}

// dict builds a map from alternating keys and values so a partial can
// receive more than one value.
func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("dict needs an even number of arguments")
	}
	out := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		out[key] = pairs[i+1]
	}
	return out, nil
}
