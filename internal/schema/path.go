package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var segmentPattern = regexp.MustCompile(`^([A-Za-z0-9_-]+)(\[\])?$`)

// Segment is one step of a field path: a map key, optionally followed by
// "[]" to address every element of the list stored under that key.
type Segment struct {
	Key  string
	Each bool
}

// Path addresses values inside a record, e.g. "links.homepage" or "urls[]".
type Path []Segment

// ParsePath parses a dotted field path.
func ParsePath(s string) (Path, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty field path")
	}
	parts := strings.Split(s, ".")
	out := make(Path, 0, len(parts))
	for _, part := range parts {
		m := segmentPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("malformed field path %q: bad segment %q", s, part)
		}
		out = append(out, Segment{Key: m[1], Each: m[2] != ""})
	}
	return out, nil
}

// Root returns the top-level key the path starts at.
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Key
}

// String renders the path in its declared form.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
		if seg.Each {
			b.WriteString("[]")
		}
	}
	return b.String()
}

// match is one concrete location a path resolves to.
type match struct {
	path    string // concrete, e.g. "urls[1]"
	value   any
	present bool
}

// mismatch is a container that was expected to be a list or a map but is not.
type mismatch struct {
	path string
	want string
	got  any
}

// resolve walks record along p, expanding "[]" segments into one match per
// list element. A missing key yields a non-present match whose path is the
// concrete prefix followed by the rest of the declared path. An absent list
// under a "[]" segment has no elements and yields nothing.
func (p Path) resolve(record map[string]any) ([]match, []mismatch) {
	type cursor struct {
		path  string
		value any
	}
	cur := []cursor{{value: record}}
	var (
		missing []match
		bad     []mismatch
	)

	for i, seg := range p {
		next := make([]cursor, 0, len(cur))
		for _, c := range cur {
			m, ok := c.value.(map[string]any)
			if !ok {
				bad = append(bad, mismatch{path: c.path, want: "map", got: c.value})
				continue
			}
			at := joinKey(c.path, seg.Key)
			v, found := m[seg.Key]
			if !found || v == nil {
				if !seg.Each {
					rest := at
					if tail := p[i+1:]; len(tail) > 0 {
						rest = at + "." + tail.String()
					}
					missing = append(missing, match{path: rest})
				}
				continue
			}
			if !seg.Each {
				next = append(next, cursor{path: at, value: v})
				continue
			}
			list, ok := v.([]any)
			if !ok {
				bad = append(bad, mismatch{path: at, want: "list", got: v})
				continue
			}
			for j, item := range list {
				next = append(next, cursor{path: at + "[" + strconv.Itoa(j) + "]", value: item})
			}
		}
		cur = next
	}

	out := make([]match, 0, len(cur)+len(missing))
	for _, c := range cur {
		out = append(out, match{path: c.path, value: c.value, present: true})
	}
	return append(out, missing...), bad
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
