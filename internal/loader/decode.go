package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// rawRecord is one undecoded record with its position in the document.
type rawRecord struct {
	value any
	line  int
}

// document is the decoded shape shared by every format: a list of records
// and an optional kind.
type document struct {
	kind    string
	records []rawRecord
	// unknown top-level keys of a mapping document, sorted.
	unknown []string
}

// Format identifies a data file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatOf returns the format implied by a file extension.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".toml":
		return FormatTOML, true
	}
	return "", false
}

var errEmptyDocument = errors.New("document is empty")

func decode(format Format, data []byte) (*document, error) {
	switch format {
	case FormatYAML:
		return decodeYAML(data)
	case FormatJSON:
		return decodeJSON(data)
	case FormatTOML:
		return decodeTOML(data)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func decodeYAML(data []byte) (*document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, errEmptyDocument
	}
	node := root.Content[0]

	var items *yaml.Node
	doc := &document{}
	switch node.Kind {
	case yaml.SequenceNode:
		items = node
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i].Value, node.Content[i+1]
			switch key {
			case "entries":
				if val.Kind != yaml.SequenceNode {
					return nil, fmt.Errorf("line %d: entries must be a list", val.Line)
				}
				items = val
			case "kind":
				if val.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("line %d: kind must be a string", val.Line)
				}
				doc.kind = val.Value
			default:
				doc.unknown = append(doc.unknown, key)
			}
		}
		if items == nil {
			return nil, fmt.Errorf("mapping document has no entries list")
		}
	default:
		return nil, fmt.Errorf("line %d: document must be a list of records or a mapping with entries", node.Line)
	}

	for _, item := range items.Content {
		var v any
		if err := item.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", item.Line, err)
		}
		doc.records = append(doc.records, rawRecord{value: normalizeValue(v), line: item.Line})
	}
	return doc.sorted(), nil
}

func decodeJSON(data []byte) (*document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyDocument
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return fromValue(v)
}

func decodeTOML(data []byte) (*document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyDocument
	}
	var v map[string]any
	if _, err := toml.Decode(string(data), &v); err != nil {
		return nil, err
	}
	return fromValue(normalizeValue(v))
}

// fromValue interprets an already decoded tree as a document.
func fromValue(v any) (*document, error) {
	doc := &document{}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		list, ok := t["entries"]
		if !ok {
			return nil, fmt.Errorf("mapping document has no entries list")
		}
		if items, ok = list.([]any); !ok {
			return nil, fmt.Errorf("entries must be a list")
		}
		if k, ok := t["kind"]; ok {
			s, isString := k.(string)
			if !isString {
				return nil, fmt.Errorf("kind must be a string")
			}
			doc.kind = s
		}
		for key := range t {
			if key != "entries" && key != "kind" {
				doc.unknown = append(doc.unknown, key)
			}
		}
	default:
		return nil, fmt.Errorf("document must be a list of records or a mapping with entries")
	}
	for _, item := range items {
		doc.records = append(doc.records, rawRecord{value: normalizeValue(item)})
	}
	return doc.sorted(), nil
}

func (d *document) sorted() *document {
	sort.Strings(d.unknown)
	return d
}

// normalizeValue converts decoder specific shapes into plain
// map[string]any / []any trees with string timestamps.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return v
}
