// Package frontmatter splits `---` delimited YAML headers from template
// sources and decodes them.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// front matter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml front matter start delimiter found but closing delimiter is missing")

// Split separates YAML front matter from the body.
//
// If the document does not start with a delimiter, had is false and body is
// the full input. Both LF and CRLF line endings are recognised.
func Split(content []byte) (front []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	end := start + idx + len(nl)
	return content[start:end], content[start+idx+len(closeSeq):], true, nil
}

// ParseYAML parses raw front matter (without delimiters) into a map.
func ParseYAML(front []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(front)) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := yaml.Unmarshal(front, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Header is the decoded front matter of a page template.
type Header struct {
	Title       string
	Description string
	// Params holds every other key, exposed to templates as .Page.Params.
	Params map[string]any
}

// Parse splits content and decodes its header. A source without front
// matter yields an empty header and the full body.
func Parse(content []byte) (Header, []byte, error) {
	front, body, had, err := Split(content)
	if err != nil {
		return Header{}, nil, err
	}
	h := Header{Params: map[string]any{}}
	if !had {
		return h, body, nil
	}
	fields, err := ParseYAML(front)
	if err != nil {
		return Header{}, nil, fmt.Errorf("parse front matter: %w", err)
	}
	for k, v := range fields {
		switch k {
		case "title":
			h.Title = fmt.Sprint(v)
		case "description":
			h.Description = fmt.Sprint(v)
		default:
			h.Params[k] = v
		}
	}
	return h, body, nil
}

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
