// Package diag defines the diagnostics a build accumulates: parse failures,
// schema violations, unresolved references, template and write failures.
//
// Diagnostics never abort a build. Each one is tied to the unit of work it
// affects (a file, a record, a page or an output file) and is reported at
// the end of the run.
package diag

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind classifies a violation by the stage and unit of work it affects.
type Kind string

const (
	// KindParse is a malformed source document. The whole file is skipped.
	KindParse Kind = "ParseError"
	// KindSchema is a field-level schema failure. Only the record is excluded.
	KindSchema Kind = "SchemaViolation"
	// KindReference is an entry pointing at an unknown category or entry.
	KindReference Kind = "ReferenceError"
	// KindTemplate is a missing template or a failed page render.
	KindTemplate Kind = "TemplateError"
	// KindWrite is a filesystem failure for one output file.
	KindWrite Kind = "WriteError"
)

// Kinds lists every kind in reporting order.
var Kinds = []Kind{KindParse, KindSchema, KindReference, KindTemplate, KindWrite}

func (k Kind) rank() int {
	for i, known := range Kinds {
		if known == k {
			return i
		}
	}
	return len(Kinds)
}

// Severity indicates whether a violation excludes the affected unit.
type Severity int

const (
	// SeverityWarning is reported but does not exclude anything.
	SeverityWarning Severity = iota
	// SeverityError excludes the affected file, record, page or output.
	SeverityError
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "warning":
		*s = SeverityWarning
	case "error", "":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Provenance locates a record in its source data file.
type Provenance struct {
	File  string `json:"file,omitempty"`  // data-root relative, slash separated
	Index int    `json:"index"`           // position within the file, -1 for the file itself
	Line  int    `json:"line,omitempty"`  // 1-based line, 0 when the format has none
}

// FileOnly returns the provenance of a whole file.
func FileOnly(file string) Provenance {
	return Provenance{File: file, Index: -1}
}

// String renders file:line when a line is known, file#index otherwise.
func (p Provenance) String() string {
	switch {
	case p.File == "":
		return ""
	case p.Line > 0:
		return p.File + ":" + strconv.Itoa(p.Line)
	case p.Index >= 0:
		return p.File + "#" + strconv.Itoa(p.Index)
	default:
		return p.File
	}
}

// Less orders provenances by file, then position.
func (p Provenance) Less(o Provenance) bool {
	if p.File != o.File {
		return p.File < o.File
	}
	return p.Index < o.Index
}

// Violation is a single reported problem.
type Violation struct {
	Kind     Kind       `json:"kind"`
	Severity Severity   `json:"severity"`
	Source   Provenance `json:"source"`
	Path     string     `json:"path,omitempty"`    // field path within the record
	Subject  string     `json:"subject,omitempty"` // entry id, page id or output path
	Message  string     `json:"message"`
}

// New builds a violation.
func New(kind Kind, sev Severity, src Provenance, path, msg string) Violation {
	return Violation{Kind: kind, Severity: sev, Source: src, Path: path, Message: msg}
}

// Errorf builds an error-severity violation.
func Errorf(kind Kind, src Provenance, path, format string, args ...any) Violation {
	return New(kind, SeverityError, src, path, fmt.Sprintf(format, args...))
}

// Warnf builds a warning-severity violation.
func Warnf(kind Kind, src Provenance, path, format string, args ...any) Violation {
	return New(kind, SeverityWarning, src, path, fmt.Sprintf(format, args...))
}

// WithSubject returns a copy of v naming the affected entry, page or output.
func (v Violation) WithSubject(subject string) Violation {
	v.Subject = subject
	return v
}

// IsError reports whether v excludes the unit it is attached to.
func (v Violation) IsError() bool { return v.Severity == SeverityError }

// Location is the provenance when known, the subject otherwise.
func (v Violation) Location() string {
	if loc := v.Source.String(); loc != "" {
		return loc
	}
	return v.Subject
}

// String formats the violation as a single diagnostic line:
// "location: Kind severity path: message".
func (v Violation) String() string {
	head := fmt.Sprintf("%s: %s %s", v.Location(), v.Kind, v.Severity)
	if v.Path != "" {
		head += " " + v.Path
	}
	return head + ": " + v.Message
}

// HasErrors returns true if any error-severity violation exists.
func HasErrors(vs []Violation) bool {
	for _, v := range vs {
		if v.IsError() {
			return true
		}
	}
	return false
}

// Count returns the number of violations with the given severity.
func Count(vs []Violation, sev Severity) int {
	n := 0
	for _, v := range vs {
		if v.Severity == sev {
			n++
		}
	}
	return n
}

// GroupByKind splits violations by kind, keeping their relative order.
func GroupByKind(vs []Violation) map[Kind][]Violation {
	out := make(map[Kind][]Violation)
	for _, v := range vs {
		out[v.Kind] = append(out[v.Kind], v)
	}
	return out
}

// Sort orders violations by kind, then source, then path, keeping the
// relative order of otherwise equal violations.
func Sort(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Kind != b.Kind {
			return a.Kind.rank() < b.Kind.rank()
		}
		if a.Source != b.Source {
			return a.Source.Less(b.Source)
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Path < b.Path
	})
}
