package diag

import (
	"fmt"
	"io"
)

// WriteLines writes one diagnostic line per violation.
func WriteLines(w io.Writer, vs []Violation) error {
	for _, v := range vs {
		if _, err := fmt.Fprintln(w, v.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteGrouped writes violations under one heading per kind, in reporting
// order, skipping kinds with nothing to report.
func WriteGrouped(w io.Writer, vs []Violation) error {
	groups := GroupByKind(vs)
	for _, kind := range Kinds {
		group := groups[kind]
		if len(group) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s (%d error%s, %d warning%s)\n", kind,
			Count(group, SeverityError), pluralize(Count(group, SeverityError)),
			Count(group, SeverityWarning), pluralize(Count(group, SeverityWarning))); err != nil {
			return err
		}
		for _, v := range group {
			if _, err := fmt.Fprintf(w, "  %s\n", v.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
