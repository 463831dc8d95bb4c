package pipeline

import (
	"encoding/json"
	"fmt"
	"io"

	"git.home.luguber.info/inful/appshelf/internal/diag"
)

// WriteText writes one line per violation followed by a summary of counts
// per kind, entries, pages and output files.
func WriteText(w io.Writer, r *BuildReport) error {
	if err := diag.WriteLines(w, r.Violations); err != nil {
		return err
	}
	return WriteSummary(w, r)
}

// WriteSummary writes the count summary of a report.
func WriteSummary(w io.Writer, r *BuildReport) error {
	groups := r.ViolationsByKind()
	lines := make([]string, 0, len(diag.Kinds)+5)
	for _, kind := range diag.Kinds {
		group := groups[kind]
		if len(group) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-16s %d error(s), %d warning(s)", kind,
			diag.Count(group, diag.SeverityError), diag.Count(group, diag.SeverityWarning)))
	}
	lines = append(lines,
		fmt.Sprintf("entries: %d rendered, %d skipped (%d loaded)", r.Entries.Rendered, r.Entries.Skipped, r.Entries.Loaded),
		fmt.Sprintf("pages:   %d rendered, %d failed (%d planned)", r.Pages.Rendered, r.Pages.Failed, r.Pages.Planned),
		fmt.Sprintf("files:   %d written, %d unchanged, %d failed", r.Writes.Written, r.Writes.Unchanged, r.Writes.Failed),
		fmt.Sprintf("build %s: %s (%s)", r.BuildID, r.Outcome, r.State),
	)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes the report as an indented JSON document.
func WriteJSON(w io.Writer, r *BuildReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Serializable())
}
