package schema

import (
	"sort"

	"git.home.luguber.info/inful/appshelf/internal/diag"
)

// Validate checks record against kind and returns every violation found, in
// field declaration order followed by unknown keys in sorted order. It is
// pure and tolerates arbitrary input shapes.
func Validate(record map[string]any, kind *Kind, src diag.Provenance) []diag.Violation {
	if kind == nil {
		return []diag.Violation{diag.Errorf(diag.KindSchema, src, "", "no schema kind to validate against")}
	}
	if record == nil {
		record = map[string]any{}
	}

	var out []diag.Violation
	reportedShape := make(map[string]struct{})

	for _, f := range kind.Fields {
		matches, mismatches := f.Path.resolve(record)
		for _, mm := range mismatches {
			if _, dup := reportedShape[mm.path]; dup {
				continue
			}
			reportedShape[mm.path] = struct{}{}
			out = append(out, diag.New(diag.KindSchema, f.Severity, src, mm.path,
				"expected "+mm.want+", got "+describe(mm.got)))
		}
		for _, m := range matches {
			out = append(out, checkField(f, m, src)...)
		}
	}

	if kind.Additional != AdditionalAllow {
		sev := diag.SeverityWarning
		if kind.Additional == AdditionalError {
			sev = diag.SeverityError
		}
		unknown := make([]string, 0)
		for key := range record {
			if !kind.Knows(key) {
				unknown = append(unknown, key)
			}
		}
		sort.Strings(unknown)
		for _, key := range unknown {
			out = append(out, diag.New(diag.KindSchema, sev, src, key, "unknown field"))
		}
	}
	return out
}

func checkField(f Field, m match, src diag.Provenance) []diag.Violation {
	if !m.present {
		if f.Required() {
			return []diag.Violation{diag.New(diag.KindSchema, f.Severity, src, m.path, "required field is missing")}
		}
		return nil
	}

	var out []diag.Violation
	for _, r := range f.Rules {
		if r.Kind == RuleRequired {
			continue
		}
		res := r.check(m.value)
		switch {
		case res.failed:
			out = append(out, diag.New(diag.KindSchema, f.Severity, src, m.path, res.message))
		case res.warning:
			out = append(out, diag.New(diag.KindSchema, diag.SeverityWarning, src, m.path, res.message))
		}
		if res.failed && r.Kind == RuleType {
			// Further rules would only restate the type mismatch.
			break
		}
	}
	return out
}
