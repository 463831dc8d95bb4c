package loader

import (
	"fmt"
	"html/template"
	"maps"
	"strings"

	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/schema"
)

// mappedKeys are record fields copied onto dedicated Entry fields. All
// others end up in Entry.Metadata.
var mappedKeys = map[string]struct{}{
	"id": {}, "kind": {}, "name": {}, "publisher": {}, "description": {},
	"categories": {}, "urls": {}, "licenses": {}, "status": {},
	"comment": {}, "note": {}, "related": {},
}

// Validate checks records against their kinds and converts accepted ones to
// entries. The first record with a given id wins; later ones are reported.
func (l *Loader) Validate(records []Record) ([]*catalog.Entry, []diag.Violation) {
	var (
		entries    []*catalog.Entry
		violations []diag.Violation
	)
	firstSeen := make(map[string]diag.Provenance, len(records))

	for _, rec := range records {
		if rec.Fields == nil {
			violations = append(violations, diag.Errorf(diag.KindSchema, rec.Source, "",
				"record must be a mapping, got %s", describe(rec.Value)))
			continue
		}
		fields := applyAliases(rec.Fields)

		kindName := rec.Kind
		if k, ok := fields["kind"].(string); ok && k != "" {
			kindName = k
		}
		kind, ok := l.schema.Kind(kindName)
		if !ok {
			violations = append(violations, diag.Errorf(diag.KindSchema, rec.Source, "kind", "unknown kind %q", kindName))
			continue
		}

		id, idViolation := recordID(fields, rec.Source)
		vs := schema.Validate(fields, kind, rec.Source)
		if idViolation != nil {
			vs = append(vs, *idViolation)
		}
		for i := range vs {
			vs[i] = vs[i].WithSubject(id)
		}
		violations = append(violations, vs...)
		if diag.HasErrors(vs) {
			l.logger.Debug("Excluding record", logfields.File(rec.Source.String()), logfields.EntryID(id))
			continue
		}

		if first, dup := firstSeen[id]; dup {
			violations = append(violations, diag.Errorf(diag.KindSchema, rec.Source, "id",
				"duplicate id %q, first defined at %s", id, first).WithSubject(id))
			continue
		}

		entry, err := l.buildEntry(id, kind.Name, fields, rec.Source)
		if err != nil {
			violations = append(violations, diag.Errorf(diag.KindSchema, rec.Source, "", "%v", err).WithSubject(id))
			continue
		}
		firstSeen[id] = rec.Source
		entries = append(entries, entry)
	}
	return entries, violations
}

// applyAliases returns a copy of fields with the singular category and url
// keys merged into their list forms.
func applyAliases(fields map[string]any) map[string]any {
	out := maps.Clone(fields)
	mergeAlias(out, "category", "categories", false)
	mergeAlias(out, "url", "urls", true)
	return out
}

// mergeAlias folds alias into list. The alias goes first when prepend is
// set, last otherwise.
func mergeAlias(fields map[string]any, alias, list string, prepend bool) {
	v, ok := fields[alias]
	if !ok {
		return
	}
	delete(fields, alias)
	var extra []any
	switch t := v.(type) {
	case nil:
		return
	case []any:
		extra = t
	default:
		extra = []any{t}
	}
	existing, present := fields[list]
	if !present || existing == nil {
		fields[list] = extra
		return
	}
	cur, isList := existing.([]any)
	if !isList {
		// Leave the malformed list for the schema to report.
		return
	}
	merged := make([]any, 0, len(cur)+len(extra))
	if prepend {
		merged = append(append(merged, extra...), cur...)
	} else {
		merged = append(append(merged, cur...), extra...)
	}
	fields[list] = merged
}

// recordID returns the declared or derived id. Declared ids must already be
// in sanitised form.
func recordID(fields map[string]any, src diag.Provenance) (string, *diag.Violation) {
	if raw, ok := fields["id"]; ok && raw != nil {
		s, isString := raw.(string)
		if !isString {
			v := diag.Errorf(diag.KindSchema, src, "id", "expected string, got %s", describe(raw))
			return "", &v
		}
		id := strings.TrimSpace(s)
		if clean := catalog.Sanitize(id); clean != id || id == "" {
			v := diag.Errorf(diag.KindSchema, src, "id", "id %q must be lower case without spaces or reserved characters (try %q)", s, clean)
			return clean, &v
		}
		return id, nil
	}
	name, _ := fields["name"].(string)
	publisher, _ := fields["publisher"].(string)
	id := catalog.DeriveID(publisher, name)
	if id == "" {
		v := diag.Errorf(diag.KindSchema, src, "id", "cannot derive an id without a name")
		return "", &v
	}
	return id, nil
}

func (l *Loader) buildEntry(id, kind string, fields map[string]any, src diag.Provenance) (*catalog.Entry, error) {
	comment, err := l.renderText(fields, "comment")
	if err != nil {
		return nil, err
	}
	note, err := l.renderText(fields, "note")
	if err != nil {
		return nil, err
	}

	e := &catalog.Entry{
		ID:          id,
		Name:        stringField(fields, "name"),
		Publisher:   stringField(fields, "publisher"),
		Description: stringField(fields, "description"),
		Categories:  catalog.Dedupe(stringList(fields["categories"])),
		URLs:        catalog.Dedupe(stringList(fields["urls"])),
		Licenses:    catalog.Dedupe(stringList(fields["licenses"])),
		Status:      stringField(fields, "status"),
		Comment:     comment,
		Note:        note,
		Related:     catalog.Dedupe(stringList(fields["related"])),
		Metadata:    map[string]any{},
		Kind:        kind,
		Source:      src,
	}
	if e.Name == "" {
		e.Name = id
	}
	e.IsFOSS = l.schema.Licenses.AllFOSS(e.Licenses)
	for k, v := range fields {
		if _, mapped := mappedKeys[k]; !mapped {
			e.Metadata[k] = v
		}
	}
	return e, nil
}

func (l *Loader) renderText(fields map[string]any, key string) (template.HTML, error) {
	s := stringField(fields, key)
	if s == "" {
		return "", nil
	}
	out, err := l.markdown.Render(s)
	if err != nil {
		return "", fmt.Errorf("%s: render markdown: %w", key, err)
	}
	return out, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{strings.TrimSpace(t)}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	case bool:
		return "bool"
	default:
		return "number"
	}
}
