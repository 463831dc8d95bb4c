package license

import "encoding/json"

// EnumSchema renders a JSON Schema document whose enum is the sorted list of
// accepted license ids. Editors and CI linters use it to check data files
// without running a build.
func EnumSchema(r *Registry) ([]byte, error) {
	schema := map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         "spdx_licenses.schema.json",
		"title":       "SPDX License IDs",
		"description": "Generated SPDX licenseId enum.",
		"type":        "string",
		"enum":        r.IDs(),
	}
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
