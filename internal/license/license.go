// Package license classifies license identifiers used by catalogue entries.
//
// Identifiers come from an SPDX license list (the JSON document published
// by SPDX), from inline definitions in the schema, and from two pseudo
// identifiers: FOSS, for software known to be free without a specific
// license, and Proprietary.
package license

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Pseudo identifiers accepted alongside SPDX ids.
const (
	FOSS        = "FOSS"
	Proprietary = "Proprietary"
)

// License is one known license identifier.
type License struct {
	ID          string `json:"licenseId" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	OSIApproved bool   `json:"isOsiApproved" yaml:"osi"`
	FSFLibre    bool   `json:"isFsfLibre" yaml:"fsf"`
	Deprecated  bool   `json:"isDeprecatedLicenseId" yaml:"deprecated"`
}

// Free reports whether the license is OSI approved or FSF libre.
func (l License) Free() bool { return l.OSIApproved || l.FSFLibre }

type spdxDocument struct {
	Version  string    `json:"licenseListVersion"`
	Licenses []License `json:"licenses"`
}

// ParseSPDX decodes an SPDX license list JSON document.
func ParseSPDX(r io.Reader) ([]License, error) {
	var doc spdxDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode spdx license list: %w", err)
	}
	out := make([]License, 0, len(doc.Licenses))
	for _, l := range doc.Licenses {
		if l.ID == "" {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// LoadSPDX reads an SPDX license list JSON file.
func LoadSPDX(path string) ([]License, error) {
	// #nosec G304 -- path comes from the schema file.
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open spdx license list: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseSPDX(f)
}

// Registry answers membership and FOSS questions about license ids.
// It is immutable once built.
type Registry struct {
	byID  map[string]License
	extra map[string]bool
}

// NewRegistry builds a registry from known licenses and extra accepted ids.
// Later definitions of the same id replace earlier ones.
func NewRegistry(known []License, extra []string) *Registry {
	r := &Registry{
		byID:  make(map[string]License, len(known)),
		extra: make(map[string]bool, len(extra)),
	}
	for _, l := range known {
		r.byID[l.ID] = l
	}
	for _, id := range extra {
		if id != "" {
			r.extra[id] = true
		}
	}
	return r
}

// Known reports whether id is an accepted license identifier.
func (r *Registry) Known(id string) bool {
	if r == nil {
		return false
	}
	if r.extra[id] {
		return true
	}
	_, ok := r.byID[id]
	return ok
}

// Lookup returns the license definition for an SPDX or inline id.
func (r *Registry) Lookup(id string) (License, bool) {
	if r == nil {
		return License{}, false
	}
	l, ok := r.byID[id]
	return l, ok
}

// Deprecated reports whether id is a deprecated SPDX identifier.
func (r *Registry) Deprecated(id string) bool {
	l, ok := r.Lookup(id)
	return ok && l.Deprecated
}

// IsFOSS classifies a single id. FOSS is free, Proprietary never is, and
// defined licenses are free when OSI approved or FSF libre. Unknown ids are
// not free.
func (r *Registry) IsFOSS(id string) bool {
	switch id {
	case FOSS:
		return true
	case Proprietary:
		return false
	}
	l, ok := r.Lookup(id)
	return ok && l.Free()
}

// AllFOSS reports whether ids is non-empty and every id is FOSS.
func (r *Registry) AllFOSS(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !r.IsFOSS(id) {
			return false
		}
	}
	return true
}

// IDs returns every accepted id in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.byID)+len(r.extra))
	for id := range r.byID {
		ids = append(ids, id)
	}
	for id := range r.extra {
		if _, dup := r.byID[id]; !dup {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of accepted ids.
func (r *Registry) Len() int { return len(r.IDs()) }
