package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/appshelf/internal/catalog"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/foundation/normalization"
	"git.home.luguber.info/inful/appshelf/internal/license"
)

// alwaysKnown keys never trigger additional-key handling.
var alwaysKnown = []string{"id", "kind"}

var (
	additionalNormalizer = normalization.NewNormalizer(map[string]Additional{
		"allow":  AdditionalAllow,
		"warn":   AdditionalWarn,
		"ignore": AdditionalAllow,
		"error":  AdditionalError,
		"deny":   AdditionalError,
	}, AdditionalAllow)

	typeNormalizer = normalization.NewNormalizer(map[string]ValueType{
		"string":  TypeString,
		"int":     TypeInt,
		"integer": TypeInt,
		"number":  TypeNumber,
		"float":   TypeNumber,
		"bool":    TypeBool,
		"boolean": TypeBool,
		"list":    TypeList,
		"array":   TypeList,
		"map":     TypeMap,
		"object":  TypeMap,
	}, "")

	severityNormalizer = normalization.NewNormalizer(map[string]diag.Severity{
		"error":   diag.SeverityError,
		"warning": diag.SeverityWarning,
		"warn":    diag.SeverityWarning,
	}, diag.SeverityError)
)

// File is the on-disk form of a schema.
type File struct {
	Version     int                 `yaml:"version"`
	DefaultKind string              `yaml:"default_kind"`
	Categories  []catalog.Category  `yaml:"categories"`
	Enums       map[string][]string `yaml:"enums"`
	Licenses    LicenseFile         `yaml:"licenses"`
	Kinds       map[string]KindFile `yaml:"kinds"`
}

// LicenseFile declares the license ids the built-in license enum accepts.
type LicenseFile struct {
	SPDXFile string            `yaml:"spdx_file"`
	Extra    []string          `yaml:"extra"`
	IDs      []string          `yaml:"ids"`
	List     []license.License `yaml:"list"`
}

// KindFile is the on-disk rule set of one kind.
type KindFile struct {
	Additional string      `yaml:"additional"`
	Fields     []FieldFile `yaml:"fields"`
}

// FieldFile is one field declaration. Unknown keys are rejected.
type FieldFile struct {
	Path      string `yaml:"path"`
	Required  bool   `yaml:"required"`
	Type      string `yaml:"type"`
	Enum      string `yaml:"enum"`
	URL       bool   `yaml:"url"`
	MinLength *int   `yaml:"min_length"`
	MaxLength *int   `yaml:"max_length"`
	Severity  string `yaml:"severity"`
}

// Load reads and compiles the schema file at path. Relative SPDX paths are
// resolved against the schema file's directory.
func Load(path string) (*Schema, error) {
	// #nosec G304 -- schema path comes from configuration.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, foundation.WrapError(err, foundation.CategoryConfig, "cannot read schema file").
			Fatal().
			WithContext("path", path).
			Build()
	}
	f, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, foundation.WrapError(err, foundation.CategoryConfig, "invalid schema file").
			Fatal().
			WithContext("path", path).
			Build()
	}

	baseDir := filepath.Dir(path)
	s, err := Compile(f, baseDir)
	if err != nil {
		return nil, foundation.WrapError(err, foundation.CategoryConfig, "invalid schema").
			Fatal().
			WithContext("path", path).
			Build()
	}
	if abs, absErr := filepath.Abs(path); absErr == nil {
		s.Files = append([]string{abs}, s.Files...)
	}
	return s, nil
}

// Parse decodes a schema document. Unknown keys anywhere are errors.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("schema document is empty")
		}
		return nil, err
	}
	return &f, nil
}

// Compile turns a decoded schema into its validated, immutable form.
// baseDir resolves a relative licenses.spdx_file.
func Compile(f *File, baseDir string) (*Schema, error) {
	if f.Version > 1 {
		return nil, fmt.Errorf("unsupported schema version %d", f.Version)
	}
	if len(f.Kinds) == 0 {
		return nil, fmt.Errorf("schema declares no kinds")
	}

	reg, err := catalog.NewRegistry(f.Categories)
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}

	licenses, files, err := compileLicenses(f.Licenses, baseDir)
	if err != nil {
		return nil, err
	}

	enums := make(map[string]map[string]struct{}, len(f.Enums))
	for name, values := range f.Enums {
		if name == LicenseEnum {
			return nil, fmt.Errorf("enum name %q is reserved", name)
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		enums[name] = set
	}

	s := &Schema{
		Version:     f.Version,
		DefaultKind: f.DefaultKind,
		Categories:  reg,
		Licenses:    licenses,
		Files:       files,
		kinds:       make(map[string]*Kind, len(f.Kinds)),
	}
	for name, kf := range f.Kinds {
		k, err := compileKind(name, kf, enums, licenses)
		if err != nil {
			return nil, fmt.Errorf("kind %q: %w", name, err)
		}
		s.kinds[name] = k
	}

	if s.DefaultKind == "" && len(s.kinds) == 1 {
		s.DefaultKind = s.KindNames()[0]
	}
	if _, ok := s.kinds[s.DefaultKind]; !ok {
		return nil, fmt.Errorf("default_kind %q is not a declared kind", s.DefaultKind)
	}
	return s, nil
}

func compileLicenses(lf LicenseFile, baseDir string) (*license.Registry, []string, error) {
	known := make([]license.License, 0, len(lf.IDs)+len(lf.List))
	var files []string
	if lf.SPDXFile != "" {
		p := lf.SPDXFile
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		spdx, err := license.LoadSPDX(p)
		if err != nil {
			return nil, nil, fmt.Errorf("licenses: %w", err)
		}
		known = append(known, spdx...)
		if abs, err := filepath.Abs(p); err == nil {
			files = append(files, abs)
		}
	}
	for _, id := range lf.IDs {
		known = append(known, license.License{ID: id, OSIApproved: true})
	}
	for _, l := range lf.List {
		if l.ID == "" {
			return nil, nil, fmt.Errorf("licenses.list: entry without id")
		}
		known = append(known, l)
	}
	extra := lf.Extra
	if extra == nil {
		extra = []string{license.FOSS, license.Proprietary}
	}
	return license.NewRegistry(known, extra), files, nil
}

func compileKind(name string, kf KindFile, enums map[string]map[string]struct{}, licenses *license.Registry) (*Kind, error) {
	additional, err := additionalNormalizer.NormalizeWithError(kf.Additional)
	if err != nil {
		return nil, fmt.Errorf("additional: %w", err)
	}
	k := &Kind{
		Name:       name,
		Additional: additional,
		Fields:     make([]Field, 0, len(kf.Fields)),
		known:      make(map[string]struct{}, len(kf.Fields)+len(alwaysKnown)),
	}
	for _, key := range alwaysKnown {
		k.known[key] = struct{}{}
	}
	for i, ff := range kf.Fields {
		field, err := compileField(ff, enums, licenses)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		k.Fields = append(k.Fields, field)
		k.known[field.Path.Root()] = struct{}{}
	}
	return k, nil
}

func compileField(ff FieldFile, enums map[string]map[string]struct{}, licenses *license.Registry) (Field, error) {
	path, err := ParsePath(ff.Path)
	if err != nil {
		return Field{}, err
	}
	sev, err := severityNormalizer.NormalizeWithError(ff.Severity)
	if err != nil {
		return Field{}, fmt.Errorf("%s: severity: %w", ff.Path, err)
	}
	f := Field{Path: path, Severity: sev}

	if ff.Required {
		f.Rules = append(f.Rules, Rule{Kind: RuleRequired})
	}
	if ff.Type != "" {
		t, err := typeNormalizer.NormalizeWithError(ff.Type)
		if err != nil {
			return Field{}, fmt.Errorf("%s: type: %w", ff.Path, err)
		}
		f.Rules = append(f.Rules, Rule{Kind: RuleType, Type: t})
	}
	if ff.Enum != "" {
		r := Rule{Kind: RuleEnum, Enum: ff.Enum}
		if ff.Enum == LicenseEnum {
			r.licenses = licenses
		} else {
			set, ok := enums[ff.Enum]
			if !ok {
				return Field{}, fmt.Errorf("%s: unknown enum %q", ff.Path, ff.Enum)
			}
			r.allowed = set
		}
		f.Rules = append(f.Rules, r)
	}
	if ff.URL {
		f.Rules = append(f.Rules, Rule{Kind: RuleURL})
	}
	if ff.MinLength != nil || ff.MaxLength != nil {
		r := Rule{Kind: RuleLength, Min: -1, Max: -1}
		if ff.MinLength != nil {
			r.Min = *ff.MinLength
		}
		if ff.MaxLength != nil {
			r.Max = *ff.MaxLength
		}
		if r.Min < -1 || r.Max < -1 || (r.Max >= 0 && r.Min > r.Max) {
			return Field{}, fmt.Errorf("%s: invalid length bounds", ff.Path)
		}
		f.Rules = append(f.Rules, r)
	}
	if len(f.Rules) == 0 {
		return Field{}, fmt.Errorf("%s: no rules declared", ff.Path)
	}
	return f, nil
}
