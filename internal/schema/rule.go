package schema

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"git.home.luguber.info/inful/appshelf/internal/license"
)

// RuleKind tags the variant held by a Rule.
type RuleKind int

const (
	RuleRequired RuleKind = iota
	RuleType
	RuleEnum
	RuleURL
	RuleLength
)

func (k RuleKind) String() string {
	switch k {
	case RuleRequired:
		return "required"
	case RuleType:
		return "type"
	case RuleEnum:
		return "enum"
	case RuleURL:
		return "url"
	case RuleLength:
		return "length"
	default:
		return "unknown"
	}
}

// ValueType is the expected shape of a field value.
type ValueType string

const (
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeNumber ValueType = "number"
	TypeBool   ValueType = "bool"
	TypeList   ValueType = "list"
	TypeMap    ValueType = "map"
)

// LicenseEnum is the built-in enum backed by the license registry.
const LicenseEnum = "license"

// Rule is a single compiled constraint. Only the fields of its Kind are set.
type Rule struct {
	Kind RuleKind

	Type ValueType // RuleType

	Enum     string              // RuleEnum: enum name
	allowed  map[string]struct{} // RuleEnum: closed set, nil for LicenseEnum
	licenses *license.Registry   // RuleEnum: set for LicenseEnum

	Min, Max int // RuleLength: -1 when unbounded
}

// outcome is the result of checking one value against one rule.
type outcome struct {
	failed  bool
	warning bool // passed but worth reporting, e.g. deprecated license
	message string
}

func pass() outcome { return outcome{} }

func fail(format string, args ...any) outcome {
	return outcome{failed: true, message: fmt.Sprintf(format, args...)}
}

func warnOnly(format string, args ...any) outcome {
	return outcome{warning: true, message: fmt.Sprintf(format, args...)}
}

// check applies the rule to a present, non-nil value.
func (r Rule) check(v any) outcome {
	switch r.Kind {
	case RuleType:
		if !hasType(v, r.Type) {
			return fail("expected %s, got %s", r.Type, describe(v))
		}
	case RuleEnum:
		return r.checkEnum(v)
	case RuleURL:
		s, ok := v.(string)
		if !ok {
			return fail("expected URL string, got %s", describe(v))
		}
		if err := checkURL(s); err != nil {
			return fail("%v", err)
		}
	case RuleLength:
		return r.checkLength(v)
	}
	return pass()
}

func (r Rule) checkEnum(v any) outcome {
	s, ok := v.(string)
	if !ok {
		return fail("expected one of %s, got %s", r.Enum, describe(v))
	}
	if r.licenses != nil {
		if !r.licenses.Known(s) {
			return fail("unknown license %q", s)
		}
		if r.licenses.Deprecated(s) {
			return warnOnly("license %q is a deprecated SPDX identifier", s)
		}
		return pass()
	}
	if _, ok := r.allowed[s]; !ok {
		return fail("%q is not one of %s", s, quoteSorted(r.allowed))
	}
	return pass()
}

func (r Rule) checkLength(v any) outcome {
	var n int
	var unit string
	switch t := v.(type) {
	case string:
		n, unit = utf8.RuneCountInString(strings.TrimSpace(t)), "characters"
	case []any:
		n, unit = len(t), "items"
	default:
		return pass()
	}
	if r.Min >= 0 && n < r.Min {
		if unit == "characters" && r.Min == 1 {
			return fail("must not be empty")
		}
		return fail("must have at least %d %s, got %d", r.Min, unit, n)
	}
	if r.Max >= 0 && n > r.Max {
		return fail("must have at most %d %s, got %d", r.Max, unit, n)
	}
	return pass()
}

func checkURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL %q", s)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", s)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", s)
	}
	return nil
}

func hasType(v any, t ValueType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeList:
		_, ok := v.([]any)
		return ok
	case TypeMap:
		_, ok := v.(map[string]any)
		return ok
	case TypeInt:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return n == math.Trunc(n) && !math.IsInf(n, 0)
		}
		return false
	case TypeNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	}
	return false
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	case float32, float64:
		return "number"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func quoteSorted(set map[string]struct{}) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, ", ") + "]"
}
