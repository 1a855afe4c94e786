// Package output shapes scan/decision results for AI-agent consumption:
// field selection, compact key/value abbreviation, and token-budgeted
// truncation so a large fleet scan doesn't blow an agent's context window.
package output

import (
	"fmt"
	"strings"
)

// FieldPreset is a predefined field set for common output shapes.
type FieldPreset string

const (
	PresetMinimal  FieldPreset = "minimal"
	PresetStandard FieldPreset = "standard"
	PresetFull     FieldPreset = "full"
)

var presetFields = map[FieldPreset][]string{
	PresetMinimal:  {"pid", "classification"},
	PresetStandard: {"pid", "classification", "confidence", "cmd_short", "recommended_action"},
	PresetFull:     nil, // nil means "all fields"
}

// FieldSelector decides which fields of a result survive into output.
type FieldSelector struct {
	fields map[string]struct{}
	preset FieldPreset
}

// NewFieldSelector builds a selector over an explicit field list.
func NewFieldSelector(fields []string) FieldSelector {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return FieldSelector{fields: set}
}

// FieldSelectorFromPreset builds a selector from one of the named presets.
func FieldSelectorFromPreset(preset FieldPreset) FieldSelector {
	return FieldSelector{preset: preset}
}

// DefaultFieldSelector is the standard preset, used when nothing is specified.
func DefaultFieldSelector() FieldSelector {
	return FieldSelectorFromPreset(PresetStandard)
}

// ParseFieldSelector parses a comma-separated field list or a preset name.
func ParseFieldSelector(spec string) (FieldSelector, error) {
	if spec == "" {
		return DefaultFieldSelector(), nil
	}
	spec = strings.ToLower(strings.TrimSpace(spec))
	switch spec {
	case string(PresetMinimal):
		return FieldSelectorFromPreset(PresetMinimal), nil
	case string(PresetStandard):
		return FieldSelectorFromPreset(PresetStandard), nil
	case string(PresetFull):
		return FieldSelectorFromPreset(PresetFull), nil
	}

	var fields []string
	for _, f := range strings.Split(spec, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return FieldSelector{}, fmt.Errorf("empty field list")
	}
	return NewFieldSelector(fields), nil
}

// Includes reports whether field should appear in output.
func (s FieldSelector) Includes(field string) bool {
	if s.preset == PresetFull {
		return true
	}
	if s.preset != "" {
		pf := presetFields[s.preset]
		if pf == nil {
			return true
		}
		for _, f := range pf {
			if f == field {
				return true
			}
		}
		return false
	}

	if len(s.fields) == 0 {
		return true
	}
	if _, ok := s.fields[field]; ok {
		return true
	}
	for f := range s.fields {
		if strings.HasPrefix(field, f+".") || strings.HasPrefix(f, field+".") {
			return true
		}
	}
	return false
}

// FilterValue recursively drops fields from a decoded JSON-like value
// (map[string]any / []any / scalars) that the selector excludes. An
// array-valued field is kept even when its key is not selected, and each of
// its elements is filtered, so per-item fields apply to a list of results.
func (s FieldSelector) FilterValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if !s.Includes(k) {
				if arr, ok := val.([]any); ok {
					out[k] = s.FilterValue(arr)
				}
				continue
			}
			if nested, ok := val.(map[string]any); ok {
				out[k] = s.filterNested(k, nested)
			} else {
				out[k] = val
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.FilterValue(item)
		}
		return out
	default:
		return value
	}
}

func (s FieldSelector) filterNested(parent string, m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		fullPath := parent + "." + k
		if s.Includes(fullPath) || len(s.fields) == 0 || s.preset == PresetFull {
			out[k] = v
		}
	}
	return out
}
