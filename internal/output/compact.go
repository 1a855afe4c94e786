package output

// CompactConfig controls key/value abbreviation for compact output.
type CompactConfig struct {
	ShortKeys            bool
	ShortClassifications bool
}

// CompactAll returns a config with every abbreviation enabled.
func CompactAll() CompactConfig {
	return CompactConfig{ShortKeys: true, ShortClassifications: true}
}

var keyAbbreviations = map[string]string{
	"pid":                 "p",
	"ppid":                "pp",
	"classification":      "c",
	"confidence":          "cf",
	"cmd_short":           "cmd",
	"cmd_full":            "cmdf",
	"recommended_action":  "act",
	"posterior":           "post",
	"blast_radius_mb":     "br",
	"uncertainty":         "unc",
	"expected_loss":       "el",
	"memory_mb":           "mem",
	"cpu_pct":             "cpu",
	"child_count":         "ch",
	"risk_level":          "risk",
	"entropy":             "ent",
	"session_id":          "sid",
	"schema_version":      "sv",
	"generated_at":        "ts",
}

var classificationAbbreviations = map[string]string{
	"useful":     "U",
	"useful_bad": "UB",
	"abandoned":  "A",
	"zombie":     "Z",
}

// AbbreviateKey returns the compact form of a field name, or key unchanged
// if it has no abbreviation.
func AbbreviateKey(key string) string {
	if short, ok := keyAbbreviations[key]; ok {
		return short
	}
	return key
}

// AbbreviateClassification returns the compact form of a classification
// name, or classification unchanged if it has no abbreviation.
func AbbreviateClassification(classification string) string {
	if short, ok := classificationAbbreviations[classification]; ok {
		return short
	}
	return classification
}

// CompactValue recursively applies key/value abbreviation to a decoded
// JSON-like value.
func (c CompactConfig) CompactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			newKey := k
			if c.ShortKeys {
				newKey = AbbreviateKey(k)
			}
			var newVal any
			if c.ShortClassifications && k == "classification" {
				if s, ok := val.(string); ok {
					newVal = AbbreviateClassification(s)
				} else {
					newVal = c.CompactValue(val)
				}
			} else {
				newVal = c.CompactValue(val)
			}
			out[newKey] = newVal
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = c.CompactValue(item)
		}
		return out
	default:
		return value
	}
}
