package output

import "testing"

func TestCompactAbbreviations(t *testing.T) {
	if got := AbbreviateKey("pid"); got != "p" {
		t.Errorf("expected p, got %s", got)
	}
	if got := AbbreviateKey("unknown_field"); got != "unknown_field" {
		t.Errorf("unmapped key should pass through unchanged, got %s", got)
	}
	if got := AbbreviateClassification("abandoned"); got != "A" {
		t.Errorf("expected A, got %s", got)
	}
	if got := AbbreviateClassification("weird"); got != "weird" {
		t.Errorf("unmapped classification should pass through unchanged, got %s", got)
	}
}

func TestCompactValue(t *testing.T) {
	cfg := CompactAll()
	value := map[string]any{
		"pid":            float64(42),
		"classification": "useful_bad",
		"nested": map[string]any{
			"confidence": 0.5,
		},
	}
	out := cfg.CompactValue(value).(map[string]any)
	if _, ok := out["p"]; !ok {
		t.Error("expected abbreviated key 'p'")
	}
	if out["c"] != "UB" {
		t.Errorf("expected classification abbreviated to UB, got %v", out["c"])
	}
	nested, ok := out["nested"].(map[string]any)
	if !ok {
		t.Fatal("expected nested map to survive")
	}
	if _, ok := nested["cf"]; !ok {
		t.Error("expected nested key abbreviated to cf")
	}
}

func TestCompactValueDisabled(t *testing.T) {
	cfg := CompactConfig{}
	value := map[string]any{"pid": float64(1), "classification": "zombie"}
	out := cfg.CompactValue(value).(map[string]any)
	if out["pid"] != float64(1) || out["classification"] != "zombie" {
		t.Error("disabled compact config should pass values through unchanged")
	}
}
