package output

import "testing"

func TestFieldSelectorPresets(t *testing.T) {
	min := FieldSelectorFromPreset(PresetMinimal)
	if !min.Includes("pid") {
		t.Error("minimal preset should include pid")
	}
	if min.Includes("cmd_short") {
		t.Error("minimal preset should not include cmd_short")
	}

	full := FieldSelectorFromPreset(PresetFull)
	if !full.Includes("anything") {
		t.Error("full preset should include all fields")
	}
}

func TestFieldSelectorParse(t *testing.T) {
	sel, err := ParseFieldSelector("pid,classification")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sel.Includes("pid") || !sel.Includes("classification") {
		t.Error("parsed selector should include listed fields")
	}
	if sel.Includes("cmd_short") {
		t.Error("parsed selector should exclude unlisted fields")
	}

	sel, err = ParseFieldSelector("minimal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sel.Includes("pid") {
		t.Error("preset name should parse to preset selector")
	}

	sel, err = ParseFieldSelector("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sel.Includes("confidence") {
		t.Error("empty spec should default to standard preset")
	}

	if _, err := ParseFieldSelector("   "); err == nil {
		t.Error("expected error for empty field list")
	}
}

func TestFieldSelectorNested(t *testing.T) {
	sel := NewFieldSelector([]string{"inference.classification"})
	value := map[string]any{
		"pid": float64(100),
		"inference": map[string]any{
			"classification": "abandoned",
			"confidence":     0.9,
		},
	}
	out := sel.FilterValue(value).(map[string]any)
	if _, ok := out["pid"]; ok {
		t.Error("pid should be excluded")
	}
	inf, ok := out["inference"].(map[string]any)
	if !ok {
		t.Fatal("expected inference to survive filtering")
	}
	if _, ok := inf["classification"]; !ok {
		t.Error("nested classification should survive")
	}
}

func TestFieldFilterValueArray(t *testing.T) {
	sel := NewFieldSelector([]string{"pid"})
	value := []any{
		map[string]any{"pid": float64(1), "cmd_short": "a"},
		map[string]any{"pid": float64(2), "cmd_short": "b"},
	}
	out := sel.FilterValue(value).([]any)
	if len(out) != 2 {
		t.Fatalf("expected 2 items, got %d", len(out))
	}
	first := out[0].(map[string]any)
	if _, ok := first["cmd_short"]; ok {
		t.Error("cmd_short should be excluded from array items")
	}
}
