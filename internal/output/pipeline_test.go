package output

import "testing"

func TestFullPipeline(t *testing.T) {
	p := NewPipeline().
		WithFields(FieldSelectorFromPreset(PresetMinimal)).
		WithCompact(CompactAll())

	value := map[string]any{
		"pid":                 float64(123),
		"classification":      "abandoned",
		"confidence":          0.8,
		"recommended_action":  "kill",
	}

	out := p.Process(value)
	if out.OutputString == "" {
		t.Fatal("expected non-empty serialized output")
	}
	if out.TokenCount <= 0 {
		t.Error("expected positive token count")
	}

	m, ok := out.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out.Value)
	}
	if _, ok := m["confidence"]; ok {
		t.Error("minimal preset should drop confidence")
	}
	if m["c"] != "A" {
		t.Errorf("expected compact classification A, got %v", m["c"])
	}
}

func TestPipelineTruncatesLargeArrays(t *testing.T) {
	arr := make([]any, 500)
	for i := range arr {
		arr[i] = map[string]any{"pid": float64(i), "classification": "useful"}
	}
	p := NewPipeline().WithMaxTokens(40)
	out := p.Process(map[string]any{"candidates": arr})
	if !out.Truncated {
		t.Fatal("expected large array to be truncated")
	}
	if out.ContinuationToken == "" {
		t.Error("expected a continuation token on truncation")
	}
	if out.RemainingCount <= 0 {
		t.Error("expected remaining count > 0")
	}
}

func TestPipelineNoTruncationWithoutBudget(t *testing.T) {
	p := NewPipeline()
	out := p.Process(map[string]any{"pid": float64(1)})
	if out.Truncated {
		t.Error("pipeline without a token budget should never truncate")
	}
}
