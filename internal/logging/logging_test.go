package logging

import "testing"

func TestNewBuildsProductionJSONLogger(t *testing.T) {
	log, err := New("info", "json")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNewBuildsConsoleLogger(t *testing.T) {
	log, err := New("debug", "console")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	if _, err := New("not-a-level", "json"); err == nil {
		t.Error("expected an error for an invalid log level")
	}
}
