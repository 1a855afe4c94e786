package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetSession(t *testing.T) {
	db := openTestDB(t)
	s := Session{ID: "sess-1", Host: "web-07", StartedAt: time.Now().UTC(), ScanCount: 3}

	if err := db.PutSession(s); err != nil {
		t.Fatalf("PutSession: %v", err)
	}
	got, err := db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.Host != "web-07" || got.ScanCount != 3 {
		t.Fatalf("GetSession = %+v, want Host=web-07 ScanCount=3", got)
	}
}

func TestGetSessionMissing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got != nil {
		t.Errorf("GetSession(missing) = %+v, want nil", got)
	}
}

func TestListSessions(t *testing.T) {
	db := openTestDB(t)
	db.PutSession(Session{ID: "a", Host: "h1"})
	db.PutSession(Session{ID: "b", Host: "h2"})

	sessions, err := db.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
}

func TestFleetSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.PutFleetSnapshot("node-a", []byte(`{"spent":1.2}`)); err != nil {
		t.Fatalf("PutFleetSnapshot: %v", err)
	}
	data, err := db.GetFleetSnapshot("node-a")
	if err != nil {
		t.Fatalf("GetFleetSnapshot: %v", err)
	}
	if string(data) != `{"spent":1.2}` {
		t.Errorf("GetFleetSnapshot = %s, want raw JSON roundtrip", data)
	}
}

func TestSessionLifecycleRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.PutSessionLifecycle("sess-1", []byte(`{"extend_count":2}`)); err != nil {
		t.Fatalf("PutSessionLifecycle: %v", err)
	}
	data, err := db.GetSessionLifecycle("sess-1")
	if err != nil {
		t.Fatalf("GetSessionLifecycle: %v", err)
	}
	if string(data) != `{"extend_count":2}` {
		t.Errorf("GetSessionLifecycle = %s, want raw JSON roundtrip", data)
	}
}

func TestSessionLifecycleMissing(t *testing.T) {
	db := openTestDB(t)
	data, err := db.GetSessionLifecycle("nope")
	if err != nil {
		t.Fatalf("GetSessionLifecycle: %v", err)
	}
	if data != nil {
		t.Errorf("GetSessionLifecycle(missing) = %v, want nil", data)
	}
}

func TestEscalationStateMissing(t *testing.T) {
	db := openTestDB(t)
	data, err := db.GetEscalationState("node-a")
	if err != nil {
		t.Fatalf("GetEscalationState: %v", err)
	}
	if data != nil {
		t.Errorf("GetEscalationState(missing) = %v, want nil", data)
	}
}

func TestPutGetArtifactRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.PutArtifact("sess-1", "snapshot", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	got, err := db.GetArtifact("sess-1", "snapshot")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("GetArtifact = %s, want {\"a\":1}", got)
	}
}

func TestGetArtifactMissing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetArtifact("sess-missing", "plan")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing artifact, got %v", got)
	}
}

func TestArtifactKindsAreIndependent(t *testing.T) {
	db := openTestDB(t)
	if err := db.PutArtifact("sess-1", "plan", []byte("plan-data")); err != nil {
		t.Fatalf("PutArtifact plan: %v", err)
	}
	if err := db.PutArtifact("sess-1", "apply", []byte("apply-data")); err != nil {
		t.Fatalf("PutArtifact apply: %v", err)
	}
	plan, _ := db.GetArtifact("sess-1", "plan")
	apply, _ := db.GetArtifact("sess-1", "apply")
	if string(plan) != "plan-data" || string(apply) != "apply-data" {
		t.Fatalf("artifact kinds collided: plan=%s apply=%s", plan, apply)
	}
}
