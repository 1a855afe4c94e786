// Package storage provides a bbolt-backed store for session metadata, fleet
// coordinator snapshots, escalation manager state, and the
// snapshot/plan/apply/verify artifacts a multi-step agent workflow hands
// between separate process invocations. Artifacts are kept only long enough
// to drive that handoff; they are not a long-term record of past decisions
// and callers should not rely on them outliving the session that produced
// them.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath is the default bbolt file location.
	DefaultDBPath = "/var/lib/pttriage/pttriage.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	bucketSessions         = "sessions"
	bucketSessionLifecycle = "session_lifecycle"
	bucketFleet            = "fleet"
	bucketEscalation       = "escalation"
	bucketArtifacts        = "agent_artifacts"
	bucketMeta             = "meta"
)

// Session is the persisted record of one triage session: a single scan or a
// bounded sequence of scans against the same host, bracketed by a start and
// (once finished) an end time.
type Session struct {
	ID          string     `json:"id"`
	Host        string     `json:"host"`
	State       string     `json:"state,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	ScanCount   int        `json:"scan_count"`
	ActionCount int        `json:"action_count"`
	Notes       string     `json:"notes,omitempty"`
}

// DB wraps a bbolt instance with typed accessors.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path, initialising all
// required buckets and verifying the schema version.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketSessions, bucketSessionLifecycle, bucketFleet, bucketEscalation, bucketArtifacts, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf("schema version mismatch: database has %q, agent requires %q",
				string(v), SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying bbolt file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Sessions ──────────────────────────────────────────────────────────────

// PutSession writes or updates a session record keyed by its ID.
func (d *DB) PutSession(s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("PutSession marshal: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).Put([]byte(s.ID), data)
	})
}

// GetSession retrieves a session by ID. Returns (nil, nil) if not found.
func (d *DB) GetSession(id string) (*Session, error) {
	var s Session
	found := false
	err := d.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketSessions)).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &s)
	})
	if err != nil {
		return nil, fmt.Errorf("GetSession(%q): %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return &s, nil
}

// ListSessions returns every session, ordered by bbolt's key order.
func (d *DB) ListSessions() ([]Session, error) {
	var sessions []Session
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessions)).ForEach(func(_, v []byte) error {
			var s Session
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			sessions = append(sessions, s)
			return nil
		})
	})
	return sessions, err
}

// PutSessionLifecycle persists the opaque TTL/extend/agent-metadata envelope
// for a session, keyed by session ID, separately from the Session summary
// record so session listing never has to decode it.
func (d *DB) PutSessionLifecycle(sessionID string, data []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSessionLifecycle)).Put([]byte(sessionID), data)
	})
}

// GetSessionLifecycle retrieves a session's lifecycle envelope. Returns
// (nil, nil) if absent.
func (d *DB) GetSessionLifecycle(sessionID string) ([]byte, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketSessionLifecycle)).Get([]byte(sessionID)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

// ─── Fleet and escalation snapshots ─────────────────────────────────────────

// PutFleetSnapshot persists an opaque fleet-coordinator snapshot (the FDR
// budget state and correlator observations) keyed by node ID, so a restarted
// agent can resume its spend accounting rather than reopening its full alpha.
func (d *DB) PutFleetSnapshot(nodeID string, data []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketFleet)).Put([]byte(nodeID), data)
	})
}

// GetFleetSnapshot retrieves a fleet snapshot. Returns (nil, nil) if absent.
func (d *DB) GetFleetSnapshot(nodeID string) ([]byte, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketFleet)).Get([]byte(nodeID)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

// PutEscalationState persists the escalation manager's PersistedState()
// output keyed by node ID.
func (d *DB) PutEscalationState(nodeID string, data []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketEscalation)).Put([]byte(nodeID), data)
	})
}

// GetEscalationState retrieves the escalation manager state for FromPersisted.
// Returns (nil, nil) if absent.
func (d *DB) GetEscalationState(nodeID string) ([]byte, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketEscalation)).Get([]byte(nodeID)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}

// ─── Agent workflow artifacts ────────────────────────────────────────────

// artifactKey joins a session ID and artifact kind ("snapshot", "plan",
// "apply", "verify") into the bucket key, so each step of the
// snapshot/plan/apply/verify workflow can be persisted and re-read by a
// later, separate CLI invocation against the same session.
func artifactKey(sessionID, kind string) []byte {
	return []byte(sessionID + ":" + kind)
}

// PutArtifact persists an opaque workflow artifact (JSON-encoded by the
// caller) keyed by session ID and kind.
func (d *DB) PutArtifact(sessionID, kind string, data []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketArtifacts)).Put(artifactKey(sessionID, kind), data)
	})
}

// GetArtifact retrieves a workflow artifact. Returns (nil, nil) if absent.
func (d *DB) GetArtifact(sessionID, kind string) ([]byte, error) {
	var data []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(bucketArtifacts)).Get(artifactKey(sessionID, kind)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	return data, err
}
