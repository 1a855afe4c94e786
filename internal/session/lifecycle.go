// Package session manages the lifecycle of a triage session — a bounded
// scan-and-decide run against one host — on top of internal/storage, plus
// the diff and trend-comparison machinery used to compare two sessions.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/processtriage/pttriage/internal/storage"
)

// State is the lifecycle state of a session.
type State string

const (
	StateCreated   State = "created"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
	StateArchived  State = "archived"
)

func isTerminal(s State) bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed, StateArchived:
		return true
	default:
		return false
	}
}

// AgentMetadata records who created a session, for sessions driven by an
// automated agent rather than an interactive operator.
type AgentMetadata struct {
	AgentName    string            `json:"agent_name"`
	AgentVersion string            `json:"agent_version,omitempty"`
	Purpose      string            `json:"purpose,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// CreateOptions configures a new session.
type CreateOptions struct {
	Host            string
	Label           string
	ParentSessionID string
	// TTL is how long the session may run before ExpireSessions marks it
	// failed. Zero means no automatic expiry.
	TTL           time.Duration
	AgentMetadata *AgentMetadata
}

// lifecycleInfo is the envelope persisted in the session_lifecycle bucket,
// separate from storage.Session so listing sessions never pays to decode it.
type lifecycleInfo struct {
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	TTLSeconds    *int64         `json:"ttl_seconds,omitempty"`
	ExtendCount   int            `json:"extend_count"`
	AgentMetadata *AgentMetadata `json:"agent_metadata,omitempty"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	EndReason     string         `json:"end_reason,omitempty"`
	ParentID      string         `json:"parent_session_id,omitempty"`
}

// Status is the point-in-time view of a session returned to callers.
type Status struct {
	SessionID        string
	State            State
	Host             string
	CreatedAt        time.Time
	Label            string
	IsExpired        bool
	ExpiresAt        *time.Time
	RemainingSeconds *int64
	ExtendCount      int
	AgentMetadata    *AgentMetadata
}

// EndSummary is returned when a session is ended.
type EndSummary struct {
	SessionID       string
	FinalState      State
	DurationSeconds int64
	EndedAt         time.Time
	Reason          string
}

// ExpireResult is returned by ExpireSessions.
type ExpireResult struct {
	ExpiredCount    int
	ExpiredSessions []string
	Errors          []string
}

// Manager creates and tracks sessions backed by a storage.DB.
type Manager struct {
	db *storage.DB
}

// NewManager builds a Manager over an already-open storage.DB.
func NewManager(db *storage.DB) *Manager {
	return &Manager{db: db}
}

// Create starts a new session and returns its ID.
func (m *Manager) Create(opts CreateOptions) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	sess := storage.Session{
		ID:        id,
		Host:      opts.Host,
		State:     string(StateCreated),
		StartedAt: now,
		Notes:     opts.Label,
	}
	if err := m.db.PutSession(sess); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	lc := lifecycleInfo{AgentMetadata: opts.AgentMetadata, ParentID: opts.ParentSessionID}
	if opts.TTL > 0 {
		expires := now.Add(opts.TTL)
		lc.ExpiresAt = &expires
		secs := int64(opts.TTL.Seconds())
		lc.TTLSeconds = &secs
	}
	if err := m.writeLifecycle(id, lc); err != nil {
		return "", err
	}
	return id, nil
}

// Status returns the current status of a session, including TTL expiry.
func (m *Manager) Status(sessionID string) (*Status, error) {
	sess, err := m.db.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %q not found", sessionID)
	}
	lc, err := m.readLifecycle(sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var remaining *int64
	expired := false
	if lc.ExpiresAt != nil {
		r := int64(lc.ExpiresAt.Sub(now).Seconds())
		if r < 0 {
			r = 0
			expired = true
		}
		remaining = &r
	}

	return &Status{
		SessionID:        sess.ID,
		State:            State(sess.State),
		Host:             sess.Host,
		CreatedAt:        sess.StartedAt,
		Label:            sess.Notes,
		IsExpired:        expired,
		ExpiresAt:        lc.ExpiresAt,
		RemainingSeconds: remaining,
		ExtendCount:      lc.ExtendCount,
		AgentMetadata:    lc.AgentMetadata,
	}, nil
}

// Extend pushes a session's TTL out by additional, measured from the later
// of now and the current expiry. Fails if the session has already ended.
func (m *Manager) Extend(sessionID string, additional time.Duration) (time.Time, error) {
	sess, err := m.db.GetSession(sessionID)
	if err != nil {
		return time.Time{}, fmt.Errorf("extend: %w", err)
	}
	if sess == nil {
		return time.Time{}, fmt.Errorf("session %q not found", sessionID)
	}
	if isTerminal(State(sess.State)) {
		return time.Time{}, fmt.Errorf("cannot extend session in %q state", sess.State)
	}

	lc, err := m.readLifecycle(sessionID)
	if err != nil {
		return time.Time{}, err
	}

	now := time.Now().UTC()
	base := now
	if lc.ExpiresAt != nil && lc.ExpiresAt.After(now) {
		base = *lc.ExpiresAt
	}
	newExpiry := base.Add(additional)
	lc.ExpiresAt = &newExpiry
	var prevSecs int64
	if lc.TTLSeconds != nil {
		prevSecs = *lc.TTLSeconds
	}
	total := prevSecs + int64(additional.Seconds())
	lc.TTLSeconds = &total
	lc.ExtendCount++

	if err := m.writeLifecycle(sessionID, lc); err != nil {
		return time.Time{}, err
	}
	return newExpiry, nil
}

// End marks a session as completed (or leaves its existing terminal state
// alone) and records the end reason.
func (m *Manager) End(sessionID string, reason string) (*EndSummary, error) {
	sess, err := m.db.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("session %q not found", sessionID)
	}

	now := time.Now().UTC()
	final := State(sess.State)
	if !isTerminal(final) {
		final = StateCompleted
		sess.State = string(final)
		sess.EndedAt = &now
		if err := m.db.PutSession(*sess); err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
	}

	lc, err := m.readLifecycle(sessionID)
	if err != nil {
		return nil, err
	}
	lc.EndedAt = &now
	lc.EndReason = reason
	if err := m.writeLifecycle(sessionID, lc); err != nil {
		return nil, err
	}

	return &EndSummary{
		SessionID:       sess.ID,
		FinalState:      final,
		DurationSeconds: int64(now.Sub(sess.StartedAt).Seconds()),
		EndedAt:         now,
		Reason:          reason,
	}, nil
}

// ExpireSessions transitions every non-terminal session whose TTL has
// elapsed to Failed.
func (m *Manager) ExpireSessions() (*ExpireResult, error) {
	sessions, err := m.db.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("expire sessions: %w", err)
	}
	now := time.Now().UTC()
	result := &ExpireResult{}

	for _, sess := range sessions {
		if isTerminal(State(sess.State)) {
			continue
		}
		lc, err := m.readLifecycle(sess.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sess.ID, err))
			continue
		}
		if lc.ExpiresAt == nil || lc.ExpiresAt.After(now) {
			continue
		}

		sess.State = string(StateFailed)
		sess.EndedAt = &now
		if err := m.db.PutSession(sess); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sess.ID, err))
			continue
		}
		lc.EndedAt = &now
		lc.EndReason = "ttl_expired"
		if err := m.writeLifecycle(sess.ID, lc); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", sess.ID, err))
			continue
		}
		result.ExpiredCount++
		result.ExpiredSessions = append(result.ExpiredSessions, sess.ID)
	}
	return result, nil
}

func (m *Manager) writeLifecycle(sessionID string, lc lifecycleInfo) error {
	data, err := json.Marshal(lc)
	if err != nil {
		return fmt.Errorf("marshal lifecycle: %w", err)
	}
	if err := m.db.PutSessionLifecycle(sessionID, data); err != nil {
		return fmt.Errorf("write lifecycle: %w", err)
	}
	return nil
}

func (m *Manager) readLifecycle(sessionID string) (lifecycleInfo, error) {
	data, err := m.db.GetSessionLifecycle(sessionID)
	if err != nil {
		return lifecycleInfo{}, fmt.Errorf("read lifecycle: %w", err)
	}
	if data == nil {
		return lifecycleInfo{}, nil
	}
	var lc lifecycleInfo
	if err := json.Unmarshal(data, &lc); err != nil {
		return lifecycleInfo{}, fmt.Errorf("unmarshal lifecycle: %w", err)
	}
	return lc, nil
}
