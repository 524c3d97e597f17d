package timeline

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const Schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	execution_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	action_summary TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	trigger_kind TEXT NOT NULL DEFAULT '',
	is_terminal BOOLEAN NOT NULL DEFAULT 0,
	is_resumable BOOLEAN NOT NULL DEFAULT 0,
	has_side_effects BOOLEAN NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_execution ON transitions(execution_id);
CREATE INDEX IF NOT EXISTS idx_transitions_conversation ON transitions(conversation_id);
CREATE INDEX IF NOT EXISTS idx_transitions_timestamp ON transitions(timestamp);
`

// Service is the sqlite-backed transition store. Inserts only; the
// table carries no update path because history is immutable.
type Service struct {
	db *sql.DB
}

// NewService opens (or creates) the timeline database at dbPath.
func NewService(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply timeline schema: %w", err)
	}
	return &Service{db: db}, nil
}

// Close closes the underlying database.
func (s *Service) Close() error { return s.db.Close() }

// Append validates and stores a transition record. It refuses records
// that would extend a finished execution or skip the current status.
func (s *Service) Append(rec TransitionRecord) (int64, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Terminal = IsTerminal(rec.ToStatus)
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	latest, err := s.Snapshot(rec.ExecutionID)
	if err != nil {
		return 0, err
	}
	if latest != nil {
		if latest.Terminal {
			return 0, fmt.Errorf("execution %s already terminal (%s)", rec.ExecutionID, latest.ToStatus)
		}
		if latest.ToStatus != rec.FromStatus {
			return 0, fmt.Errorf("execution %s is %s, transition claims %s", rec.ExecutionID, latest.ToStatus, rec.FromStatus)
		}
	} else if rec.FromStatus != StatusPending {
		return 0, fmt.Errorf("first transition for %s must start from pending", rec.ExecutionID)
	}

	res, err := s.db.Exec(`INSERT INTO transitions
		(execution_id, conversation_id, action_summary, from_status, to_status, trigger_kind, is_terminal, is_resumable, has_side_effects, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.ConversationID, rec.ActionSummary, rec.FromStatus, rec.ToStatus,
		rec.Trigger, rec.Terminal, rec.Resumable, rec.SideEffects, rec.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("append transition: %w", err)
	}
	return res.LastInsertId()
}

// Snapshot returns the latest transition for an execution, or nil when
// the execution has no history yet.
func (s *Service) Snapshot(executionID string) (*TransitionRecord, error) {
	row := s.db.QueryRow(`SELECT id, execution_id, conversation_id, action_summary, from_status, to_status,
		trigger_kind, is_terminal, is_resumable, has_side_effects, timestamp
		FROM transitions WHERE execution_id = ? ORDER BY id DESC LIMIT 1`, executionID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// Timeline returns every transition for a conversation in insertion
// order. An empty conversation ID returns the full timeline.
func (s *Service) Timeline(conversationID string) ([]TransitionRecord, error) {
	q := `SELECT id, execution_id, conversation_id, action_summary, from_status, to_status,
		trigger_kind, is_terminal, is_resumable, has_side_effects, timestamp FROM transitions`
	var args []any
	if conversationID != "" {
		q += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	q += ` ORDER BY id ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// History returns every transition for a single execution in order.
func (s *Service) History(executionID string) ([]TransitionRecord, error) {
	rows, err := s.db.Query(`SELECT id, execution_id, conversation_id, action_summary, from_status, to_status,
		trigger_kind, is_terminal, is_resumable, has_side_effects, timestamp
		FROM transitions WHERE execution_id = ? ORDER BY id ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*TransitionRecord, error) {
	var rec TransitionRecord
	err := row.Scan(&rec.ID, &rec.ExecutionID, &rec.ConversationID, &rec.ActionSummary,
		&rec.FromStatus, &rec.ToStatus, &rec.Trigger, &rec.Terminal, &rec.Resumable,
		&rec.SideEffects, &rec.Timestamp)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
