package suspend

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_steps (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	execution_id TEXT NOT NULL DEFAULT '',
	origin_step TEXT NOT NULL DEFAULT '',
	tool TEXT NOT NULL DEFAULT '',
	arguments TEXT NOT NULL DEFAULT '{}',
	reason TEXT NOT NULL DEFAULT '',
	ttl_seconds INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'requested',
	answer TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	responded_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_pending_conversation ON pending_steps(conversation_id, status);
CREATE INDEX IF NOT EXISTS idx_pending_status ON pending_steps(status);
`

// Store persists pending steps in sqlite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the suspension database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open suspend db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply suspend schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) insert(req *Request) error {
	args, _ := json.Marshal(req.Arguments)
	_, err := s.db.Exec(`INSERT INTO pending_steps
		(id, conversation_id, execution_id, origin_step, tool, arguments, reason, ttl_seconds, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.ConversationID, req.ExecutionID, req.OriginStep, req.Tool,
		string(args), req.Reason, int64(req.TTL.Seconds()), req.Status, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pending step: %w", err)
	}
	return nil
}

func (s *Store) get(id string) (*Request, error) {
	row := s.db.QueryRow(`SELECT id, conversation_id, execution_id, origin_step, tool, arguments,
		reason, ttl_seconds, status, answer, created_at, responded_at
		FROM pending_steps WHERE id = ?`, id)
	return scanRequest(row)
}

func (s *Store) pendingForConversation(conversationID string) (*Request, error) {
	row := s.db.QueryRow(`SELECT id, conversation_id, execution_id, origin_step, tool, arguments,
		reason, ttl_seconds, status, answer, created_at, responded_at
		FROM pending_steps WHERE conversation_id = ? AND status IN (?, ?) LIMIT 1`,
		conversationID, StateRequested, StateAwaitingHuman)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func (s *Store) setStatus(id, status string, answer map[string]any, respondedAt time.Time) error {
	ans, _ := json.Marshal(answer)
	res, err := s.db.Exec(`UPDATE pending_steps SET status = ?, answer = ?, responded_at = ? WHERE id = ?`,
		status, string(ans), respondedAt, id)
	if err != nil {
		return fmt.Errorf("update pending step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending step %s not found", id)
	}
	return nil
}

func (s *Store) listPendingDue(now time.Time) ([]*Request, error) {
	rows, err := s.db.Query(`SELECT id, conversation_id, execution_id, origin_step, tool, arguments,
		reason, ttl_seconds, status, answer, created_at, responded_at
		FROM pending_steps WHERE status IN (?, ?)`, StateRequested, StateAwaitingHuman)
	if err != nil {
		return nil, fmt.Errorf("list pending steps: %w", err)
	}
	defer rows.Close()

	var due []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		if !now.Before(req.ExpiresAt()) {
			due = append(due, req)
		}
	}
	return due, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (*Request, error) {
	var (
		req         Request
		args, ans   string
		ttlSeconds  int64
		respondedAt sql.NullTime
	)
	err := row.Scan(&req.ID, &req.ConversationID, &req.ExecutionID, &req.OriginStep, &req.Tool,
		&args, &req.Reason, &ttlSeconds, &req.Status, &ans, &req.CreatedAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	req.TTL = time.Duration(ttlSeconds) * time.Second
	if args != "" && args != "{}" && args != "null" {
		_ = json.Unmarshal([]byte(args), &req.Arguments)
	}
	if ans != "" && ans != "{}" && ans != "null" {
		_ = json.Unmarshal([]byte(ans), &req.Answer)
	}
	if respondedAt.Valid {
		req.RespondedAt = &respondedAt.Time
	}
	return &req, nil
}
