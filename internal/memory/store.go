// Package memory provides long-term fact storage for the companion.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fact is one remembered statement about the user.
type Fact struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content"`
	Source         string    `json:"source"` // "conversation" or "note"
	CreatedAt      time.Time `json:"created_at"`
}

// Fact sources.
const (
	SourceConversation = "conversation"
	SourceNote         = "note"
)

// Store is the retrieval/persistence surface the reasoner uses.
// The reasoner decides when to call it; the store never decides policy.
type Store interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Fact, error)
	Persist(ctx context.Context, f Fact) error
}

const schema = `
CREATE TABLE IF NOT EXISTS facts (
	id TEXT PRIMARY KEY,
	conversation_id TEXT DEFAULT '',
	content TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'conversation',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_facts_source ON facts(source);
CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at);
`

// FactStore is a sqlite-backed Store with keyword retrieval.
type FactStore struct {
	db *sql.DB
}

// NewFactStore opens (or creates) the fact database at dbPath.
func NewFactStore(dbPath string) (*FactStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply memory schema: %w", err)
	}
	// Best-effort migration for dbs created before conversation scoping.
	_, _ = db.Exec(`ALTER TABLE facts ADD COLUMN conversation_id TEXT DEFAULT ''`)
	return &FactStore{db: db}, nil
}

// Close closes the underlying database.
func (s *FactStore) Close() error { return s.db.Close() }

// Persist stores a fact. Missing IDs and timestamps are filled in.
func (s *FactStore) Persist(ctx context.Context, f Fact) error {
	if strings.TrimSpace(f.Content) == "" {
		return fmt.Errorf("fact content is empty")
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Source == "" {
		f.Source = SourceConversation
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (id, conversation_id, content, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.ConversationID, f.Content, f.Source, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("persist fact: %w", err)
	}
	return nil
}

// Retrieve returns facts whose content matches any keyword of the query,
// most recent first. An empty query returns the most recent facts.
func (s *FactStore) Retrieve(ctx context.Context, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = 5
	}

	var (
		where string
		args  []any
	)
	for _, tok := range tokenize(query) {
		if where != "" {
			where += " OR "
		}
		where += "content LIKE ?"
		args = append(args, "%"+tok+"%")
	}
	q := `SELECT id, COALESCE(conversation_id, ''), content, source, created_at FROM facts`
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieve facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.Content, &f.Source, &f.CreatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// AddNote persists a note-sourced fact. Satisfies tools.NoteStore.
func (s *FactStore) AddNote(ctx context.Context, content string) error {
	return s.Persist(ctx, Fact{Content: content, Source: SourceNote})
}

// ClearNotes deletes all note-sourced facts and reports how many.
// Satisfies tools.NoteStore.
func (s *FactStore) ClearNotes(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE source = ?`, SourceNote)
	if err != nil {
		return 0, fmt.Errorf("clear notes: %w", err)
	}
	return res.RowsAffected()
}

// tokenize splits a query into match keywords. ASCII words are split on
// whitespace; CJK runs are additionally split into bigrams so that
// untokenized Chinese text still matches.
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	var out []string
	for _, f := range fields {
		runes := []rune(f)
		cjk := allCJK(runes)
		if cjk && len(runes) > 2 {
			for i := 0; i+1 < len(runes); i++ {
				out = append(out, string(runes[i:i+2]))
			}
			continue
		}
		if len(runes) >= 2 {
			out = append(out, f)
		}
	}
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}

func allCJK(runes []rune) bool {
	if len(runes) == 0 {
		return false
	}
	for _, r := range runes {
		if r < 0x4E00 || r > 0x9FFF {
			return false
		}
	}
	return true
}
