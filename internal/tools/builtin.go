package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NoteStore is the persistence surface the note tools write through.
// memory.FactStore satisfies it.
type NoteStore interface {
	AddNote(ctx context.Context, content string) error
	ClearNotes(ctx context.Context) (int64, error)
}

// LocalTimeTool reports the current local time. Tier 0.
type LocalTimeTool struct{}

func NewLocalTimeTool() *LocalTimeTool { return &LocalTimeTool{} }

func (t *LocalTimeTool) Name() string { return "local_time" }

func (t *LocalTimeTool) Description() string {
	return "Get the current date and time, optionally in a specific IANA timezone."
}

func (t *LocalTimeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name, e.g. Asia/Shanghai. Defaults to local.",
			},
		},
	}
}

func (t *LocalTimeTool) Tier() int { return TierReadOnly }

func (t *LocalTimeTool) TriggerKeywords() []string {
	return []string{"what time", "current time", "几点", "现在时间"}
}

func (t *LocalTimeTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	now := time.Now()
	if tz := strings.TrimSpace(GetString(params, "timezone", "")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", tz)
		}
		now = now.In(loc)
	}
	return now.Format("Monday, 2006-01-02 15:04:05 MST"), nil
}

// NoteTool appends a note to the companion's memory. Tier 1.
type NoteTool struct {
	store NoteStore
}

func NewNoteTool(store NoteStore) *NoteTool { return &NoteTool{store: store} }

func (t *NoteTool) Name() string { return "note_to_self" }

func (t *NoteTool) Description() string {
	return "Save a short note for later. Use when the user asks to remember or jot something down."
}

func (t *NoteTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{
				"type":        "string",
				"description": "The note text to save.",
			},
		},
		"required": []string{"content"},
	}
}

func (t *NoteTool) Tier() int { return TierWrite }

func (t *NoteTool) TriggerKeywords() []string {
	return []string{"note to self", "jot down", "记一下", "帮我记"}
}

func (t *NoteTool) Available() error {
	if t.store == nil {
		return fmt.Errorf("note store not configured")
	}
	return nil
}

func (t *NoteTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	content := strings.TrimSpace(GetString(params, "content", ""))
	if content == "" {
		return "", fmt.Errorf("note content is empty")
	}
	if err := t.store.AddNote(ctx, content); err != nil {
		return "", fmt.Errorf("save note: %w", err)
	}
	return "Note saved.", nil
}

// ClearNotesTool deletes every saved note. Tier 2: destructive, so the
// policy engine routes it through human approval.
type ClearNotesTool struct {
	store NoteStore
}

func NewClearNotesTool(store NoteStore) *ClearNotesTool { return &ClearNotesTool{store: store} }

func (t *ClearNotesTool) Name() string { return "clear_notes" }

func (t *ClearNotesTool) Description() string {
	return "Permanently delete ALL saved notes. This cannot be undone."
}

func (t *ClearNotesTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *ClearNotesTool) Tier() int { return TierHighRisk }

func (t *ClearNotesTool) TriggerKeywords() []string {
	return []string{"clear my notes", "delete all notes", "清空笔记"}
}

func (t *ClearNotesTool) Available() error {
	if t.store == nil {
		return fmt.Errorf("note store not configured")
	}
	return nil
}

func (t *ClearNotesTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	n, err := t.store.ClearNotes(ctx)
	if err != nil {
		return "", fmt.Errorf("clear notes: %w", err)
	}
	return fmt.Sprintf("Deleted %d notes.", n), nil
}
