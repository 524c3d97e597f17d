package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Manager manages conversation persistence as JSONL files: a metadata
// line first, then one line per turn.
type Manager struct {
	dir   string
	cache map[string]*Conversation
	mu    sync.RWMutex
}

// NewManager creates a conversation manager rooted at dir.
func NewManager(dir string) *Manager {
	os.MkdirAll(dir, 0755)
	return &Manager{
		dir:   dir,
		cache: make(map[string]*Conversation),
	}
}

// GetOrCreate returns an existing conversation or creates a new one.
func (m *Manager) GetOrCreate(id string) *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok := m.cache[id]; ok {
		return conv
	}
	conv := m.load(id)
	if conv == nil {
		conv = NewConversation(id)
	}
	m.cache[id] = conv
	return conv
}

// Save persists a conversation to disk.
func (m *Manager) Save(conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.path(conv.ID)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create conversation file: %w", err)
	}
	defer file.Close()

	conv.mu.RLock()
	defer conv.mu.RUnlock()

	meta := map[string]any{
		"_type":           "metadata",
		"created_at":      conv.CreatedAt.Format(time.RFC3339),
		"updated_at":      conv.UpdatedAt.Format(time.RFC3339),
		"working_context": conv.WorkingContext,
		"pending_step_id": conv.PendingStepID,
	}
	metaLine, _ := json.Marshal(meta)
	file.WriteString(string(metaLine) + "\n")

	for _, turn := range conv.Turns {
		line, _ := json.Marshal(turn)
		file.WriteString(string(line) + "\n")
	}

	m.cache[conv.ID] = conv
	return nil
}

// Delete removes a conversation from cache and disk.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, id)
	return os.Remove(m.path(id)) == nil
}

// List returns the IDs of all persisted conversations.
func (m *Manager) List() []string {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	return ids
}

func (m *Manager) load(id string) *Conversation {
	file, err := os.Open(m.path(id))
	if err != nil {
		return nil
	}
	defer file.Close()

	conv := NewConversation(id)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var meta struct {
				Type           string         `json:"_type"`
				CreatedAt      string         `json:"created_at"`
				UpdatedAt      string         `json:"updated_at"`
				WorkingContext map[string]any `json:"working_context"`
				PendingStepID  string         `json:"pending_step_id"`
			}
			if err := json.Unmarshal(line, &meta); err == nil && meta.Type == "metadata" {
				if ts, err := time.Parse(time.RFC3339, meta.CreatedAt); err == nil {
					conv.CreatedAt = ts
				}
				if ts, err := time.Parse(time.RFC3339, meta.UpdatedAt); err == nil {
					conv.UpdatedAt = ts
				}
				if meta.WorkingContext != nil {
					conv.WorkingContext = meta.WorkingContext
				}
				conv.PendingStepID = meta.PendingStepID
				continue
			}
			// Not a metadata line; fall through and parse it as a turn.
		}
		var turn Turn
		if err := json.Unmarshal(line, &turn); err == nil && turn.Role != "" {
			conv.Turns = append(conv.Turns, turn)
		}
	}
	return conv
}

// path sanitizes the conversation ID into a safe file name.
func (m *Manager) path(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
	return filepath.Join(m.dir, safe+".jsonl")
}
