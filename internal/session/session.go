// Package session provides conversation state management.
package session

import (
	"sync"
	"time"

	"github.com/daijinru/wenko/internal/emotion"
)

// Turn represents one message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Conversation is the working state for one dialogue. History is
// append-only; turns are never rewritten after the fact.
type Conversation struct {
	ID             string         `json:"id"`
	Turns          []Turn         `json:"turns"`
	WorkingContext map[string]any `json:"working_context,omitempty"`
	PendingStepID  string         `json:"pending_step_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	// signals is the bounded emotional trail. It stays in memory only:
	// tone is transient context, not a durable record about the user.
	signals []emotion.Signal
	mu      sync.RWMutex
}

// NewConversation creates a new conversation with the given ID.
func NewConversation(id string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:             id,
		Turns:          []Turn{},
		WorkingContext: map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AddTurn appends a turn to the conversation.
func (c *Conversation) AddTurn(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Turns = append(c.Turns, Turn{Role: role, Content: content, Timestamp: time.Now()})
	c.UpdatedAt = time.Now()
}

// History returns up to maxTurns of the most recent turns.
func (c *Conversation) History(maxTurns int) []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Turns) <= maxTurns {
		result := make([]Turn, len(c.Turns))
		copy(result, c.Turns)
		return result
	}
	result := make([]Turn, maxTurns)
	copy(result, c.Turns[len(c.Turns)-maxTurns:])
	return result
}

// PushSignal appends a tone signal, keeping at most limit entries.
func (c *Conversation) PushSignal(sig emotion.Signal, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, sig)
	if limit > 0 && len(c.signals) > limit {
		c.signals = c.signals[len(c.signals)-limit:]
	}
}

// LatestSignal returns the most recent tone signal.
func (c *Conversation) LatestSignal() emotion.Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.signals) == 0 {
		return emotion.Signal{}
	}
	return c.signals[len(c.signals)-1]
}

// SignalCount returns how many signals are currently retained.
func (c *Conversation) SignalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.signals)
}

// SetPending marks the conversation as suspended on a pending step.
func (c *Conversation) SetPending(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PendingStepID = requestID
	c.UpdatedAt = time.Now()
}

// ClearPending removes the pending-step marker.
func (c *Conversation) ClearPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PendingStepID = ""
	c.UpdatedAt = time.Now()
}

// Pending returns the current pending-step ID, empty when none.
func (c *Conversation) Pending() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.PendingStepID
}

// SetContext sets a working-context value.
func (c *Conversation) SetContext(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WorkingContext == nil {
		c.WorkingContext = map[string]any{}
	}
	c.WorkingContext[key] = value
	c.UpdatedAt = time.Now()
}

// GetContext returns a working-context value.
func (c *Conversation) GetContext(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.WorkingContext == nil {
		return nil, false
	}
	v, ok := c.WorkingContext[key]
	return v, ok
}
