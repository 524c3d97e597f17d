package suspend

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager runs the suspension state machine over the store:
// requested -> awaiting_human -> approved|rejected|expired -> closed.
type Manager struct {
	mu     sync.Mutex
	store  *Store
	logger *slog.Logger
}

// NewManager creates a suspension manager.
func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// Create registers a new pending step. The request gets an ID and
// timestamps; a conversation with an unresolved step is refused.
func (m *Manager) Create(req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.pendingForConversation(req.ConversationID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrPendingExists, existing.ID)
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.Status = StateRequested
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if err := m.store.insert(req); err != nil {
		return err
	}
	m.logger.Info("Suspension created", "request", req.ID, "conversation", req.ConversationID, "tool", req.Tool)
	return nil
}

// MarkAwaiting records that the request has been surfaced to the human
// channel.
func (m *Manager) MarkAwaiting(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.store.get(id)
	if err != nil {
		return staleIfMissing(err)
	}
	if req.Status != StateRequested {
		return fmt.Errorf("%w: status %s", ErrStaleResume, req.Status)
	}
	return m.store.setStatus(id, StateAwaitingHuman, nil, time.Time{})
}

// Get returns a request by ID.
func (m *Manager) Get(id string) (*Request, error) {
	req, err := m.store.get(id)
	if err != nil {
		return nil, staleIfMissing(err)
	}
	return req, nil
}

// Pending returns the unresolved request for a conversation, if any.
func (m *Manager) Pending(conversationID string) (*Request, error) {
	return m.store.pendingForConversation(conversationID)
}

// Resolve applies the human decision. Resolving a request that is not
// pending (unknown, expired, already answered) yields ErrStaleResume.
func (m *Manager) Resolve(id string, approved bool, answer map[string]any) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.store.get(id)
	if err != nil {
		return nil, staleIfMissing(err)
	}
	if !isPending(req.Status) {
		return nil, fmt.Errorf("%w: status %s", ErrStaleResume, req.Status)
	}

	status := StateRejected
	if approved {
		status = StateApproved
	}
	now := time.Now()
	if err := m.store.setStatus(id, status, answer, now); err != nil {
		return nil, err
	}
	req.Status = status
	req.Answer = answer
	req.RespondedAt = &now
	m.logger.Info("Suspension resolved", "request", id, "approved", approved)
	return req, nil
}

// Close moves a resolved request to its final closed state after the
// orchestrator has folded the outcome back into the conversation.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, err := m.store.get(id)
	if err != nil {
		return staleIfMissing(err)
	}
	switch req.Status {
	case StateApproved, StateRejected, StateExpired:
		return m.store.setStatus(id, StateClosed, req.Answer, time.Now())
	default:
		return fmt.Errorf("cannot close request %s in status %s", id, req.Status)
	}
}

// ExpireDue marks every pending request whose TTL has elapsed at the
// given instant as expired and returns them. The caller owns the clock;
// nothing here schedules itself.
func (m *Manager) ExpireDue(now time.Time) ([]*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due, err := m.store.listPendingDue(now)
	if err != nil {
		return nil, err
	}
	var expired []*Request
	for _, req := range due {
		if err := m.store.setStatus(req.ID, StateExpired, nil, now); err != nil {
			m.logger.Warn("Failed to expire suspension", "request", req.ID, "error", err)
			continue
		}
		req.Status = StateExpired
		expired = append(expired, req)
		m.logger.Info("Suspension expired", "request", req.ID, "conversation", req.ConversationID)
	}
	return expired, nil
}

func staleIfMissing(err error) error {
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: unknown request", ErrStaleResume)
	}
	return err
}
