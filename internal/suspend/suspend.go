// Package suspend implements the human-in-the-loop suspension protocol.
//
// A suspension is plain persisted data, not a blocked goroutine: the
// process can restart between the request and the human's answer and
// the resume still works. Expiry is driven by the caller's clock via
// ExpireDue; the package runs no timers of its own.
package suspend

import (
	"errors"
	"time"
)

// Suspension states.
const (
	StateRequested     = "requested"
	StateAwaitingHuman = "awaiting_human"
	StateApproved      = "approved"
	StateRejected      = "rejected"
	StateExpired       = "expired"
	StateClosed        = "closed"
)

// ErrStaleResume is returned when a resume references a request that is
// unknown, already resolved, or already closed.
var ErrStaleResume = errors.New("suspension request is no longer pending")

// ErrPendingExists is returned when a conversation already holds an
// unresolved suspension. One pending step per conversation.
var ErrPendingExists = errors.New("conversation already has a pending step")

// Request is a persisted pending step awaiting a human decision.
// OriginStep plus Arguments are the full continuation: resuming rebuilds
// everything else from the conversation history.
type Request struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	ExecutionID    string         `json:"execution_id"`
	OriginStep     string         `json:"origin_step"`
	Tool           string         `json:"tool"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	Reason         string         `json:"reason"`
	TTL            time.Duration  `json:"ttl"`
	Status         string         `json:"status"`
	Answer         map[string]any `json:"answer,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty"`
}

// ExpiresAt returns the deadline for the human response.
func (r *Request) ExpiresAt() time.Time {
	return r.CreatedAt.Add(r.TTL)
}

// pendingStates are the states a resume can still act on.
func isPending(status string) bool {
	return status == StateRequested || status == StateAwaitingHuman
}
