// Package timeline tracks execution state transitions for every
// orchestration node and serves timeline queries over them.
package timeline

import (
	"fmt"
	"time"
)

// Execution statuses. An execution is born pending, runs, and lands on
// exactly one terminal status. A suspended execution goes back to
// pending until a human (or the TTL) decides its fate.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

// Transition triggers recorded on transition records.
const (
	TriggerUserInput     = "user_input"
	TriggerCascade       = "cascade"
	TriggerDecision      = "decision"
	TriggerToolCall      = "tool_call"
	TriggerToolResult    = "tool_result"
	TriggerApprovalGate  = "approval_required"
	TriggerHumanResponse = "human_response"
	TriggerDenied        = "denied"
	TriggerTimeout       = "timeout"
	TriggerError         = "error"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

var allowed = map[string][]string{
	StatusPending: {StatusRunning, StatusCancelled, StatusRejected},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled, StatusRejected, StatusPending},
}

// CanTransition reports whether from → to is a legal status move.
// running → pending is the suspension edge.
func CanTransition(from, to string) bool {
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionRecord is one append-only entry in an execution's history.
// Records are immutable once written; corrections are new transitions.
type TransitionRecord struct {
	ID             int64     `json:"id"`
	ExecutionID    string    `json:"execution_id"`
	ConversationID string    `json:"conversation_id"`
	ActionSummary  string    `json:"action_summary"`
	FromStatus     string    `json:"from_status"`
	ToStatus       string    `json:"to_status"`
	Trigger        string    `json:"trigger"`
	Terminal       bool      `json:"is_terminal"`
	Resumable      bool      `json:"is_resumable"`
	SideEffects    bool      `json:"has_side_effects"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate checks internal consistency before a record is stored.
func (r *TransitionRecord) Validate() error {
	if r.ExecutionID == "" {
		return fmt.Errorf("transition record missing execution_id")
	}
	if r.ActionSummary == "" {
		return fmt.Errorf("transition record missing action_summary")
	}
	if !CanTransition(r.FromStatus, r.ToStatus) {
		return fmt.Errorf("illegal transition %s -> %s", r.FromStatus, r.ToStatus)
	}
	if r.Terminal != IsTerminal(r.ToStatus) {
		return fmt.Errorf("terminal flag disagrees with status %s", r.ToStatus)
	}
	if r.Resumable && r.Terminal {
		return fmt.Errorf("terminal transition cannot be resumable")
	}
	return nil
}
