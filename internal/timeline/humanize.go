package timeline

import "fmt"

// Narrative is the human-facing rendering of one transition record.
type Narrative struct {
	Action         string `json:"action"`
	PreviousState  string `json:"previous_state"`
	CurrentState   string `json:"current_state"`
	Summary        string `json:"summary"`
	Finished       bool   `json:"is_finished"`
	NeedsAttention bool   `json:"needs_attention"`
	Irreversible   bool   `json:"is_irreversible"`
}

// statusLabels is the complete status vocabulary shown to users. New
// statuses must be added here; Humanize never invents phrasing.
var statusLabels = map[string]string{
	StatusPending:   "waiting",
	StatusRunning:   "in progress",
	StatusCompleted: "finished",
	StatusFailed:    "ran into a problem",
	StatusCancelled: "stopped",
	StatusRejected:  "declined",
}

func label(status string) string {
	if l, ok := statusLabels[status]; ok {
		return l
	}
	return status
}

// Humanize maps a transition record onto the static label table. It is
// a pure function: same record in, same narrative out, no clock, no
// I/O, no model calls.
func Humanize(rec TransitionRecord) Narrative {
	n := Narrative{
		Action:         rec.ActionSummary,
		PreviousState:  label(rec.FromStatus),
		CurrentState:   label(rec.ToStatus),
		Finished:       rec.Terminal,
		NeedsAttention: rec.ToStatus == StatusFailed || (rec.ToStatus == StatusPending && rec.Resumable),
		Irreversible:   rec.Terminal && rec.SideEffects,
	}
	n.Summary = fmt.Sprintf("%s: %s", n.Action, n.CurrentState)
	if rec.ToStatus == StatusPending && rec.Resumable {
		n.Summary = fmt.Sprintf("%s: waiting for your go-ahead", n.Action)
	}
	if rec.ToStatus == StatusRejected && rec.Trigger == TriggerTimeout {
		n.Summary = fmt.Sprintf("%s: declined (no answer in time)", n.Action)
	}
	return n
}
