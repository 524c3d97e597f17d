package orchestrator

import (
	"log/slog"

	"github.com/daijinru/wenko/internal/bus"
	"github.com/daijinru/wenko/internal/timeline"
)

// Tracker persists transition records and fans them out on the event
// bus together with their humanized narrative. A nil *Tracker is valid
// and records nothing, which keeps tests that do not care about the
// timeline free of database setup.
type Tracker struct {
	timeline *timeline.Service
	bus      *bus.EventBus
	logger   *slog.Logger
}

// NewTracker creates a tracker. bus may be nil.
func NewTracker(tl *timeline.Service, b *bus.EventBus, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{timeline: tl, bus: b, logger: logger}
}

// Record appends the transition and publishes it. Tracking failures are
// logged, never surfaced: a broken timeline must not break the turn.
func (t *Tracker) Record(rec timeline.TransitionRecord) {
	if t == nil || t.timeline == nil {
		return
	}
	id, err := t.timeline.Append(rec)
	if err != nil {
		t.logger.Warn("Failed to record transition",
			"execution", rec.ExecutionID, "to", rec.ToStatus, "error", err)
		return
	}
	rec.ID = id
	if t.bus != nil {
		t.bus.PublishTransition(&bus.TransitionEvent{
			Record:    rec,
			Narrative: timeline.Humanize(rec),
		})
	}
}
