// Package orchestrator drives one conversation turn end to end:
// normalize the input, resolve intent, reason, invoke tools, and when a
// step needs human approval, park it and pick it up again on resume.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daijinru/wenko/internal/bus"
	"github.com/daijinru/wenko/internal/config"
	"github.com/daijinru/wenko/internal/emotion"
	"github.com/daijinru/wenko/internal/input"
	"github.com/daijinru/wenko/internal/intent"
	"github.com/daijinru/wenko/internal/reason"
	"github.com/daijinru/wenko/internal/session"
	"github.com/daijinru/wenko/internal/suspend"
	"github.com/daijinru/wenko/internal/timeline"
	"github.com/daijinru/wenko/internal/tools"
)

// ErrConversationBusy is returned when a conversation is mid-step or
// waiting on an unresolved suspension.
var ErrConversationBusy = errors.New("conversation is busy")

// Outcome kinds.
const (
	OutcomeReply     = "reply"
	OutcomeSuspended = "suspended"
)

// Outcome is the result of one Step or Resume call.
type Outcome struct {
	Kind    string
	Reply   string
	Request *suspend.Request
	Intent  intent.Decision
}

// Deps collects everything an orchestrator needs. Tracker and Bus may
// be nil; everything else is required.
type Deps struct {
	Config      *config.Config
	Sessions    *session.Manager
	Cascade     *intent.Cascade
	Reasoner    *reason.Reasoner
	Invoker     *tools.Invoker
	Registry    *tools.Registry
	Suspensions *suspend.Manager
	Tracker     *Tracker
	Bus         *bus.EventBus
	Logger      *slog.Logger
}

// Orchestrator coordinates the turn pipeline. It holds no conversation
// state of its own beyond the per-conversation busy guard; everything
// durable lives in the session manager, the suspension store, and the
// timeline.
type Orchestrator struct {
	cfg      *config.Config
	sessions *session.Manager
	cascade  *intent.Cascade
	reasoner *reason.Reasoner
	invoker  *tools.Invoker
	registry *tools.Registry
	suspends *suspend.Manager
	tracker  *Tracker
	bus      *bus.EventBus
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]bool
}

// New creates an orchestrator from its dependencies.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      d.Config,
		sessions: d.Sessions,
		cascade:  d.Cascade,
		reasoner: d.Reasoner,
		invoker:  d.Invoker,
		registry: d.Registry,
		suspends: d.Suspensions,
		tracker:  d.Tracker,
		bus:      d.Bus,
		logger:   logger,
		active:   make(map[string]bool),
	}
}

// Step runs one full turn for the given raw input. A conversation that
// is already mid-step, or that holds an unresolved suspension, yields
// ErrConversationBusy without touching any state.
func (o *Orchestrator) Step(ctx context.Context, conversationID string, raw input.Raw) (*Outcome, error) {
	if err := o.acquire(conversationID); err != nil {
		return nil, err
	}
	defer o.release(conversationID)

	conv := o.sessions.GetOrCreate(conversationID)
	if pending := conv.Pending(); pending != "" {
		return nil, fmt.Errorf("%w: waiting on step %s", ErrConversationBusy, pending)
	}

	// Normalize.
	n := o.begin(conversationID, "understand input", timeline.TriggerUserInput)
	sem, err := input.Normalize(raw)
	if err != nil {
		n.fail(timeline.TriggerError)
		return nil, fmt.Errorf("normalize input: %w", err)
	}
	n.complete(timeline.TriggerUserInput, false)

	sig := emotion.Analyze(sem.Text)
	conv.PushSignal(sig, o.cfg.Emotion.HistoryLimit)

	// Intent cascade. Resolution always produces a decision, so the
	// node cannot fail.
	cn := o.begin(conversationID, "resolve intent", timeline.TriggerCascade)
	dec := o.cascade.Resolve(ctx, sem)
	cn.complete(timeline.TriggerCascade, false)
	o.logger.Info("Intent resolved",
		"conversation", conversationID, "intent", dec.Intent, "layer", dec.Layer, "confidence", dec.Confidence)

	conv.AddTurn("user", sem.Text)

	rn := o.begin(conversationID, "decide how to respond", timeline.TriggerCascade)
	act, msgs, err := o.reasoner.Decide(ctx, conv, sem, dec, sig)
	if err != nil {
		rn.fail(timeline.TriggerError)
		o.failTurn(conv)
		return nil, err
	}

	for iter := 0; ; iter++ {
		if iter >= o.maxIterations() {
			rn.complete(timeline.TriggerDecision, false)
			return o.finishReply(conv, dec, "I couldn't finish that after several attempts. Want me to try a different way?")
		}

		switch act.Kind {
		case reason.KindReply:
			rn.complete(timeline.TriggerDecision, false)
			return o.finishReply(conv, dec, act.ReplyText)

		case reason.KindInvoke:
			rn.complete(timeline.TriggerDecision, false)
			outcome := o.runTool(ctx, conversationID, act.Tool, act.Args, act.Tier)

			rn = o.begin(conversationID, "decide how to respond", timeline.TriggerToolResult)
			act, msgs, err = o.reasoner.Continue(ctx, msgs, act, outcome, conv)
			if err != nil {
				rn.fail(timeline.TriggerError)
				o.failTurn(conv)
				return nil, err
			}

		case reason.KindSuspend:
			req := &suspend.Request{
				ConversationID: conversationID,
				ExecutionID:    rn.executionID,
				OriginStep:     "reason",
				Tool:           act.Tool,
				Arguments:      act.Args,
				Reason:         act.Reason,
				TTL:            o.cfg.Suspension.TTL,
			}
			if err := o.suspends.Create(req); err != nil {
				rn.fail(timeline.TriggerError)
				o.failTurn(conv)
				return nil, err
			}
			rn.suspend(fmt.Sprintf("approval to run %s", act.Tool))

			conv.SetPending(req.ID)
			if err := o.sessions.Save(conv); err != nil {
				o.logger.Warn("Failed to save conversation", "conversation", conversationID, "error", err)
			}
			if err := o.suspends.MarkAwaiting(req.ID); err != nil {
				o.logger.Warn("Failed to mark suspension awaiting", "request", req.ID, "error", err)
			}
			if o.bus != nil {
				o.bus.PublishHumanRequest(&bus.HumanRequest{
					ConversationID: conversationID,
					RequestID:      req.ID,
					Tool:           req.Tool,
					Reason:         req.Reason,
					ExpiresAt:      req.ExpiresAt(),
				})
			}
			o.logger.Info("Step suspended for approval",
				"conversation", conversationID, "request", req.ID, "tool", req.Tool)
			return &Outcome{Kind: OutcomeSuspended, Request: req, Intent: dec}, nil

		default:
			rn.fail(timeline.TriggerError)
			o.failTurn(conv)
			return nil, fmt.Errorf("unknown action kind %q", act.Kind)
		}
	}
}

// Resume applies the human decision to a suspended step and produces
// the follow-up reply. A request that is unknown, already answered, or
// expired yields suspend.ErrStaleResume.
func (o *Orchestrator) Resume(ctx context.Context, conversationID, requestID string, approved bool, answer map[string]any) (*Outcome, error) {
	if err := o.acquire(conversationID); err != nil {
		return nil, err
	}
	defer o.release(conversationID)

	conv := o.sessions.GetOrCreate(conversationID)
	if conv.Pending() != requestID {
		return nil, fmt.Errorf("%w: conversation is not waiting on %s", suspend.ErrStaleResume, requestID)
	}

	req, err := o.suspends.Resolve(requestID, approved, answer)
	if err != nil {
		return nil, err
	}
	// The human's answer becomes part of the conversation's working
	// context so later turns can refer back to it.
	if len(answer) > 0 {
		conv.SetContext("human_answer", answer)
	}

	summary := fmt.Sprintf("approval to run %s", req.Tool)
	o.track(timeline.TransitionRecord{
		ExecutionID:    req.ExecutionID,
		ConversationID: conversationID,
		ActionSummary:  summary,
		FromStatus:     timeline.StatusPending,
		ToStatus:       timeline.StatusRunning,
		Trigger:        timeline.TriggerHumanResponse,
	})

	var reply string
	if approved {
		args := mergeArgs(req.Arguments, answer)
		outcome := o.invoker.Invoke(ctx, req.Tool, args)
		if outcome.OK() {
			o.track(timeline.TransitionRecord{
				ExecutionID:    req.ExecutionID,
				ConversationID: conversationID,
				ActionSummary:  summary,
				FromStatus:     timeline.StatusRunning,
				ToStatus:       timeline.StatusCompleted,
				Trigger:        timeline.TriggerToolResult,
				SideEffects:    o.toolHasSideEffects(req.Tool),
			})
		} else {
			o.track(timeline.TransitionRecord{
				ExecutionID:    req.ExecutionID,
				ConversationID: conversationID,
				ActionSummary:  summary,
				FromStatus:     timeline.StatusRunning,
				ToStatus:       timeline.StatusFailed,
				Trigger:        failureTrigger(outcome),
			})
		}
		reply = o.reasoner.ComposeResumeReply(ctx, conv, req.Tool, true, outcome)
	} else {
		o.track(timeline.TransitionRecord{
			ExecutionID:    req.ExecutionID,
			ConversationID: conversationID,
			ActionSummary:  summary,
			FromStatus:     timeline.StatusRunning,
			ToStatus:       timeline.StatusRejected,
			Trigger:        timeline.TriggerDenied,
		})
		reply = o.reasoner.ComposeResumeReply(ctx, conv, req.Tool, false, nil)
	}

	if err := o.suspends.Close(requestID); err != nil {
		o.logger.Warn("Failed to close suspension", "request", requestID, "error", err)
	}
	conv.ClearPending()
	conv.AddTurn("assistant", reply)
	if err := o.sessions.Save(conv); err != nil {
		o.logger.Warn("Failed to save conversation", "conversation", conversationID, "error", err)
	}
	o.publishReply(conversationID, reply)
	return &Outcome{Kind: OutcomeReply, Reply: reply}, nil
}

// ExpireDue expires every suspension whose TTL has elapsed at the given
// instant, closes out their executions, and frees the conversations.
// The caller owns the clock; nothing here schedules itself.
func (o *Orchestrator) ExpireDue(now time.Time) ([]*suspend.Request, error) {
	expired, err := o.suspends.ExpireDue(now)
	if err != nil {
		return nil, err
	}
	for _, req := range expired {
		o.track(timeline.TransitionRecord{
			ExecutionID:    req.ExecutionID,
			ConversationID: req.ConversationID,
			ActionSummary:  fmt.Sprintf("approval to run %s", req.Tool),
			FromStatus:     timeline.StatusPending,
			ToStatus:       timeline.StatusRejected,
			Trigger:        timeline.TriggerTimeout,
		})
		if err := o.suspends.Close(req.ID); err != nil {
			o.logger.Warn("Failed to close expired suspension", "request", req.ID, "error", err)
		}

		conv := o.sessions.GetOrCreate(req.ConversationID)
		if conv.Pending() == req.ID {
			conv.ClearPending()
			notice := fmt.Sprintf("The request to run %s expired without an answer, so I didn't do it.", req.Tool)
			conv.AddTurn("assistant", notice)
			if err := o.sessions.Save(conv); err != nil {
				o.logger.Warn("Failed to save conversation", "conversation", req.ConversationID, "error", err)
			}
			o.publishReply(req.ConversationID, notice)
		}
	}
	return expired, nil
}

// runTool records the tool node around a single invocation.
func (o *Orchestrator) runTool(ctx context.Context, conversationID, name string, args map[string]any, tier int) *tools.Outcome {
	tn := o.begin(conversationID, "run "+name, timeline.TriggerToolCall)
	outcome := o.invoker.Invoke(ctx, name, args)
	if outcome.OK() {
		tn.complete(timeline.TriggerToolResult, tier > tools.TierReadOnly)
	} else {
		// Side effects stay false: a tool that timed out or never
		// started is reported as not having changed anything.
		tn.fail(failureTrigger(outcome))
	}
	return outcome
}

// failTurn closes out a turn whose user input was already recorded but
// whose reasoning failed. The dialogue stays append-only and every
// recorded turn ends with an assistant entry, so a failed turn never
// leaves the conversation half-written for the next one.
func (o *Orchestrator) failTurn(conv *session.Conversation) {
	conv.AddTurn("assistant", "Something went wrong on my side before I could finish that. Please try again.")
	if err := o.sessions.Save(conv); err != nil {
		o.logger.Warn("Failed to save conversation", "conversation", conv.ID, "error", err)
	}
}

func (o *Orchestrator) finishReply(conv *session.Conversation, dec intent.Decision, text string) (*Outcome, error) {
	conv.AddTurn("assistant", text)
	if err := o.sessions.Save(conv); err != nil {
		o.logger.Warn("Failed to save conversation", "conversation", conv.ID, "error", err)
	}
	o.publishReply(conv.ID, text)
	return &Outcome{Kind: OutcomeReply, Reply: text, Intent: dec}, nil
}

func (o *Orchestrator) publishReply(conversationID, text string) {
	if o.bus == nil {
		return
	}
	o.bus.PublishReply(&bus.Reply{ConversationID: conversationID, Content: text})
}

func (o *Orchestrator) toolHasSideEffects(name string) bool {
	t, ok := o.registry.Get(name)
	if !ok {
		return false
	}
	return tools.ToolTier(t) > tools.TierReadOnly
}

func (o *Orchestrator) maxIterations() int {
	if o.cfg.Model.MaxIterations > 0 {
		return o.cfg.Model.MaxIterations
	}
	return 6
}

func (o *Orchestrator) acquire(conversationID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[conversationID] {
		return fmt.Errorf("%w: step in progress", ErrConversationBusy)
	}
	o.active[conversationID] = true
	return nil
}

func (o *Orchestrator) release(conversationID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, conversationID)
}

func (o *Orchestrator) track(rec timeline.TransitionRecord) {
	o.tracker.Record(rec)
}

// node tracks one execution through the timeline. Every node starts
// with a pending -> running record and ends on exactly one edge.
type node struct {
	o              *Orchestrator
	executionID    string
	conversationID string
	summary        string
}

func (o *Orchestrator) begin(conversationID, summary, trigger string) *node {
	n := &node{
		o:              o,
		executionID:    uuid.New().String(),
		conversationID: conversationID,
		summary:        summary,
	}
	o.track(timeline.TransitionRecord{
		ExecutionID:    n.executionID,
		ConversationID: conversationID,
		ActionSummary:  summary,
		FromStatus:     timeline.StatusPending,
		ToStatus:       timeline.StatusRunning,
		Trigger:        trigger,
	})
	return n
}

func (n *node) complete(trigger string, sideEffects bool) {
	n.o.track(timeline.TransitionRecord{
		ExecutionID:    n.executionID,
		ConversationID: n.conversationID,
		ActionSummary:  n.summary,
		FromStatus:     timeline.StatusRunning,
		ToStatus:       timeline.StatusCompleted,
		Trigger:        trigger,
		SideEffects:    sideEffects,
	})
}

func (n *node) fail(trigger string) {
	n.o.track(timeline.TransitionRecord{
		ExecutionID:    n.executionID,
		ConversationID: n.conversationID,
		ActionSummary:  n.summary,
		FromStatus:     timeline.StatusRunning,
		ToStatus:       timeline.StatusFailed,
		Trigger:        trigger,
	})
}

// suspend records the running -> pending edge that parks this execution
// until a human answers or the TTL runs out.
func (n *node) suspend(summary string) {
	n.o.track(timeline.TransitionRecord{
		ExecutionID:    n.executionID,
		ConversationID: n.conversationID,
		ActionSummary:  summary,
		FromStatus:     timeline.StatusRunning,
		ToStatus:       timeline.StatusPending,
		Trigger:        timeline.TriggerApprovalGate,
		Resumable:      true,
	})
}

func failureTrigger(outcome *tools.Outcome) string {
	if outcome.Err != nil && outcome.Err.Kind == tools.ErrKindTimeout {
		return timeline.TriggerTimeout
	}
	return timeline.TriggerError
}

func mergeArgs(base, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
