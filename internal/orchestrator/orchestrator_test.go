package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daijinru/wenko/internal/bus"
	"github.com/daijinru/wenko/internal/config"
	"github.com/daijinru/wenko/internal/input"
	"github.com/daijinru/wenko/internal/intent"
	"github.com/daijinru/wenko/internal/memory"
	"github.com/daijinru/wenko/internal/policy"
	"github.com/daijinru/wenko/internal/provider"
	"github.com/daijinru/wenko/internal/reason"
	"github.com/daijinru/wenko/internal/session"
	"github.com/daijinru/wenko/internal/suspend"
	"github.com/daijinru/wenko/internal/timeline"
	"github.com/daijinru/wenko/internal/tools"
)

type harness struct {
	orc        *Orchestrator
	timeline   *timeline.Service
	facts      *memory.FactStore
	sessions   *session.Manager
	classifier *provider.ScriptedProvider
	cfg        *config.Config
}

// newHarness wires a full orchestrator over temp databases. The
// classifier gets its own empty scripted provider so any classifier
// call degrades to fallback and is visible in its call count.
func newHarness(t *testing.T, p *provider.ScriptedProvider, extra ...tools.Tool) *harness {
	t.Helper()
	dir := t.TempDir()

	tl, err := timeline.NewService(filepath.Join(dir, "timeline.db"))
	if err != nil {
		t.Fatalf("timeline.NewService: %v", err)
	}
	store, err := suspend.NewStore(filepath.Join(dir, "suspend.db"))
	if err != nil {
		t.Fatalf("suspend.NewStore: %v", err)
	}
	facts, err := memory.NewFactStore(filepath.Join(dir, "facts.db"))
	if err != nil {
		t.Fatalf("memory.NewFactStore: %v", err)
	}

	reg := tools.NewRegistry()
	reg.Register(tools.NewLocalTimeTool())
	reg.Register(tools.NewNoteTool(facts))
	reg.Register(tools.NewClearNotesTool(facts))
	for _, x := range extra {
		reg.Register(x)
	}

	classifier := provider.NewScriptedProvider()
	casc := intent.NewCascade(classifier, reg, 0.6, "m", nil)
	r := reason.NewReasoner(p, reg, policy.NewDefaultEngine(), facts, "m", 512, 0.5, 5, nil)

	cfg := config.DefaultConfig()
	cfg.Suspension.TTL = time.Minute

	b := bus.NewEventBus()
	sessions := session.NewManager(filepath.Join(dir, "conversations"))
	orc := New(Deps{
		Config:      cfg,
		Sessions:    sessions,
		Cascade:     casc,
		Reasoner:    r,
		Invoker:     tools.NewInvoker(reg, 50*time.Millisecond, nil),
		Registry:    reg,
		Suspensions: suspend.NewManager(store, nil),
		Tracker:     NewTracker(tl, b, nil),
		Bus:         b,
	})
	return &harness{orc: orc, timeline: tl, facts: facts, sessions: sessions, classifier: classifier, cfg: cfg}
}

func text(s string) input.Raw {
	return input.Raw{Kind: input.KindText, Text: s}
}

// lastForSummary returns the final transition of the most recent
// execution whose summary matches.
func lastForSummary(t *testing.T, tl *timeline.Service, conversationID, summary string) timeline.TransitionRecord {
	t.Helper()
	recs, err := tl.Timeline(conversationID)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	var found *timeline.TransitionRecord
	for i := range recs {
		if recs[i].ActionSummary == summary {
			found = &recs[i]
		}
	}
	if found == nil {
		t.Fatalf("no transition with summary %q in %d records", summary, len(recs))
	}
	return *found
}

func TestStepSelfIntroAnswersFromRules(t *testing.T) {
	p := provider.NewScriptedProvider(&provider.ChatResponse{Content: "很高兴认识你，小明！"})
	h := newHarness(t, p)

	out, err := h.orc.Step(context.Background(), "conv-a", text("我叫小明，我喜欢用 Python"))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out.Kind != OutcomeReply || out.Reply != "很高兴认识你，小明！" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Intent.Intent != intent.IntentFactPreference || out.Intent.Confidence != 1.0 {
		t.Errorf("expected fact_preference at full confidence, got %+v", out.Intent)
	}
	if out.Intent.Layer != intent.LayerRules {
		t.Errorf("expected rules layer, got %q", out.Intent.Layer)
	}
	if h.classifier.Calls() != 0 {
		t.Errorf("rule match must not reach the classifier, got %d calls", h.classifier.Calls())
	}
	if p.Calls() != 1 {
		t.Errorf("expected exactly one reasoning call, got %d", p.Calls())
	}

	facts, err := h.facts.Retrieve(context.Background(), "Python", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(facts) == 0 {
		t.Error("self-introduction should be persisted as a fact")
	}
}

func TestStepToolInvocation(t *testing.T) {
	p := provider.NewScriptedProvider(
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "local_time", Arguments: map[string]any{}}}},
		&provider.ChatResponse{Content: "It is just past three."},
	)
	h := newHarness(t, p)

	out, err := h.orc.Step(context.Background(), "conv-t", text("what time is it?"))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out.Kind != OutcomeReply || out.Reply != "It is just past three." {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if p.Calls() != 2 {
		t.Errorf("expected decide + continue, got %d calls", p.Calls())
	}

	rec := lastForSummary(t, h.timeline, "conv-t", "run local_time")
	if rec.ToStatus != timeline.StatusCompleted || rec.SideEffects {
		t.Errorf("read-only tool should complete without side effects, got %+v", rec)
	}
}

func TestStepSuspendsDestructiveToolAndBlocksConversation(t *testing.T) {
	p := provider.NewScriptedProvider(
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "clear_notes", Arguments: map[string]any{}}}},
	)
	h := newHarness(t, p)

	out, err := h.orc.Step(context.Background(), "conv-s", text("clear my notes"))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out.Kind != OutcomeSuspended || out.Request == nil {
		t.Fatalf("expected suspension, got %+v", out)
	}
	if out.Request.Tool != "clear_notes" {
		t.Errorf("unexpected suspended tool %q", out.Request.Tool)
	}

	snap, err := h.timeline.Snapshot(out.Request.ExecutionID)
	if err != nil || snap == nil {
		t.Fatalf("Snapshot: %v %v", snap, err)
	}
	if snap.ToStatus != timeline.StatusPending || !snap.Resumable {
		t.Errorf("suspended execution should be pending and resumable, got %+v", snap)
	}
	if snap.Trigger != timeline.TriggerApprovalGate {
		t.Errorf("expected approval trigger, got %q", snap.Trigger)
	}

	_, err = h.orc.Step(context.Background(), "conv-s", text("hello?"))
	if !errors.Is(err, ErrConversationBusy) {
		t.Fatalf("second input must hit the busy guard, got %v", err)
	}
}

func TestResumeApprovedRunsToolWithSideEffects(t *testing.T) {
	p := provider.NewScriptedProvider(
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "clear_notes", Arguments: map[string]any{}}}},
		&provider.ChatResponse{Content: "All notes are gone now."},
		&provider.ChatResponse{Content: "Hi again."},
	)
	h := newHarness(t, p)
	ctx := context.Background()

	if err := h.facts.AddNote(ctx, "buy oat milk"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	out, err := h.orc.Step(ctx, "conv-r", text("clear my notes"))
	if err != nil || out.Kind != OutcomeSuspended {
		t.Fatalf("expected suspension, got %+v %v", out, err)
	}

	resumed, err := h.orc.Resume(ctx, "conv-r", out.Request.ID, true, map[string]any{"confirmed_by": "user"})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Reply != "All notes are gone now." {
		t.Errorf("unexpected resume reply %q", resumed.Reply)
	}

	// The human's answer lands in the working context.
	conv := h.sessions.GetOrCreate("conv-r")
	if v, ok := conv.GetContext("human_answer"); !ok {
		t.Error("resume data should be folded into the working context")
	} else if m, _ := v.(map[string]any); m["confirmed_by"] != "user" {
		t.Errorf("unexpected working context entry %v", v)
	}

	snap, err := h.timeline.Snapshot(out.Request.ExecutionID)
	if err != nil || snap == nil {
		t.Fatalf("Snapshot: %v %v", snap, err)
	}
	if snap.ToStatus != timeline.StatusCompleted || !snap.SideEffects || !snap.Terminal {
		t.Errorf("approved destructive tool should complete with side effects, got %+v", snap)
	}

	// The same request cannot be resumed twice.
	if _, err := h.orc.Resume(ctx, "conv-r", out.Request.ID, true, nil); !errors.Is(err, suspend.ErrStaleResume) {
		t.Fatalf("second resume must be stale, got %v", err)
	}

	// The conversation is free again.
	next, err := h.orc.Step(ctx, "conv-r", text("thanks"))
	if err != nil || next.Reply != "Hi again." {
		t.Fatalf("conversation should accept input after resume, got %+v %v", next, err)
	}
}

func TestResumeDeniedRejectsWithoutRunning(t *testing.T) {
	p := provider.NewScriptedProvider(
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "clear_notes", Arguments: map[string]any{}}}},
	)
	h := newHarness(t, p)
	ctx := context.Background()

	if err := h.facts.AddNote(ctx, "water the plants"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	out, err := h.orc.Step(ctx, "conv-d", text("clear my notes"))
	if err != nil || out.Kind != OutcomeSuspended {
		t.Fatalf("expected suspension, got %+v %v", out, err)
	}

	resumed, err := h.orc.Resume(ctx, "conv-d", out.Request.ID, false, nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !strings.Contains(resumed.Reply, "clear_notes") {
		t.Errorf("denial reply should name the tool, got %q", resumed.Reply)
	}
	if p.Calls() != 1 {
		t.Errorf("denial must not call the provider again, got %d calls", p.Calls())
	}

	// The note survived the denial.
	notes, err := h.facts.Retrieve(ctx, "plants", 5)
	if err != nil || len(notes) == 0 {
		t.Errorf("denied tool must not run, note missing: %v %v", notes, err)
	}

	snap, _ := h.timeline.Snapshot(out.Request.ExecutionID)
	if snap.ToStatus != timeline.StatusRejected || snap.Trigger != timeline.TriggerDenied {
		t.Errorf("denied execution should be rejected, got %+v", snap)
	}
	if !timeline.Humanize(*snap).Finished {
		t.Error("rejected execution should read as finished")
	}
}

func TestExpireDueRejectsOnTimeout(t *testing.T) {
	p := provider.NewScriptedProvider(
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "clear_notes", Arguments: map[string]any{}}}},
		&provider.ChatResponse{Content: "Welcome back."},
	)
	h := newHarness(t, p)
	ctx := context.Background()

	out, err := h.orc.Step(ctx, "conv-e", text("clear my notes"))
	if err != nil || out.Kind != OutcomeSuspended {
		t.Fatalf("expected suspension, got %+v %v", out, err)
	}

	// Before the deadline nothing expires.
	expired, err := h.orc.ExpireDue(out.Request.CreatedAt.Add(h.cfg.Suspension.TTL / 2))
	if err != nil || len(expired) != 0 {
		t.Fatalf("nothing should expire before the deadline, got %v %v", expired, err)
	}

	expired, err = h.orc.ExpireDue(out.Request.CreatedAt.Add(h.cfg.Suspension.TTL + time.Second))
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != out.Request.ID {
		t.Fatalf("expected the suspension to expire, got %v", expired)
	}

	snap, _ := h.timeline.Snapshot(out.Request.ExecutionID)
	if snap.ToStatus != timeline.StatusRejected || snap.Trigger != timeline.TriggerTimeout {
		t.Errorf("expired execution should be rejected by timeout, got %+v", snap)
	}
	nar := timeline.Humanize(*snap)
	if !nar.Finished {
		t.Error("expired execution should read as finished")
	}
	if !strings.Contains(nar.Summary, "no answer in time") {
		t.Errorf("expiry narrative should mention the timeout, got %q", nar.Summary)
	}

	// A late answer is stale.
	if _, err := h.orc.Resume(ctx, "conv-e", out.Request.ID, true, nil); !errors.Is(err, suspend.ErrStaleResume) {
		t.Fatalf("resume after expiry must be stale, got %v", err)
	}

	// The conversation accepts input again.
	next, err := h.orc.Step(ctx, "conv-e", text("hi"))
	if err != nil || next.Reply != "Welcome back." {
		t.Fatalf("conversation should be free after expiry, got %+v %v", next, err)
	}
}

type slowTool struct{ delay time.Duration }

func (s *slowTool) Name() string               { return "slow_op" }
func (s *slowTool) Description() string        { return "A deliberately slow operation." }
func (s *slowTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (s *slowTool) TriggerKeywords() []string  { return []string{"do the slow thing"} }
func (s *slowTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	select {
	case <-time.After(s.delay):
		return "done", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestStepToolTimeoutIsTypedAndSideEffectFree(t *testing.T) {
	p := provider.NewScriptedProvider(
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "slow_op", Arguments: map[string]any{}}}},
		&provider.ChatResponse{Content: "Sorry, that took too long."},
	)
	h := newHarness(t, p, &slowTool{delay: time.Second})

	out, err := h.orc.Step(context.Background(), "conv-to", text("do the slow thing"))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out.Reply != "Sorry, that took too long." {
		t.Errorf("unexpected reply %q", out.Reply)
	}

	rec := lastForSummary(t, h.timeline, "conv-to", "run slow_op")
	if rec.ToStatus != timeline.StatusFailed || rec.Trigger != timeline.TriggerTimeout {
		t.Errorf("timed-out tool should fail with timeout trigger, got %+v", rec)
	}
	if rec.SideEffects {
		t.Error("a timed-out tool must not claim side effects")
	}

	// The model sees the typed failure, not a raw error string.
	last := p.Requests[1].Messages[len(p.Requests[1].Messages)-1]
	if !strings.Contains(last.Content, "did not finish in time") {
		t.Errorf("timeout should be narrated to the model, got %q", last.Content)
	}
}

func TestReasoningFailureClosesTheTurn(t *testing.T) {
	// A nil scripted entry makes the first call fail; the second succeeds.
	p := provider.NewScriptedProvider(nil, &provider.ChatResponse{Content: "Back to normal."})
	h := newHarness(t, p)
	ctx := context.Background()

	if _, err := h.orc.Step(ctx, "conv-f", text("我喜欢喝茶")); err == nil {
		t.Fatal("expected the provider failure to surface")
	}

	conv := h.sessions.GetOrCreate("conv-f")
	turns := conv.History(10)
	if len(turns) != 2 {
		t.Fatalf("failed turn should still close with an assistant entry, got %d turns", len(turns))
	}
	if turns[len(turns)-1].Role != "assistant" {
		t.Fatalf("last turn should be the failure notice, got %+v", turns[len(turns)-1])
	}

	out, err := h.orc.Step(ctx, "conv-f", text("还在吗"))
	if err != nil || out.Reply != "Back to normal." {
		t.Fatalf("conversation should keep working after a failed turn, got %+v %v", out, err)
	}
}

func TestStepUnsupportedInputKind(t *testing.T) {
	p := provider.NewScriptedProvider()
	h := newHarness(t, p)

	_, err := h.orc.Step(context.Background(), "conv-u", input.Raw{Kind: "audio"})
	if !errors.Is(err, input.ErrUnsupportedInputKind) {
		t.Fatalf("expected ErrUnsupportedInputKind, got %v", err)
	}
	rec := lastForSummary(t, h.timeline, "conv-u", "understand input")
	if rec.ToStatus != timeline.StatusFailed {
		t.Errorf("normalize node should fail, got %+v", rec)
	}
	if p.Calls() != 0 {
		t.Error("unsupported input must not reach the provider")
	}
}

func TestBusyGuardOnNewConversationState(t *testing.T) {
	p := provider.NewScriptedProvider(
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "clear_notes", Arguments: map[string]any{}}}},
		&provider.ChatResponse{ToolCalls: []provider.ToolCall{{ID: "c2", Name: "clear_notes", Arguments: map[string]any{}}}},
	)
	h := newHarness(t, p)
	ctx := context.Background()

	// Suspension in one conversation does not block another.
	if _, err := h.orc.Step(ctx, "conv-x", text("clear my notes")); err != nil {
		t.Fatalf("Step conv-x: %v", err)
	}
	if _, err := h.orc.Step(ctx, "conv-y", text("clear my notes")); err != nil {
		t.Fatalf("independent conversation should not be blocked: %v", err)
	}
}
