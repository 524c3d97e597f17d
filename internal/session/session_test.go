package session

import (
	"testing"

	"github.com/daijinru/wenko/internal/emotion"
)

func TestAddTurnAndHistory(t *testing.T) {
	conv := NewConversation("c1")
	conv.AddTurn("user", "hello")
	conv.AddTurn("assistant", "hi there")
	conv.AddTurn("user", "how are you")

	h := conv.History(2)
	if len(h) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(h))
	}
	if h[0].Content != "hi there" || h[1].Content != "how are you" {
		t.Errorf("expected most recent turns, got %+v", h)
	}
}

func TestSignalsBounded(t *testing.T) {
	conv := NewConversation("c1")
	for i := 0; i < 20; i++ {
		conv.PushSignal(emotion.Analyze("so sad today"), 8)
	}
	if conv.SignalCount() != 8 {
		t.Fatalf("expected 8 retained signals, got %d", conv.SignalCount())
	}
	if conv.LatestSignal().PromptFragment() == "" {
		t.Error("latest signal should be the distressed one")
	}
}

func TestPendingMarker(t *testing.T) {
	conv := NewConversation("c1")
	if conv.Pending() != "" {
		t.Fatal("new conversation has no pending step")
	}
	conv.SetPending("req-1")
	if conv.Pending() != "req-1" {
		t.Fatal("pending marker not set")
	}
	conv.ClearPending()
	if conv.Pending() != "" {
		t.Fatal("pending marker not cleared")
	}
}

func TestManagerSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	conv := m.GetOrCreate("c1")
	conv.AddTurn("user", "remember me")
	conv.AddTurn("assistant", "always")
	conv.SetContext("concise", true)
	conv.SetPending("req-9")
	if err := m.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Fresh manager simulates a restart.
	m2 := NewManager(dir)
	loaded := m2.GetOrCreate("c1")
	if len(loaded.Turns) != 2 {
		t.Fatalf("expected 2 turns after reload, got %d", len(loaded.Turns))
	}
	if loaded.Turns[0].Content != "remember me" {
		t.Errorf("unexpected first turn %+v", loaded.Turns[0])
	}
	if v, ok := loaded.GetContext("concise"); !ok || v != true {
		t.Errorf("working context lost: %v %v", v, ok)
	}
	if loaded.Pending() != "req-9" {
		t.Errorf("pending step lost, got %q", loaded.Pending())
	}
}

func TestManagerSanitizesIDs(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	conv := m.GetOrCreate("../../evil/../id")
	conv.AddTurn("user", "x")
	if err := m.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ids := m.List()
	if len(ids) != 1 {
		t.Fatalf("expected one stored conversation, got %v", ids)
	}
}

func TestListConversations(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	for _, id := range []string{"a", "b"} {
		conv := m.GetOrCreate(id)
		if err := m.Save(conv); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if got := len(m.List()); got != 2 {
		t.Fatalf("expected 2 conversations, got %d", got)
	}
}
