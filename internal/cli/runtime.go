package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/daijinru/wenko/internal/bus"
	"github.com/daijinru/wenko/internal/config"
	"github.com/daijinru/wenko/internal/intent"
	"github.com/daijinru/wenko/internal/memory"
	"github.com/daijinru/wenko/internal/orchestrator"
	"github.com/daijinru/wenko/internal/policy"
	"github.com/daijinru/wenko/internal/provider"
	"github.com/daijinru/wenko/internal/reason"
	"github.com/daijinru/wenko/internal/session"
	"github.com/daijinru/wenko/internal/suspend"
	"github.com/daijinru/wenko/internal/timeline"
	"github.com/daijinru/wenko/internal/tools"
)

// runtime bundles the wired core for the CLI commands.
type runtime struct {
	cfg      *config.Config
	orc      *orchestrator.Orchestrator
	bus      *bus.EventBus
	timeline *timeline.Service
	suspends *suspend.Manager
	sessions *session.Manager
}

// buildRuntime loads config and wires the full orchestration core.
// needProvider controls whether a missing API key is fatal; timeline
// and expiry commands work fully offline.
func buildRuntime(needProvider bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	if err := config.EnsureDir(cfg.Paths.Home); err != nil {
		return nil, fmt.Errorf("prepare home dir: %w", err)
	}
	if err := config.EnsureDir(cfg.Paths.Conversations); err != nil {
		return nil, fmt.Errorf("prepare conversations dir: %w", err)
	}
	if err := config.EnsureDir(filepath.Dir(cfg.Paths.StateDB)); err != nil {
		return nil, fmt.Errorf("prepare state dir: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var prov provider.LLMProvider
	if cfg.Provider.APIKey != "" {
		prov = provider.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Model.Name)
	} else if needProvider {
		return nil, fmt.Errorf("no API key configured (set OPENAI_API_KEY or edit the config file)")
	}

	tl, err := timeline.NewService(cfg.Paths.StateDB)
	if err != nil {
		return nil, err
	}
	store, err := suspend.NewStore(cfg.Paths.StateDB)
	if err != nil {
		return nil, err
	}
	facts, err := memory.NewFactStore(cfg.Paths.StateDB)
	if err != nil {
		return nil, err
	}

	reg := tools.NewRegistry()
	reg.Register(tools.NewLocalTimeTool())
	reg.Register(tools.NewNoteTool(facts))
	reg.Register(tools.NewClearNotesTool(facts))

	pol := &policy.DefaultEngine{MaxAutoTier: cfg.Tools.MaxAutoTier}

	classifierModel := cfg.Cascade.ClassifierModel
	if classifierModel == "" {
		classifierModel = cfg.Model.Name
	}

	suspends := suspend.NewManager(store, logger)
	sessions := session.NewManager(cfg.Paths.Conversations)
	b := bus.NewEventBus()
	go b.Dispatch(context.Background())

	orc := orchestrator.New(orchestrator.Deps{
		Config:      cfg,
		Sessions:    sessions,
		Cascade:     intent.NewCascade(prov, reg, cfg.Cascade.ClassifierThreshold, classifierModel, logger),
		Reasoner:    reason.NewReasoner(prov, reg, pol, facts, cfg.Model.Name, cfg.Model.MaxTokens, cfg.Model.Temperature, cfg.Memory.RetrieveLimit, logger),
		Invoker:     tools.NewInvoker(reg, cfg.Tools.InvokeTimeout, logger),
		Registry:    reg,
		Suspensions: suspends,
		Tracker:     orchestrator.NewTracker(tl, b, logger),
		Bus:         b,
		Logger:      logger,
	})

	return &runtime{cfg: cfg, orc: orc, bus: b, timeline: tl, suspends: suspends, sessions: sessions}, nil
}
