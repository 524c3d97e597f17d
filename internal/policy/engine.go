// Package policy provides tool execution authorization.
package policy

import (
	"fmt"
	"time"

	"github.com/daijinru/wenko/internal/tools"
)

// Context holds information about a pending tool execution.
type Context struct {
	ConversationID string
	Tool           string
	Tier           int
	Arguments      map[string]any
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allow         bool
	RequiresHuman bool // true when tier exceeds auto-approve and a human can decide
	Reason        string
	Tier          int
	Ts            time.Time
}

// Engine evaluates whether a tool execution should proceed.
type Engine interface {
	Evaluate(ctx Context) Decision
}

// DefaultEngine is the v1 policy implementation.
// It checks tool tier against the configured max auto-approved tier.
type DefaultEngine struct {
	// MaxAutoTier is the highest tier that is auto-approved (default: 1).
	// Tools above it suspend the conversation for human approval.
	MaxAutoTier int
	// DeniedTools are never run, regardless of tier.
	DeniedTools map[string]bool
}

// NewDefaultEngine creates a policy engine with sensible defaults.
func NewDefaultEngine() *DefaultEngine {
	return &DefaultEngine{
		MaxAutoTier: 1,
	}
}

// Evaluate checks the tool against the deny list and tier limits.
func (e *DefaultEngine) Evaluate(ctx Context) Decision {
	d := Decision{
		Tier: ctx.Tier,
		Ts:   time.Now(),
	}

	if e.DeniedTools[ctx.Tool] {
		d.Allow = false
		d.Reason = fmt.Sprintf("tool_denied: %s", ctx.Tool)
		return d
	}

	// Tier 0 tools are always allowed
	if ctx.Tier == tools.TierReadOnly {
		d.Allow = true
		d.Reason = "tier_0_always_allowed"
		return d
	}

	if ctx.Tier > e.MaxAutoTier {
		d.Allow = false
		d.RequiresHuman = true
		d.Reason = fmt.Sprintf("tier_%d_requires_approval", ctx.Tier)
		return d
	}

	d.Allow = true
	d.Reason = fmt.Sprintf("tier_%d_auto_approved", ctx.Tier)
	return d
}
