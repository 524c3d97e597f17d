package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ErrorKind classifies a failed tool invocation.
type ErrorKind string

// Invocation error kinds. Timeout and unavailable are ordinary outcomes
// the reasoner narrates to the user; they never abort a turn.
const (
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindUnavailable ErrorKind = "unavailable"
	ErrKindFailed      ErrorKind = "failed"
)

// ToolError is a typed failure from a tool invocation.
type ToolError struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s %s: %v", e.Tool, e.Kind, e.Err)
	}
	return fmt.Sprintf("tool %s %s", e.Tool, e.Kind)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Outcome is the result of one tool invocation, success or failure.
type Outcome struct {
	Tool     string
	Output   string
	Duration time.Duration
	Err      *ToolError
}

// OK reports whether the invocation succeeded.
func (o *Outcome) OK() bool { return o.Err == nil }

// Invoker executes registered tools with a per-call timeout.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewInvoker creates an invoker over the given registry.
func NewInvoker(registry *Registry, timeout time.Duration, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{registry: registry, timeout: timeout, logger: logger}
}

// Invoke runs a tool by name. The returned outcome always identifies the
// tool; failures are carried as typed errors rather than panics so the
// conversation can continue.
func (inv *Invoker) Invoke(ctx context.Context, name string, params map[string]any) *Outcome {
	out := &Outcome{Tool: name}

	tool, ok := inv.registry.Get(name)
	if !ok {
		out.Err = &ToolError{Kind: ErrKindUnavailable, Tool: name, Err: fmt.Errorf("not registered")}
		inv.logger.Warn("Tool not found", "tool", name)
		return out
	}
	if ac, ok := tool.(AvailabilityChecker); ok {
		if err := ac.Available(); err != nil {
			out.Err = &ToolError{Kind: ErrKindUnavailable, Tool: name, Err: err}
			inv.logger.Warn("Tool unavailable", "tool", name, "error", err)
			return out
		}
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if inv.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
	}
	defer cancel()

	type result struct {
		output string
		err    error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		output, err := tool.Execute(callCtx, params)
		done <- result{output, err}
	}()

	select {
	case res := <-done:
		out.Duration = time.Since(start)
		if res.err != nil {
			out.Err = &ToolError{Kind: ErrKindFailed, Tool: name, Err: res.err}
			inv.logger.Warn("Tool failed", "tool", name, "duration", out.Duration, "error", res.err)
			return out
		}
		out.Output = res.output
		inv.logger.Debug("Tool executed", "tool", name, "duration", out.Duration)
		return out
	case <-callCtx.Done():
		out.Duration = time.Since(start)
		kind := ErrKindTimeout
		if ctx.Err() != nil {
			// Caller cancelled, not our deadline.
			kind = ErrKindFailed
		}
		out.Err = &ToolError{Kind: kind, Tool: name, Err: callCtx.Err()}
		inv.logger.Warn("Tool timed out", "tool", name, "timeout", inv.timeout)
		return out
	}
}
