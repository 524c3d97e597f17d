package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/daijinru/wenko/internal/input"
	"github.com/daijinru/wenko/internal/provider"
	"github.com/daijinru/wenko/internal/tools"
)

// ErrClassifierFailure wraps classifier errors. The cascade never
// surfaces it to the caller; Resolve degrades to the fallback decision
// and logs instead.
var ErrClassifierFailure = errors.New("intent classifier failure")

// Cascade resolves intents in three layers. Static and tool-trigger
// rules fire at confidence 1.0 without touching the provider; the
// classifier runs only when no rule matched; anything below the
// threshold lands on the generic fallback.
type Cascade struct {
	provider  provider.LLMProvider
	rules     []rule
	threshold float64
	model     string
	logger    *slog.Logger
}

// NewCascade builds a cascade. provider may be nil, in which case the
// classifier layer is skipped entirely.
func NewCascade(p provider.LLMProvider, registry *tools.Registry, threshold float64, model string, logger *slog.Logger) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	rules := make([]rule, 0, len(staticRules))
	rules = append(rules, staticRules...)
	rules = append(rules, compileToolRules(registry)...)
	return &Cascade{
		provider:  p,
		rules:     rules,
		threshold: threshold,
		model:     model,
		logger:    logger,
	}
}

// Resolve returns exactly one decision for the input. It never fails:
// every degradation path ends at the fallback decision.
func (c *Cascade) Resolve(ctx context.Context, sem *input.SemanticInput) Decision {
	// Declared intents from UI events bypass all layers.
	if sem.DeclaredIntent != "" {
		declared := Intent(sem.DeclaredIntent)
		if Valid(declared) {
			c.logger.Debug("Intent declared by source", "intent", declared)
			return Decision{Intent: declared, Confidence: 1.0, Layer: LayerRules, MatchedRule: "declared"}
		}
		c.logger.Warn("Ignoring unknown declared intent", "declared", sem.DeclaredIntent)
	}

	lower := strings.ToLower(sem.Text)
	for _, r := range c.rules {
		if r.match(lower) {
			c.logger.Debug("Intent matched by rule", "rule", r.name, "intent", r.intent)
			return Decision{Intent: r.intent, Confidence: 1.0, Layer: LayerRules, MatchedRule: r.name}
		}
	}

	if c.provider == nil {
		return Decision{Intent: IntentNone, Layer: LayerFallback}
	}

	guess, confidence, err := c.classify(ctx, sem.Text)
	if err != nil {
		c.logger.Warn("Classifier failed, falling back", "error", err)
		return Decision{Intent: IntentNone, Layer: LayerFallback}
	}
	if confidence < c.threshold {
		c.logger.Debug("Classifier below threshold", "intent", guess, "confidence", confidence, "threshold", c.threshold)
		return Decision{Intent: IntentNone, Confidence: confidence, Layer: LayerFallback}
	}
	return Decision{Intent: guess, Confidence: confidence, Layer: LayerClassifier}
}

// classify asks the provider for a single "label confidence" line.
func (c *Cascade) classify(ctx context.Context, text string) (Intent, float64, error) {
	labels := make([]string, 0, len(All()))
	for _, i := range All() {
		if i == IntentNone {
			continue
		}
		labels = append(labels, string(i))
	}
	system := "Classify the user's message into exactly one intent label. " +
		"Labels: " + strings.Join(labels, ", ") + ". " +
		"Answer with one line: <label> <confidence between 0 and 1>. No other text."

	resp, err := c.provider.Chat(ctx, &provider.ChatRequest{
		Model: c.model,
		Messages: []provider.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
		MaxTokens:   16,
		Temperature: 0,
	})
	if err != nil {
		return IntentNone, 0, fmt.Errorf("%w: %v", ErrClassifierFailure, err)
	}
	return parseClassification(resp.Content)
}

func parseClassification(content string) (Intent, float64, error) {
	line := strings.TrimSpace(content)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return IntentNone, 0, fmt.Errorf("%w: empty response", ErrClassifierFailure)
	}
	label := Intent(strings.ToLower(strings.Trim(fields[0], ".,:;\"'")))
	if !Valid(label) || label == IntentNone {
		return IntentNone, 0, fmt.Errorf("%w: unknown label %q", ErrClassifierFailure, fields[0])
	}
	confidence := 0.0
	if len(fields) > 1 {
		v, err := strconv.ParseFloat(strings.Trim(fields[1], ".,:;"), 64)
		if err != nil || v < 0 || v > 1 {
			return IntentNone, 0, fmt.Errorf("%w: bad confidence %q", ErrClassifierFailure, fields[1])
		}
		confidence = v
	}
	return label, confidence, nil
}
