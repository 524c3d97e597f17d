// Package intent resolves what the user wants through a layered cascade:
// hand-written rules first, an LLM classifier second, and a generic
// fallback when neither is confident.
package intent

// Intent is the closed set of conversational intents.
type Intent string

const (
	IntentNone             Intent = "none"
	IntentFact             Intent = "fact"
	IntentPreference       Intent = "preference"
	IntentFactPreference   Intent = "fact_preference"
	IntentToolUse          Intent = "tool_use"
	IntentEmotionalSupport Intent = "emotional_support"
	IntentTask             Intent = "task"
	IntentSmalltalk        Intent = "smalltalk"
)

// All lists every valid intent. The classifier prompt and validation
// are built from this slice; adding an intent here is the single
// registration point.
func All() []Intent {
	return []Intent{
		IntentNone,
		IntentFact,
		IntentPreference,
		IntentFactPreference,
		IntentToolUse,
		IntentEmotionalSupport,
		IntentTask,
		IntentSmalltalk,
	}
}

// Valid reports whether i is a known intent.
func Valid(i Intent) bool {
	for _, known := range All() {
		if i == known {
			return true
		}
	}
	return false
}

// Snippet returns the prompt fragment swapped into the system prompt for
// this intent. Each snippet stays well under 400 characters; guidance
// that wants more room belongs in a tool description or the baseline
// prompt instead.
func (i Intent) Snippet() string {
	switch i {
	case IntentFact:
		return "The user is sharing a fact about themselves. Acknowledge it naturally and remember it; do not interrogate them for more."
	case IntentPreference:
		return "The user is expressing a preference. Acknowledge it warmly and let it shape future suggestions."
	case IntentFactPreference:
		return "The user is introducing themselves with both a fact and a preference. Greet them by name if given, acknowledge both, and keep it brief."
	case IntentToolUse:
		return "The user wants something done that likely needs a tool. Pick the single best tool and call it; only answer directly if no tool fits."
	case IntentEmotionalSupport:
		return "The user needs emotional support. Lead with empathy, validate the feeling, and avoid jumping to fixes unless asked."
	case IntentTask:
		return "The user is asking for help with a concrete task. Be structured and practical; break the work into clear steps."
	case IntentSmalltalk:
		return "The user is making casual conversation. Be warm and natural; keep the reply short."
	case IntentNone:
		return ""
	default:
		return ""
	}
}

// Cascade layers, recorded on every decision for the timeline.
const (
	LayerRules      = "rules"
	LayerClassifier = "classifier"
	LayerFallback   = "fallback"
)

// Decision is the outcome of intent resolution for one input.
type Decision struct {
	Intent      Intent  `json:"intent"`
	Confidence  float64 `json:"confidence"`
	Layer       string  `json:"layer"`
	MatchedRule string  `json:"matched_rule,omitempty"`
}
