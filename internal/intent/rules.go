package intent

import (
	"strings"

	"github.com/daijinru/wenko/internal/tools"
)

// rule is one layer-1 pattern. Rules fire with confidence 1.0 and
// short-circuit the rest of the cascade.
type rule struct {
	name   string
	intent Intent
	match  func(lower string) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// staticRules are checked in order; the combined self-introduction rule
// sits before its single-signal components so "我叫…我喜欢…" resolves to
// fact_preference rather than fact.
var staticRules = []rule{
	{
		name:   "self_intro_fact_preference",
		intent: IntentFactPreference,
		match: func(s string) bool {
			return containsAny(s, "我叫", "我是", "my name is") &&
				containsAny(s, "我喜欢", "我爱", "i like", "i love", "i prefer")
		},
	},
	{
		name:   "self_intro_fact",
		intent: IntentFact,
		match: func(s string) bool {
			return containsAny(s, "我叫", "my name is", "i am from", "我来自", "我今年")
		},
	},
	{
		name:   "preference",
		intent: IntentPreference,
		match: func(s string) bool {
			return containsAny(s, "我喜欢", "我爱", "我讨厌", "i like", "i love", "i prefer", "i hate", "my favorite")
		},
	},
	{
		name:   "emotional_support",
		intent: IntentEmotionalSupport,
		match: func(s string) bool {
			return containsAny(s, "i feel so", "i'm so sad", "心情不好", "好难过", "安慰我", "comfort me")
		},
	},
	{
		name:   "greeting_smalltalk",
		intent: IntentSmalltalk,
		match: func(s string) bool {
			trimmed := strings.TrimSpace(s)
			for _, g := range []string{"hi", "hello", "hey", "你好", "早上好", "晚安", "good morning", "good night"} {
				if trimmed == g || strings.HasPrefix(trimmed, g+" ") || strings.HasPrefix(trimmed, g+"!") {
					return true
				}
			}
			return false
		},
	},
}

// compileToolRules builds tool-trigger rules from the registry. Any tool
// that publishes trigger keywords becomes a layer-1 tool_use rule named
// after it.
func compileToolRules(registry *tools.Registry) []rule {
	if registry == nil {
		return nil
	}
	var out []rule
	for _, t := range registry.List() {
		trig, ok := t.(tools.Triggered)
		if !ok {
			continue
		}
		keywords := trig.TriggerKeywords()
		if len(keywords) == 0 {
			continue
		}
		lowered := make([]string, len(keywords))
		for i, kw := range keywords {
			lowered[i] = strings.ToLower(kw)
		}
		out = append(out, rule{
			name:   "tool_trigger:" + t.Name(),
			intent: IntentToolUse,
			match: func(s string) bool {
				return containsAny(s, lowered...)
			},
		})
	}
	return out
}
