// Package emotion derives a tone signal from user text.
//
// The signal only ever reaches the LLM as a prompt fragment. It exposes
// no category or score accessors, so business logic cannot branch on it.
package emotion

import "strings"

// Signal is an opaque tone reading for one input.
type Signal struct {
	category   string
	confidence float64
	hint       string
}

// PromptFragment returns the modulation text appended to the system
// prompt. Empty for neutral input.
func (s Signal) PromptFragment() string {
	return s.hint
}

// Describe returns a short human-readable description for logs and the
// timeline. It is deliberately fuzzy.
func (s Signal) Describe() string {
	if s.category == "" || s.category == "neutral" {
		return "neutral"
	}
	if s.confidence >= 0.75 {
		return "clearly " + s.category
	}
	return "leaning " + s.category
}

type lexicon struct {
	category string
	hint     string
	strong   []string
	weak     []string
}

var lexicons = []lexicon{
	{
		category: "distressed",
		hint:     "The user sounds upset or stressed. Respond gently, acknowledge the feeling first, and keep suggestions small.",
		strong:   []string{"i can't take", "awful", "terrible", "崩溃", "难受死", "绝望"},
		weak:     []string{"sad", "tired", "stressed", "anxious", "worried", "难过", "好累", "焦虑", "烦"},
	},
	{
		category: "frustrated",
		hint:     "The user seems frustrated. Be direct, skip pleasantries, and get to a concrete answer quickly.",
		strong:   []string{"this is useless", "again?!", "气死", "烦死了"},
		weak:     []string{"annoying", "frustrated", "why won't", "不行吗", "怎么又"},
	},
	{
		category: "excited",
		hint:     "The user sounds enthusiastic. Match the energy and build on their momentum.",
		strong:   []string{"amazing!!", "so excited", "太棒了", "太开心"},
		weak:     []string{"great news", "awesome", "can't wait", "开心", "期待"},
	},
}

// Analyze scans the text against small keyword lexicons and returns a
// tone signal. Unknown or flat text yields a neutral signal whose
// fragment is empty.
func Analyze(text string) Signal {
	lower := strings.ToLower(text)
	best := Signal{category: "neutral"}
	for _, lex := range lexicons {
		score := 0.0
		for _, kw := range lex.strong {
			if strings.Contains(lower, kw) {
				score += 0.5
			}
		}
		for _, kw := range lex.weak {
			if strings.Contains(lower, kw) {
				score += 0.3
			}
		}
		if score == 0 {
			continue
		}
		if score > 0.9 {
			score = 0.9
		}
		if score > best.confidence {
			best = Signal{category: lex.category, confidence: score, hint: lex.hint}
		}
	}
	return best
}
