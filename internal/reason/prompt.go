package reason

import (
	"strings"

	"github.com/daijinru/wenko/internal/emotion"
	"github.com/daijinru/wenko/internal/intent"
	"github.com/daijinru/wenko/internal/memory"
	"github.com/daijinru/wenko/internal/provider"
	"github.com/daijinru/wenko/internal/session"
)

const basePrompt = `You are wenko, a desktop companion. You are warm, brief, and honest.
You remember what the user tells you about themselves and bring it up only when relevant.
Use a tool when it is the best way to help; otherwise just answer.
Never invent tool results. If a tool fails, say so plainly.`

// buildMessages assembles the system prompt (baseline + intent snippet
// + retrieved memory + tone fragment + concise flag) followed by recent
// history.
func (r *Reasoner) buildMessages(conv *session.Conversation, dec intent.Decision, sig emotion.Signal, facts []memory.Fact) []provider.Message {
	var sb strings.Builder
	sb.WriteString(basePrompt)

	if snippet := dec.Intent.Snippet(); snippet != "" {
		sb.WriteString("\n\n")
		sb.WriteString(snippet)
	}

	if len(facts) > 0 {
		sb.WriteString("\n\nThings you remember about the user:")
		for _, f := range facts {
			sb.WriteString("\n- ")
			sb.WriteString(f.Content)
		}
	}

	if fragment := sig.PromptFragment(); fragment != "" {
		sb.WriteString("\n\n")
		sb.WriteString(fragment)
	}

	if v, ok := conv.GetContext("concise"); ok && v == true {
		sb.WriteString("\n\nThe user recently declined an action. Keep replies short and do not push alternatives.")
	}

	msgs := []provider.Message{{Role: "system", Content: sb.String()}}
	for _, turn := range conv.History(r.historyTurns) {
		msgs = append(msgs, provider.Message{Role: turn.Role, Content: turn.Content})
	}
	return msgs
}
