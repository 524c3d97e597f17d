// Package input normalizes heterogeneous user inputs into semantic form.
package input

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the modality of a raw input.
type Kind string

// Supported input kinds.
const (
	KindText    Kind = "text"
	KindImage   Kind = "image"
	KindUIEvent Kind = "ui_event"
)

// ErrUnsupportedInputKind is returned for input kinds the normalizer
// does not understand. Callers surface it to the user instead of
// guessing at the payload.
var ErrUnsupportedInputKind = errors.New("unsupported input kind")

// Raw is an input exactly as a front end delivered it.
type Raw struct {
	Kind     Kind           `json:"kind"`
	Text     string         `json:"text,omitempty"`
	MediaRef string         `json:"media_ref,omitempty"`
	Event    map[string]any `json:"event,omitempty"`
}

// Attachment references a non-text payload carried alongside the text.
type Attachment struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

// SemanticInput is the normalized form every downstream node consumes.
// DeclaredIntent is set only when the source carries an explicit intent,
// e.g. a UI button wired to a specific action.
type SemanticInput struct {
	Text           string       `json:"text"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	DeclaredIntent string       `json:"declared_intent,omitempty"`
}

// Normalize converts a raw input into semantic form.
// Unknown kinds yield ErrUnsupportedInputKind.
func Normalize(raw Raw) (*SemanticInput, error) {
	switch raw.Kind {
	case KindText:
		return &SemanticInput{Text: strings.TrimSpace(raw.Text)}, nil
	case KindImage:
		sem := &SemanticInput{Text: strings.TrimSpace(raw.Text)}
		if raw.MediaRef != "" {
			sem.Attachments = append(sem.Attachments, Attachment{Kind: "image", Ref: raw.MediaRef})
		}
		if sem.Text == "" {
			sem.Text = "[the user shared an image]"
		}
		return sem, nil
	case KindUIEvent:
		return normalizeUIEvent(raw.Event)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedInputKind, raw.Kind)
	}
}

// normalizeUIEvent flattens a structured UI event into a text description.
// An "intent" field on the event becomes the declared intent, which lets
// the cascade skip classification entirely.
func normalizeUIEvent(event map[string]any) (*SemanticInput, error) {
	if len(event) == 0 {
		return nil, fmt.Errorf("%w: empty ui_event", ErrUnsupportedInputKind)
	}
	sem := &SemanticInput{}
	if v, ok := event["intent"].(string); ok {
		sem.DeclaredIntent = strings.TrimSpace(v)
	}
	if v, ok := event["text"].(string); ok && strings.TrimSpace(v) != "" {
		sem.Text = strings.TrimSpace(v)
		return sem, nil
	}

	action, _ := event["action"].(string)
	if action == "" {
		action = "interaction"
	}
	var parts []string
	keys := make([]string, 0, len(event))
	for k := range event {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "intent" || k == "action" || k == "text" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, event[k]))
	}
	sem.Text = "[ui] " + action
	if len(parts) > 0 {
		sem.Text += " " + strings.Join(parts, " ")
	}
	return sem, nil
}
