package provider

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedProvider replays a fixed sequence of responses. It is used by
// tests and by offline demos where no endpoint is configured.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	errs      []error
	calls     int
	// Requests records every request received, in order.
	Requests []*ChatRequest
}

// NewScriptedProvider creates a provider that returns the given responses
// one at a time. A nil entry paired with an error in Errs yields that error.
func NewScriptedProvider(responses ...*ChatResponse) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// FailWith appends an error response to the script.
func (p *ScriptedProvider) FailWith(err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, nil)
	p.errs = append(p.errs, err)
	return p
}

// DefaultModel returns a stable placeholder model name.
func (p *ScriptedProvider) DefaultModel() string {
	return "scripted"
}

// Calls returns how many chat requests have been served.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Chat returns the next scripted response.
func (p *ScriptedProvider) Chat(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		return nil, fmt.Errorf("scripted provider exhausted after %d responses", len(p.responses))
	}
	if p.responses[idx] == nil {
		errIdx := 0
		for i := 0; i < idx; i++ {
			if p.responses[i] == nil {
				errIdx++
			}
		}
		if errIdx < len(p.errs) {
			return nil, p.errs[errIdx]
		}
		return nil, fmt.Errorf("scripted provider: nil response at %d", idx)
	}
	return p.responses[idx], nil
}
