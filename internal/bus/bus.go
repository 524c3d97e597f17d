// Package bus provides the async event bus between the orchestration
// core and its front ends.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/daijinru/wenko/internal/timeline"
)

// Reply is an assistant message headed for the user.
type Reply struct {
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// HumanRequest asks the user to approve or deny a suspended step.
type HumanRequest struct {
	ConversationID string    `json:"conversation_id"`
	RequestID      string    `json:"request_id"`
	Tool           string    `json:"tool"`
	Reason         string    `json:"reason"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// TransitionEvent carries one transition record together with its
// humanized narrative so subscribers never re-derive phrasing.
type TransitionEvent struct {
	Record    timeline.TransitionRecord `json:"record"`
	Narrative timeline.Narrative        `json:"narrative"`
}

// EventBus decouples the orchestrator from whatever renders its output.
type EventBus struct {
	replies     chan *Reply
	requests    chan *HumanRequest
	transitions chan *TransitionEvent

	mu             sync.RWMutex
	replySubs      []func(*Reply)
	requestSubs    []func(*HumanRequest)
	transitionSubs []func(*TransitionEvent)
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		replies:     make(chan *Reply, 100),
		requests:    make(chan *HumanRequest, 100),
		transitions: make(chan *TransitionEvent, 100),
	}
}

// PublishReply queues an assistant reply for dispatch. Replies reach
// the user through the return value of Step/Resume; the bus copy is an
// observer feed, so it is dropped when the buffer is full rather than
// ever stalling the core.
func (b *EventBus) PublishReply(r *Reply) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	select {
	case b.replies <- r:
	default:
	}
}

// PublishHumanRequest queues a human-channel approval request. The
// request itself is persisted by the suspension store; the bus copy is
// a notification and is dropped when the buffer is full.
func (b *EventBus) PublishHumanRequest(r *HumanRequest) {
	select {
	case b.requests <- r:
	default:
	}
}

// PublishTransition queues a transition event. Drops the event when the
// buffer is full so a slow observer can never stall the core.
func (b *EventBus) PublishTransition(e *TransitionEvent) {
	select {
	case b.transitions <- e:
	default:
	}
}

// SubscribeReplies registers a callback for assistant replies.
func (b *EventBus) SubscribeReplies(cb func(*Reply)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replySubs = append(b.replySubs, cb)
}

// SubscribeHumanRequests registers a callback for approval requests.
func (b *EventBus) SubscribeHumanRequests(cb func(*HumanRequest)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requestSubs = append(b.requestSubs, cb)
}

// SubscribeTransitions registers a callback for the transition stream.
func (b *EventBus) SubscribeTransitions(cb func(*TransitionEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionSubs = append(b.transitionSubs, cb)
}

// Dispatch runs the dispatcher until the context is cancelled.
// This should be run as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-b.replies:
			b.mu.RLock()
			subs := b.replySubs
			b.mu.RUnlock()
			for _, cb := range subs {
				cb(r)
			}
		case r := <-b.requests:
			b.mu.RLock()
			subs := b.requestSubs
			b.mu.RUnlock()
			for _, cb := range subs {
				cb(r)
			}
		case e := <-b.transitions:
			b.mu.RLock()
			subs := b.transitionSubs
			b.mu.RUnlock()
			for _, cb := range subs {
				cb(e)
			}
		}
	}
}

// PendingReplies returns the number of undispatched replies.
func (b *EventBus) PendingReplies() int {
	return len(b.replies)
}
