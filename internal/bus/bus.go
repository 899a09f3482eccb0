package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// EventBus routes inbound chat events to the moderation core, outbound
// actions back to the channels, and broadcasts server events to gateway
// subscribers. Channel buffers are bounded; publishers block briefly and
// then drop rather than stall the platform event loop.
type EventBus struct {
	inbound     chan ChatEvent
	outbound    chan OutboundAction
	subscribers map[string]EventHandler
	closed      bool
	dropped     droppedCounters
	mu          sync.RWMutex
}

type droppedCounters struct {
	inbound  atomic.Uint64
	outbound atomic.Uint64
}

const publishTimeout = 100 * time.Millisecond

func NewEventBus() *EventBus {
	return &EventBus{
		inbound:     make(chan ChatEvent, 100),
		outbound:    make(chan OutboundAction, 100),
		subscribers: make(map[string]EventHandler),
	}
}

func (eb *EventBus) PublishInbound(ev ChatEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}

	select {
	case eb.inbound <- ev:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case eb.inbound <- ev:
		case <-timer.C:
			eb.dropped.inbound.Add(1)
		}
	}
}

func (eb *EventBus) ConsumeInbound(ctx context.Context) (ChatEvent, bool) {
	select {
	case ev, ok := <-eb.inbound:
		if !ok {
			return ChatEvent{}, false
		}
		return ev, true
	case <-ctx.Done():
		return ChatEvent{}, false
	}
}

func (eb *EventBus) PublishOutbound(act OutboundAction) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}

	select {
	case eb.outbound <- act:
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case eb.outbound <- act:
		case <-timer.C:
			eb.dropped.outbound.Add(1)
		}
	}
}

func (eb *EventBus) SubscribeOutbound(ctx context.Context) (OutboundAction, bool) {
	select {
	case act, ok := <-eb.outbound:
		if !ok {
			return OutboundAction{}, false
		}
		return act, true
	case <-ctx.Done():
		return OutboundAction{}, false
	}
}

// Subscribe registers a broadcast handler under an id. Re-subscribing with
// the same id replaces the previous handler.
func (eb *EventBus) Subscribe(id string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[id] = handler
}

func (eb *EventBus) Unsubscribe(id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.subscribers, id)
}

// Broadcast delivers an event to every subscriber synchronously. Handlers
// must not block; the gateway client wraps delivery in its own send queue.
func (eb *EventBus) Broadcast(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, handler := range eb.subscribers {
		handler(event)
	}
}

func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	close(eb.inbound)
	close(eb.outbound)
}

func (eb *EventBus) DroppedInbound() uint64 {
	return eb.dropped.inbound.Load()
}

func (eb *EventBus) DroppedOutbound() uint64 {
	return eb.dropped.outbound.Load()
}
