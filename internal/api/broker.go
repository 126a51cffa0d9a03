package api

import (
    "sync"
)

// SSEEvent is one session-scoped event fanned out to SSE/WS observers
// and to the extension session's own feed.
type SSEEvent struct {
    Type string
    Data map[string]any
}

// Session event types published on the broker.
const (
    EventDestinationUpdated = "destination.updated"
    EventCartUpdated        = "cart.updated"
    EventStateChanged       = "state.changed"
    EventDecisionMade       = "decision.made"
)

type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan SSEEvent]struct{} // sessionId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(sessionID string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[sessionID] == nil { b.subs[sessionID] = map[chan SSEEvent]struct{}{} }
    b.subs[sessionID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan SSEEvent) {
    b.mu.Lock()
    if m := b.subs[sessionID]; m != nil {
        delete(m, ch)
        if len(m) == 0 { delete(b.subs, sessionID) }
    }
    b.mu.Unlock()
    close(ch)
}

func (b *Broker) Publish(sessionID string, evt SSEEvent) {
    b.mu.Lock()
    m := b.subs[sessionID]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
