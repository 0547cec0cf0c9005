package api

import (
    "sync"
)

// Event is one account change pushed to a user's streams.
type Event struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// Event types.
const (
    EventAccountCreated = "account.created"
    EventAccountUpdated = "account.updated"
    EventAccountDeleted = "account.deleted"
    EventStateChanged   = "account.state"
    EventNoteAdded      = "note.added"
    EventNoteDeleted    = "note.deleted"
    EventTierChanged    = "account.tier"
)

// EventBroker fans events out to subscribers of a user's topic.
type EventBroker interface {
    Subscribe(userID string) chan Event
    Unsubscribe(userID string, ch chan Event)
    Publish(userID string, evt Event)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // userID -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(userID string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[userID] == nil { b.subs[userID] = map[chan Event]struct{}{} }
    b.subs[userID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(userID string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[userID]
    if _, ok := m[ch]; !ok {
        return
    }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, userID) }
    close(ch)
}

func (b *Broker) Publish(userID string, evt Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[userID] {
        select { case ch <- evt: default: }
    }
}

// publish sends evt to the user's streams.
func (s *Server) publish(userID, typ string, data map[string]any) {
    if s.Broker == nil {
        return
    }
    s.Broker.Publish(userID, Event{Type: typ, Data: data})
}
