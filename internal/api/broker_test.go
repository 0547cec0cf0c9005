package api

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/goleak"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    defer goleak.VerifyNone(t, ignoreDepInit)
    b := NewBroker()
    ch := b.Subscribe("rep-1")
    other := b.Subscribe("rep-2")

    evt := Event{Type: EventNoteAdded, Data: map[string]any{"accountId": "a1"}}
    b.Publish("rep-1", evt)

    select {
    case got := <-ch:
        assert.Equal(t, evt, got)
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }
    select {
    case got := <-other:
        t.Fatalf("event leaked to another user: %+v", got)
    default:
    }

    b.Unsubscribe("rep-1", ch)
    _, ok := <-ch
    assert.False(t, ok, "channel should be closed after unsubscribe")
    // a second unsubscribe is a no-op
    b.Unsubscribe("rep-1", ch)
    b.Unsubscribe("rep-2", other)
    assert.Empty(t, b.subs)
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
    defer goleak.VerifyNone(t, ignoreDepInit)
    b := NewBroker()
    ch := b.Subscribe("rep-1")
    defer b.Unsubscribe("rep-1", ch)
    for i := 0; i < 20; i++ {
        b.Publish("rep-1", Event{Type: EventAccountUpdated, Data: map[string]any{"i": i}})
    }
    require.Len(t, ch, cap(ch))
}

// ignoreDepInit skips the goroutine that go.opencensus.io starts from its own
// init() (pulled in transitively via google.golang.org/genai); it is not
// created by the code under test.
var ignoreDepInit = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")
