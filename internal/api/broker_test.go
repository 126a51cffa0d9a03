package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    sid := "sess1"
    ch := b.Subscribe(sid)

    evt := SSEEvent{Type: EventStateChanged, Data: map[string]any{"checked": true}}
    b.Publish(sid, evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["checked"].(bool) != true { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(sid, ch)
    select {
    case _, ok := <-ch:
        if ok { t.Fatal("channel should be closed after unsubscribe") }
    case <-time.After(50 * time.Millisecond):
        // acceptable if already drained and closed
    }
}

func TestBrokerIsolatesSessions(t *testing.T) {
    b := NewBroker()
    ch1 := b.Subscribe("sess1")
    ch2 := b.Subscribe("sess2")
    defer b.Unsubscribe("sess1", ch1)
    defer b.Unsubscribe("sess2", ch2)

    b.Publish("sess1", SSEEvent{Type: EventCartUpdated, Data: map[string]any{}})

    select {
    case <-ch1:
    case <-time.After(200 * time.Millisecond):
        t.Fatal("subscriber of sess1 missed its event")
    }
    select {
    case evt := <-ch2:
        t.Fatalf("sess2 received foreign event: %+v", evt)
    case <-time.After(50 * time.Millisecond):
    }
}
