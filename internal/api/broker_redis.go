package api

import (
    "context"
    "encoding/json"
    "os"
    "time"

    redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
    Subscribe(sessionID string) chan SSEEvent
    Unsubscribe(sessionID string, ch chan SSEEvent)
    Publish(sessionID string, evt SSEEvent)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub, so session
// events reach subscribers on any replica.
type RedisBroker struct {
    rdb *redis.Client
}

func NewRedisBroker() (*RedisBroker, error) {
    url := os.Getenv("REDIS_URL")
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    return &RedisBroker{rdb: rdb}, nil
}

func (b *RedisBroker) Subscribe(sessionID string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(sessionID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    go func() {
        for msg := range ps.Channel() {
            var evt SSEEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(sessionID string, ch chan SSEEvent) {
    // closing channel suffices; the fanout goroutine exits when the
    // PubSub channel closes on connection loss
    close(ch)
}

func (b *RedisBroker) Publish(sessionID string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(sessionID), data).Err()
}

func (b *RedisBroker) chanName(sessionID string) string { return "session:" + sessionID }
