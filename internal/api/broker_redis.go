package api

import (
    "context"
    "encoding/json"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every replica sees
// every user's events.
type RedisBroker struct {
    rdb *redis.Client
    log *zap.Logger

    mu   sync.Mutex
    subs map[chan Event]*redis.PubSub
}

func NewRedisBroker(url string, log *zap.Logger) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    if log == nil { log = zap.NewNop() }
    return &RedisBroker{rdb: redis.NewClient(opt), log: log, subs: map[chan Event]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(userID string) chan Event {
    ch := make(chan Event, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(userID))
    // wait for the subscription confirmation so no publish is missed
    if _, err := ps.Receive(ctx); err != nil {
        b.log.Warn("redis subscribe failed", zap.String("user_id", userID), zap.Error(err))
    }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    msgs := ps.Channel()
    go func() {
        for msg := range msgs {
            var evt Event
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
                continue
            }
            b.mu.Lock()
            if _, live := b.subs[ch]; live {
                select { case ch <- evt: default: }
            }
            b.mu.Unlock()
        }
    }()
    return ch
}

func (b *RedisBroker) Unsubscribe(userID string, ch chan Event) {
    b.mu.Lock()
    ps, ok := b.subs[ch]
    delete(b.subs, ch)
    if ok { close(ch) }
    b.mu.Unlock()
    if ok { _ = ps.Close() }
}

func (b *RedisBroker) Publish(userID string, evt Event) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    if err := b.rdb.Publish(ctx, b.chanName(userID), data).Err(); err != nil {
        b.log.Warn("redis publish failed", zap.String("type", evt.Type), zap.Error(err))
    }
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func (b *RedisBroker) chanName(userID string) string { return "prospector:events:" + userID }
