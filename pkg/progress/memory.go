package progress

import (
	"context"
	"log/slog"
	"sync"
)

const subscriberBuffer = 32

// MemoryBroker はプロセス内で完結するブローカーです。
// 受信側が詰まっている場合はイベントを捨て、送信側をブロックしません。
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[chan Event]struct{}
	closed bool
}

// NewMemoryBroker は MemoryBroker を初期化します。
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[chan Event]struct{})}
}

// Publish は topic の現在の購読者全員にイベントを配信します。
func (b *MemoryBroker) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.topics[topic] {
		select {
		case ch <- event:
		default:
			slog.WarnContext(ctx, "Progress subscriber is full, dropping event", "topic", topic, "stage", event.Stage)
		}
	}
	return nil
}

// Subscribe は topic を購読します。
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return newSubscription(ch, func() {}), nil
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[chan Event]struct{})
	}
	b.topics[topic][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	sub := newSubscription(ch, func() { close(done) })
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		b.unsubscribe(topic, ch)
	}()
	return sub, nil
}

func (b *MemoryBroker) unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[topic]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// Close はすべての購読を閉じます。
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.topics {
		for ch := range subs {
			close(ch)
		}
		delete(b.topics, topic)
	}
	b.closed = true
	return nil
}
