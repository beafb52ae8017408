package progress

import (
	"context"
	"sync"
)

// Broker は進捗イベントの配信先です。配信は最大1回で、購読前のイベントは再送しません。
type Broker interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	Close() error
}

// Subscription は1つのトピックの購読です。ctx の終了か Close で C が閉じられます。
type Subscription struct {
	C <-chan Event

	once   sync.Once
	cancel func()
}

func newSubscription(c <-chan Event, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Close は購読を終了します。複数回呼んでも安全です。
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}
