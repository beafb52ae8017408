package workflow

import (
	"context"
	"fmt"
	"sync"
)

// pageLocks はページ単位の排他ロックです。ページ生成とパネルの再生成で共有します。
// 待機は ctx で中断でき、使われなくなったエントリは解放されます。
type pageLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newPageLocks() *pageLocks {
	return &pageLocks{entries: make(map[string]*lockEntry)}
}

func pageKey(jobID string, pageNumber int) string {
	return fmt.Sprintf("%s:%d", jobID, pageNumber)
}

// Lock は key のロックを取得し、解放関数を返します。解放関数は何度呼んでも構いません。
func (l *pageLocks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.ch
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}
}

func (l *pageLocks) release(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size は保持中のエントリ数です。
func (l *pageLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
