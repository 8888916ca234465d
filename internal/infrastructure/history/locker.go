package history

import (
	"context"
	"sync"

	"github.com/malan-ai/malan-server/internal/domain/conversation"
)

// LocalLocker serializes turns per conversation id within one process.
// Entries are dropped once no goroutine holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

var _ conversation.Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until id is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, id string) (conversation.Unlock, error) {
	l.mu.Lock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.release(id, lk)
		})
	}, nil
}

func (l *LocalLocker) release(id string, lk *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
