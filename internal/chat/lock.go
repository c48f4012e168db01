package chat

import (
	"context"
	"sync"
)

type conversationLock struct {
	sem  chan struct{}
	refs int
}

// conversationLocks serializes turns per conversation id.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*conversationLock)}
}

// lock blocks until id is free or ctx is done. The returned release func is
// safe to call more than once.
func (l *conversationLocks) lock(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	lock := l.locks[id]
	if lock == nil {
		lock = &conversationLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(id, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.unref(id, lock)
		})
	}, nil
}

func (l *conversationLocks) unref(id string, lock *conversationLock) {
	l.mu.Lock()
	lock.refs--
	if lock.refs <= 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

func (l *conversationLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
