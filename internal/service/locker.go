package service

import (
	"context"
	"sync"
)

// CycleLocker grants at most one running cycle per user. TryLock never
// blocks waiting for a holder; ok is false when the user is busy.
type CycleLocker interface {
	TryLock(ctx context.Context, userID int64) (unlock func(), ok bool, err error)
}

// KeyedLocker hands out non-blocking per-key locks inside one process.
type KeyedLocker struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{held: make(map[int64]struct{})}
}

// TryLock acquires key if it is free. The returned func releases it.
func (l *KeyedLocker) TryLock(ctx context.Context, key int64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

type chainLocker []CycleLocker

// ChainLockers takes every locker in order and releases in reverse. When
// one refuses or fails, the ones already taken are released.
func ChainLockers(lockers ...CycleLocker) CycleLocker {
	return chainLocker(lockers)
}

func (c chainLocker) TryLock(ctx context.Context, userID int64) (func(), bool, error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range c {
		unlock, ok, err := l.TryLock(ctx, userID)
		if err != nil || !ok {
			release()
			return nil, false, err
		}
		unlocks = append(unlocks, unlock)
	}
	var once sync.Once
	return func() { once.Do(release) }, true, nil
}
