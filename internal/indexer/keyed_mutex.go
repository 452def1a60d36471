package indexer

import (
	"context"
	"sync"
)

// KeyedMutex is a set of mutexes addressed by key. Locks on different keys
// never contend. Entries are dropped once no holder or waiter remains.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{} // capacity 1; holding the token holds the lock
	refs int           // holders plus waiters
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key, waiting until it is free or ctx is done.
func (km *KeyedMutex) Lock(ctx context.Context, key string) error {
	l := km.acquire(key)

	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		km.release(key)
		return ctx.Err()
	}
}

// TryLock acquires the lock for key only if it is free.
func (km *KeyedMutex) TryLock(key string) bool {
	l := km.acquire(key)

	select {
	case l.sem <- struct{}{}:
		return true
	default:
		km.release(key)
		return false
	}
}

// Unlock releases the lock for key. Unlocking a key that is not locked panics.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	l, ok := km.locks[key]
	km.mu.Unlock()
	if !ok {
		panic("indexer: unlock of unlocked key " + key)
	}

	select {
	case <-l.sem:
	default:
		panic("indexer: unlock of unlocked key " + key)
	}
	km.release(key)
}

// Len returns the number of keys currently held or awaited.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}

// acquire registers interest in key and returns its lock.
func (km *KeyedMutex) acquire(key string) *keyLock {
	km.mu.Lock()
	defer km.mu.Unlock()

	l, ok := km.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		km.locks[key] = l
	}
	l.refs++
	return l
}

// release drops interest in key, removing its entry when unused.
func (km *KeyedMutex) release(key string) {
	km.mu.Lock()
	defer km.mu.Unlock()

	l, ok := km.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
}
