package sync

import (
	"sync"
)

// KeyLock manages named mutexes for granular locking, one per key. Entries
// are kept for the life of the process; PR slugs are few enough that this
// does not matter.
type KeyLock struct {
	locks sync.Map
}

// NewKeyLock creates a new KeyLock instance
func NewKeyLock() *KeyLock {
	return &KeyLock{}
}

// Lock acquires the lock for the given key, creating it on first use.
func (l *KeyLock) Lock(key string) {
	val, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	val.(*sync.Mutex).Lock()
}

// Unlock releases the lock for the given key.
func (l *KeyLock) Unlock(key string) {
	val, ok := l.locks.Load(key)
	if !ok {
		return
	}
	val.(*sync.Mutex).Unlock()
}

// TryLock attempts to acquire the lock, returning true if successful.
func (l *KeyLock) TryLock(key string) bool {
	val, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	return val.(*sync.Mutex).TryLock()
}
