package memstore

import (
	"context"
	"sync"
	"time"
)

// LockManager hands out one lock per row key instead of a global lock, so
// units touching different rows never wait on each other.
type LockManager struct {
	rowLocks map[string]chan struct{} // row key → single-slot semaphore
	mapMutex sync.Mutex               // protects the map itself
}

// NewLockManager creates an empty lock table.
func NewLockManager() *LockManager {
	return &LockManager{
		rowLocks: make(map[string]chan struct{}),
	}
}

func (lm *LockManager) slot(key string) chan struct{} {
	lm.mapMutex.Lock()
	defer lm.mapMutex.Unlock()

	if lm.rowLocks[key] == nil {
		lm.rowLocks[key] = make(chan struct{}, 1)
	}
	return lm.rowLocks[key]
}

// Lock waits for the row lock until ctx ends or timeout elapses. It reports
// false when the lock was not acquired.
func (lm *LockManager) Lock(ctx context.Context, key string, timeout time.Duration) bool {
	slot := lm.slot(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case slot <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

// Unlock releases a row lock taken by Lock.
func (lm *LockManager) Unlock(key string) {
	slot := lm.slot(key)
	select {
	case <-slot:
	default:
	}
}
