package payments

import (
	"sync"
)

// LockManager manages per-session locks to prevent concurrent reconciliation
// of the same checkout session while allowing parallel processing of
// different sessions. The status poll and the webhook handler both serialize
// on the session lock before reading or writing payment state.
type LockManager struct {
	locks sync.Map // map[string]*sync.Mutex
}

// NewLockManager creates a new lock manager
func NewLockManager() *LockManager {
	return &LockManager{}
}

// LockSession acquires a lock for the given checkout session ID.
// Returns a function that must be called to release the lock.
func (lm *LockManager) LockSession(sessionID string) func() {
	lockInterface, _ := lm.locks.LoadOrStore(sessionID, &sync.Mutex{})
	lock, ok := lockInterface.(*sync.Mutex)
	if !ok {
		// This should never happen if we only store *sync.Mutex values
		panic("unexpected type in lock manager")
	}

	lock.Lock()

	return func() {
		lock.Unlock()
	}
}

// CleanupLocks removes locks that are not currently held. It can be called
// periodically to bound memory usage when many sessions have been seen.
func (lm *LockManager) CleanupLocks() {
	lm.locks.Range(func(key, value any) bool {
		lock, ok := value.(*sync.Mutex)
		if !ok {
			return true
		}
		// Try to acquire the lock without blocking
		if lock.TryLock() {
			// If we can acquire it, it's not in use, so we can remove it
			lock.Unlock()
			lm.locks.Delete(key)
		}
		return true
	})
}
