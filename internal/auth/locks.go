package auth

import "sync"

// UserLocks hands out one mutex per user id, created on demand. It replaces
// any global lock: operations on different users never block each other.
type UserLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewUserLocks creates an empty lock registry.
func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for a user, creating it if needed. Locks are never
// removed; the per-user footprint is one mutex.
func (l *UserLocks) Get(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[userID]
	if !ok {
		lk = &sync.Mutex{}
		l.locks[userID] = lk
	}
	return lk
}
