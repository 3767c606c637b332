package concurrency

import "sync"

// SessionLocks serializes work per session id. Entries are dropped once no
// goroutine holds or waits on them, so the map does not grow with every
// session ever seen.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{
		locks: make(map[string]*sessionLock),
	}
}

func (m *SessionLocks) Lock(sessionID string) {
	m.mu.Lock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		m.locks[sessionID] = lock
	}
	lock.refs++
	m.mu.Unlock()
	lock.mu.Lock()
}

func (m *SessionLocks) Unlock(sessionID string) {
	m.mu.Lock()
	lock, ok := m.locks[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(m.locks, sessionID)
	}
	m.mu.Unlock()
	lock.mu.Unlock()
}

// With runs fn while holding the lock for sessionID.
func (m *SessionLocks) With(sessionID string, fn func() error) error {
	m.Lock(sessionID)
	defer m.Unlock(sessionID)
	return fn()
}

// Len reports how many session ids are currently held or awaited.
func (m *SessionLocks) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
