package core

import "sync"

// identityLocks hands out one mutex per username. Entries are reference
// counted and dropped once no goroutine holds or waits for them.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*identityLock)}
}

// lock blocks until the username's mutex is held and returns its release func.
func (l *identityLocks) lock(username string) func() {
	l.mu.Lock()
	il, ok := l.locks[username]
	if !ok {
		il = &identityLock{}
		l.locks[username] = il
	}
	il.refs++
	l.mu.Unlock()

	il.Lock()
	return func() {
		il.Unlock()

		l.mu.Lock()
		il.refs--
		if il.refs == 0 {
			delete(l.locks, username)
		}
		l.mu.Unlock()
	}
}

func (l *identityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
