package messaging

import "sync"

// threadLocks hands out one mutex per thread root. Entries live only while
// some caller holds or waits on them, so the map never outgrows the number
// of in-flight mutations.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// lock blocks until the mutex for rootID is held and returns its release func.
func (t *threadLocks) lock(rootID string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[rootID]
	if !ok {
		l = &threadLock{}
		t.locks[rootID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, rootID)
		}
		t.mu.Unlock()
	}
}

// size returns the number of live entries.
func (t *threadLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
