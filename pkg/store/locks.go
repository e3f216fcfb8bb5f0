package store

import "sync"

// keyLocks hands out one RWMutex per key. Entries are reference counted and
// removed when the last holder releases, so the table does not grow with the
// number of keys ever touched.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock

	// name maps a key to the identity it is locked under. Keys that map to
	// the same storage location must share a name. Nil means the key itself.
	name func(string) string
}

type keyLock struct {
	sync.RWMutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (k *keyLocks) id(key string) string {
	if k.name == nil {
		return key
	}
	return k.name(key)
}

func (k *keyLocks) acquire(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyLocks) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock takes the writer lock for key and returns its release function.
func (k *keyLocks) Lock(key string) func() {
	key = k.id(key)
	l := k.acquire(key)
	l.Lock()
	return func() {
		l.Unlock()
		k.release(key, l)
	}
}

// RLock takes the reader lock for key and returns its release function.
func (k *keyLocks) RLock(key string) func() {
	key = k.id(key)
	l := k.acquire(key)
	l.RLock()
	return func() {
		l.RUnlock()
		k.release(key, l)
	}
}

// size returns the number of live entries.
func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
