package wishlist

import (
	"sync"

	"tophome-storefront/internal/domain"
)

// idLocks hands out one mutex per product id. Entries are reference counted
// and dropped once no goroutine holds or waits on them.
type idLocks struct {
	mu    sync.Mutex
	locks map[domain.ProductID]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func newIDLocks() *idLocks {
	return &idLocks{locks: make(map[domain.ProductID]*idLock)}
}

// Lock blocks until id is free and returns the matching unlock func
func (l *idLocks) Lock(id domain.ProductID) (unlock func()) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &idLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *idLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
