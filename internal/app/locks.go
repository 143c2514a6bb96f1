package app

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// accountLocks hands out one mutex per account id. Entries are reference
// counted and dropped once no transfer holds or waits on them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uuid.UUID]*accountLock)}
}

// acquire locks every id in ascending order and returns the release func.
// Duplicate ids are locked once.
func (l *accountLocks) acquire(ids ...uuid.UUID) func() {
	ordered := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	held := make([]*accountLock, 0, len(ordered))
	for _, id := range ordered {
		lock := l.ref(id)
		lock.mu.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.unref(ordered[i])
		}
	}
}

func (l *accountLocks) ref(id uuid.UUID) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &accountLock{}
		l.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (l *accountLocks) unref(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock := l.locks[id]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
