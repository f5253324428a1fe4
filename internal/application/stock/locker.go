package stock

import (
	"context"
	"slices"
	"sync"
)

// KeyLocker serializes critical sections by name. Lock acquires every name
// in sorted order and returns a function that releases them all. Lock must
// honor ctx while waiting.
type KeyLocker interface {
	Lock(ctx context.Context, names ...string) (unlock func(), err error)
}

// MemoryKeyLocker is a process-local KeyLocker. Entries are reference
// counted and removed once nobody holds or waits for them.
type MemoryKeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewMemoryKeyLocker creates an empty lock table
func NewMemoryKeyLocker() *MemoryKeyLocker {
	return &MemoryKeyLocker{locks: make(map[string]*keyLock)}
}

// Lock implements KeyLocker
func (l *MemoryKeyLocker) Lock(ctx context.Context, names ...string) (func(), error) {
	ordered := SortedNames(names)
	held := make([]string, 0, len(ordered))
	for _, name := range ordered {
		if err := l.acquire(ctx, name); err != nil {
			l.releaseAll(held)
			return nil, err
		}
		held = append(held, name)
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(held) })
	}, nil
}

// Len returns the number of live entries, for tests
func (l *MemoryKeyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *MemoryKeyLocker) acquire(ctx context.Context, name string) error {
	l.mu.Lock()
	kl, ok := l.locks[name]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[name] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.unref(name, kl)
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *MemoryKeyLocker) releaseAll(held []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(held) - 1; i >= 0; i-- {
		kl := l.locks[held[i]]
		<-kl.sem
		l.unref(held[i], kl)
	}
}

func (l *MemoryKeyLocker) unref(name string, kl *keyLock) {
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, name)
	}
}

// SortedNames deduplicates and sorts lock names
func SortedNames(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}

var _ KeyLocker = (*MemoryKeyLocker)(nil)
