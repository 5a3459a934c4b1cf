package synctable

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/petermattis/goid"
)

// tableLock is the single whole-table lock.
//
// Go mutexes are not reentrant, but caller-supplied functions run by the
// table (combinators, ForEach, hashers, value equality) may call back into
// the same table. While such a function runs, the holder records its
// goroutine id; acquisition by that goroutine then succeeds without touching
// the mutex. Outside callbacks, depth is zero and lock is a plain Lock, so
// goroutine ids are only looked up while a callback is in progress.
type tableLock struct {
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(struct {
		mu    sync.Mutex
		owner atomic.Int64
		depth atomic.Int32
	}{})%CacheLineSize) % CacheLineSize]byte

	mu    sync.Mutex
	owner atomic.Int64 // goroutine running a callback, 0 if none
	depth atomic.Int32 // callback nesting depth
}

// lock acquires the lock and reports whether the mutex was actually taken.
// It is meant to be used as `defer l.unlock(l.lock())`.
func (l *tableLock) lock() bool {
	if l.depth.Load() != 0 && l.owner.Load() == goid.Get() {
		return false
	}
	l.mu.Lock()
	return true
}

//go:nosplit
func (l *tableLock) unlock(locked bool) {
	if locked {
		l.mu.Unlock()
	}
}

// enter marks the calling goroutine, which must hold the lock, as running
// caller code.
func (l *tableLock) enter() {
	if l.depth.Load() == 0 {
		l.owner.Store(goid.Get())
	}
	l.depth.Add(1)
}

func (l *tableLock) exit() {
	if l.depth.Add(-1) == 0 {
		l.owner.Store(0)
	}
}

// call runs fn as caller code under the held lock. The mark is undone even
// if fn panics.
func (l *tableLock) call(fn func()) {
	l.enter()
	defer l.exit()
	fn()
}
