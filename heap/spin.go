package heap

import (
	"runtime"
	"sync/atomic"
)

// spinLock is a busy-wait mutex. Critical sections are a free-list search or
// splice, so a waiter yields its P and retries rather than parking.
type spinLock struct {
	held atomic.Bool
}

func (l *spinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	if !l.held.Swap(false) {
		panic("heap: unlock of unlocked spinLock")
	}
}
