package indexer

import "sync/atomic"

// IndexLock is a non-blocking lock guarding a backfill run
type IndexLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire takes the lock if no run is active
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release ends the current run. Only the holder may call it.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// Running reports whether a run currently holds the lock
func (l *IndexLock) Running() bool {
	return l.state.Load() == 1
}
