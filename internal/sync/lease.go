package sync

import "sync/atomic"

// DrainLease serializes queue drains. The poll timer, the health monitor
// and manual triggers can all request a drain at the same moment; only
// one wins and the rest coalesce into the next cycle.
type DrainLease struct {
	held atomic.Bool
}

// TryAcquire takes the lease if it is free. Returns false when a drain is
// already running.
func (l *DrainLease) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the lease.
func (l *DrainLease) Release() {
	l.held.Store(false)
}

// Held reports whether a drain is in progress.
func (l *DrainLease) Held() bool {
	return l.held.Load()
}
