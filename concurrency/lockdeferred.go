package concurrency

import (
	xsync "github.com/anacrolix/sync"
)

// lockWithDeferreds wraps a RWMutex and runs deferred actions on Unlock.
// WeakMap uses it so that eviction bookkeeping (logging, the value's own
// OnEvicted hook) can be scheduled while the map lock is held but only
// actually run once it's released — never across the lock that guards
// the invariant being reported on.
type lockWithDeferreds struct {
	internal      xsync.RWMutex
	unlockActions []func()
}

func (me *lockWithDeferreds) Lock() {
	me.internal.Lock()
}

func (me *lockWithDeferreds) Unlock() {
	actions := me.unlockActions
	me.unlockActions = nil
	me.internal.Unlock()
	runUnlockActions(actions)
}

func (me *lockWithDeferreds) RLock() {
	me.internal.RLock()
}

func (me *lockWithDeferreds) RUnlock() {
	me.internal.RUnlock()
}

// Defer schedules an action to run when the lock is unlocked.
func (me *lockWithDeferreds) Defer(action func()) {
	me.unlockActions = append(me.unlockActions, action)
}

// runUnlockActions runs the actions taken from the lock by Unlock, in the
// order they were deferred, after the lock has been released.
func runUnlockActions(actions []func()) {
	for _, action := range actions {
		action()
	}
}
