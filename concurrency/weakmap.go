package concurrency

import (
	"sync/atomic"

	"github.com/anacrolix/log"
	"github.com/anacrolix/missinggo/v2/panicif"
	"github.com/elliotchance/orderedmap"
)

// WeakMap is a coalescing registry: at most one live entry per key at
// any instant. get_or_insert's factory runs at most once per miss, and
// racing callers for the same key converge on the same StrongHandle.
//
// Go has no RAII drop, so "weak ownership, freed on last strong drop" is
// modeled explicitly: every StrongHandle returned by GetOrInsert/Get
// must eventually have Release called on it (callers typically `defer
// h.Release()`), and the backing entry is removed from the map exactly
// when a Release brings its refcount to zero, rather than waiting on GC.
// This follows the strategy sketched for languages without weak handles:
// a refcounted cell plus a drop guard that removes the key under the
// map's lock.
type WeakMap[K comparable, V any] struct {
	lock    lockWithDeferreds
	logger  log.Logger
	entries *orderedmap.OrderedMap[K, *weakEntry[V]]
}

type weakEntry[V any] struct {
	refCount int64 // atomic; 0 means "being removed, do not hand out"
	val      V
}

// StrongHandle is a live reference to a WeakMap entry. The zero value is
// not usable; obtain one from GetOrInsert or Get.
type StrongHandle[V any] struct {
	Value   V
	release func()
	once    int32 // guards against double Release
}

// Release drops this strong reference. It is safe, but redundant, to
// call more than once.
func (h *StrongHandle[V]) Release() {
	if atomic.CompareAndSwapInt32(&h.once, 0, 1) {
		h.release()
	}
}

// NewWeakMap returns an empty WeakMap that logs entry evictions at
// logger's default level.
func NewWeakMap[K comparable, V any](logger log.Logger) *WeakMap[K, V] {
	return &WeakMap[K, V]{
		entries: orderedmap.NewOrderedMap[K, *weakEntry[V]](),
		logger:  logger,
	}
}

// GetOrInsert returns a strong handle to the unique live entry for k,
// building one via factory iff none exists. factory is invoked at most
// once per miss, under the map's lock, so two concurrent misses for the
// same key never both construct a value.
func (m *WeakMap[K, V]) GetOrInsert(k K, factory func() V) *StrongHandle[V] {
	m.lock.Lock()
	defer m.lock.Unlock()

	if e, ok := m.entries.Get(k); ok && tryAcquire(e) {
		return m.handleFor(k, e)
	}
	e := &weakEntry[V]{refCount: 1, val: factory()}
	m.entries.Set(k, e)
	return m.handleFor(k, e)
}

// Get upgrades the weak handle for k if an entry is still live, else
// reports false.
func (m *WeakMap[K, V]) Get(k K) (*StrongHandle[V], bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	e, ok := m.entries.Get(k)
	if !ok || !tryAcquire(e) {
		return nil, false
	}
	return m.handleFor(k, e), true
}

// tryAcquire takes one more strong reference on e unless its refcount
// has already reached zero, in which case e is being removed and is not
// handed out again.
func tryAcquire[V any](e *weakEntry[V]) bool {
	for {
		n := atomic.LoadInt64(&e.refCount)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&e.refCount, n, n+1) {
			return true
		}
	}
}

// Len reports the number of live entries, for tests.
func (m *WeakMap[K, V]) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.entries.Len()
}

func (m *WeakMap[K, V]) handleFor(k K, e *weakEntry[V]) *StrongHandle[V] {
	return &StrongHandle[V]{
		Value: e.val,
		release: func() {
			m.releaseEntry(k, e)
		},
	}
}

func (m *WeakMap[K, V]) releaseEntry(k K, e *weakEntry[V]) {
	if atomic.AddInt64(&e.refCount, -1) > 0 {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	panicif.NotEq(atomic.LoadInt64(&e.refCount), int64(0))
	// The entry may have already been replaced by a fresh GetOrInsert
	// miss between our refcount hitting zero and acquiring the lock; only
	// remove it if it's still the same one we're dropping.
	if cur, ok := m.entries.Get(k); ok && cur == e {
		m.entries.Delete(k)
		// Deferred so neither the eviction log line nor the value's own
		// eviction hook ever runs while the map lock is held.
		m.lock.Defer(func() {
			m.logger.Printf("weakmap: evicted %v", k)
			if ev, ok := any(e.val).(evictable); ok {
				ev.OnEvicted()
			}
		})
	}
}

// evictable is implemented by WeakMap values that need to know the
// instant their last strong handle is released, e.g. to stop a
// background task supervising them. Implementing it is optional; most
// WeakMap[K, V] instantiations don't need it.
type evictable interface {
	OnEvicted()
}
