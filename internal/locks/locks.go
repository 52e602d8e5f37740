// Package locks implements the process-wide named reentrant-mutex
// registry: scripts declaring a shared LOCK=name set serialise against
// each other through mutexes created lazily on first use and never
// removed.
//
// Go has no built-in reentrant mutex and no portable notion of "the
// calling thread" to key reentrancy on, so reentrancy is tracked
// through an explicit owner token carried in a context.Context rather
// than goroutine-local state.
package locks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

type ownerKey struct{}

var nextOwner uint64

// NewOwner returns a context carrying a fresh reentrancy token. One
// script invocation (and everything it calls synchronously, including
// nested lock-registry use by the same goroutine) should share one
// owner context.
func NewOwner(ctx context.Context) context.Context {
	id := atomic.AddUint64(&nextOwner, 1)
	return context.WithValue(ctx, ownerKey{}, id)
}

func ownerOf(ctx context.Context) uint64 {
	if id, ok := ctx.Value(ownerKey{}).(uint64); ok {
		return id
	}
	// No owner token present: mint one so a bare context.Background()
	// still behaves like a single non-reentrant acquisition.
	return atomic.AddUint64(&nextOwner, 1)
}

// reentrantMutex is a single named mutex. Acquisitions from the same
// owner nest; acquisitions from a different owner block until the
// count drops to zero.
type reentrantMutex struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner uint64
	count int
}

func newReentrantMutex() *reentrantMutex {
	rm := &reentrantMutex{}
	rm.cond = sync.NewCond(&rm.mu)
	return rm
}

func (rm *reentrantMutex) lock(owner uint64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for rm.count > 0 && rm.owner != owner {
		rm.cond.Wait()
	}
	rm.owner = owner
	rm.count++
}

func (rm *reentrantMutex) unlock(owner uint64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.count == 0 || rm.owner != owner {
		panic("locks: unlock of a reentrant mutex not held by this owner")
	}
	rm.count--
	if rm.count == 0 {
		rm.cond.Broadcast()
	}
}

// Registry is the process-wide name->mutex map. The zero value is not
// usable; construct with New.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*reentrantMutex
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{locks: map[string]*reentrantMutex{}}
}

func (r *Registry) getOrCreate(name string) *reentrantMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.locks[name]
	if !ok {
		rm = newReentrantMutex()
		r.locks[name] = rm
	}
	return rm
}

// Acquire locks every named mutex in the given order (a duplicate name
// is locked again and nests through reentrancy) and returns a release func
// that unlocks them in reverse order. Acquisition order is the order
// names are declared in LOCK=a,b,c; callers must not reorder it
// to avoid introducing deadlocks across scripts that share a lock set
// declared in a different order.
func (r *Registry) Acquire(ctx context.Context, names []string) (release func(), err error) {
	if len(names) == 0 {
		return func() {}, nil
	}
	owner := ownerOf(ctx)
	rms := make([]*reentrantMutex, len(names))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("locks: empty lock name")
		}
		rms[i] = r.getOrCreate(name)
	}
	for _, rm := range rms {
		rm.lock(owner)
	}
	return func() {
		for i := len(rms) - 1; i >= 0; i-- {
			rms[i].unlock(owner)
		}
	}, nil
}

// Names returns every lock name created so far, sorted, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.locks))
	for name := range r.locks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
