// Package callback implements the single global callback dispatcher: a
// producer/consumer queue, drained by one dedicated goroutine, that
// coalesces per-(profile,kind) status-change callbacks for profiles
// opted into debouncing and spawns each survivor as a subprocess with
// its payload on stdin.
package callback

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/midi-macros/midi-macros/internal/mmlog"
)

// Kind distinguishes the status-change classes a profile can observe.
type Kind string

const (
	KindEnabled        Kind = "enabled"
	KindVirtualSustain Kind = "virtual-sustain"
	KindSubprofile     Kind = "subprofile"
)

// Callback is one queued notification: Payload is written verbatim to
// ScriptPath's stdin ("enabled"/"disabled" for toggles, the subprofile
// name for subprofile changes).
type Callback struct {
	Profile    string
	Kind       Kind
	Payload    string
	ScriptPath string
}

type coalesceKey struct {
	profile string
	kind    Kind
}

// queue is an unbounded MPSC FIFO with a drain-everything-available
// step, mirroring internal/worker's invocation queue.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Callback
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(cb Callback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, cb)
	q.cond.Signal()
}

// drain blocks until at least one item is queued or the queue is
// closed, then returns every item queued so far.
func (q *queue) drain() (batch []Callback, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	batch, q.items = q.items, nil
	return batch, q.closed && len(batch) == 0
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Dispatcher owns the global callback queue and its drain loop.
type Dispatcher struct {
	q              *queue
	shouldDebounce func(profile string) bool
	done           chan struct{}
}

// New constructs a Dispatcher. shouldDebounce reports, per profile,
// whether that profile's DEBOUNCE_CALLBACKS setting is on.
func New(shouldDebounce func(profile string) bool) *Dispatcher {
	return &Dispatcher{q: newQueue(), shouldDebounce: shouldDebounce, done: make(chan struct{})}
}

// Enqueue never blocks.
func (d *Dispatcher) Enqueue(cb Callback) {
	d.q.push(cb)
}

// Run drives the drain loop until Stop is called. It is meant to run
// in its own goroutine for the process's lifetime.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		batch, closed := d.q.drain()
		if closed {
			return
		}
		for _, cb := range d.coalesce(batch) {
			d.spawn(ctx, cb)
		}
	}
}

// coalesce keeps, for each (profile,kind) belonging to a debouncing
// profile, only the last callback in the batch; every other callback
// (including all callbacks of non-debouncing profiles) passes through
// in original order.
func (d *Dispatcher) coalesce(batch []Callback) []Callback {
	lastIdx := map[coalesceKey]int{}
	for i, cb := range batch {
		if d.shouldDebounce != nil && d.shouldDebounce(cb.Profile) {
			lastIdx[coalesceKey{cb.Profile, cb.Kind}] = i
		}
	}
	out := make([]Callback, 0, len(batch))
	for i, cb := range batch {
		if d.shouldDebounce != nil && d.shouldDebounce(cb.Profile) {
			if lastIdx[coalesceKey{cb.Profile, cb.Kind}] != i {
				continue
			}
		}
		out = append(out, cb)
	}
	return out
}

func (d *Dispatcher) spawn(ctx context.Context, cb Callback) {
	if cb.ScriptPath == "" {
		return
	}
	cmd := exec.Command(cb.ScriptPath)
	cmd.Stdin = strings.NewReader(cb.Payload)
	if err := cmd.Run(); err != nil {
		mmlog.Errorf(mmlog.With(ctx, cb.Profile, ""), "callback %s failed: %v", cb.ScriptPath, err)
	}
}

// Stop closes the queue; Run drains whatever is already queued, then
// returns.
func (d *Dispatcher) Stop() {
	d.q.close()
	<-d.done
}
