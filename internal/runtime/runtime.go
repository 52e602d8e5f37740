// Package runtime bundles the two process-level singletons (the lock
// registry and the callback dispatcher) into one explicit value passed
// into each listener, instead of hidden package globals.
package runtime

import (
	"context"

	"github.com/midi-macros/midi-macros/internal/callback"
	"github.com/midi-macros/midi-macros/internal/locks"
)

// Runtime is constructed once at process startup and shared by every
// listener for the life of the process; config reloads swap listeners,
// never the Runtime.
type Runtime struct {
	Locks     *locks.Registry
	Callbacks *callback.Dispatcher
}

// New constructs a Runtime. shouldDebounce reports whether a given
// profile has opted into DEBOUNCE_CALLBACKS.
func New(shouldDebounce func(profile string) bool) *Runtime {
	return &Runtime{
		Locks:     locks.New(),
		Callbacks: callback.New(shouldDebounce),
	}
}

// Start launches the callback dispatcher's drain loop in its own
// goroutine.
func (r *Runtime) Start(ctx context.Context) {
	go r.Callbacks.Run(ctx)
}

// Stop drains and stops the callback dispatcher.
func (r *Runtime) Stop() {
	r.Callbacks.Stop()
}
