// Package listener binds one MIDI input port per profile, owns one
// macro trie (and optionally a ring of named subprofile tries), drives
// the press tracker and control-trigger matching, and dispatches
// matched scripts to their workers.
package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/midi-macros/midi-macros/internal/callback"
	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/midimsg"
	"github.com/midi-macros/midi-macros/internal/mmlog"
	"github.com/midi-macros/midi-macros/internal/presstracker"
	"github.com/midi-macros/midi-macros/internal/runtime"
	"github.com/midi-macros/midi-macros/internal/trie"
	"github.com/midi-macros/midi-macros/internal/worker"
)

// SubprofileEntry is one named trie in a listener's subprofile ring.
type SubprofileEntry struct {
	Name string
	Tree *trie.Tree
}

// SubprofileHolder holds subprofile tries by value in a fixed ring; it
// does not own the listener.
type SubprofileHolder struct {
	mu      sync.Mutex
	entries []SubprofileEntry
	index   int
}

// NewSubprofileHolder returns nil if entries is empty: a listener with
// no declared subprofiles has no holder at all.
func NewSubprofileHolder(entries []SubprofileEntry) *SubprofileHolder {
	if len(entries) == 0 {
		return nil
	}
	return &SubprofileHolder{entries: entries}
}

// Current returns the name and trie of the currently selected subprofile.
func (h *SubprofileHolder) Current() (name string, tree *trie.Tree) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entries[h.index]
	return e.Name, e.Tree
}

// Names returns every subprofile name in ring order.
func (h *SubprofileHolder) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, len(h.entries))
	for i, e := range h.entries {
		names[i] = e.Name
	}
	return names
}

// Cycle advances to the next subprofile. On a ring of size 1 this is a
// no-op that reports changed=false.
func (h *SubprofileHolder) Cycle() (name string, changed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) <= 1 {
		return h.entries[h.index].Name, false
	}
	h.index = (h.index + 1) % len(h.entries)
	return h.entries[h.index].Name, true
}

// SetByName selects a subprofile by name. ok is false if no subprofile
// by that name exists; changed is false if it was already current.
func (h *SubprofileHolder) SetByName(name string) (changed, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, e := range h.entries {
		if e.Name == name {
			changed = i != h.index
			h.index = i
			return changed, true
		}
	}
	return false, false
}

// Info is a point-in-time snapshot of a listener's public state.
type Info struct {
	Enabled        bool
	MidiInputPort  string
	Sustain        [16]bool
	VirtualSustain bool
	Subprofiles    []string
	CurrentSubprof string
}

// Listener is one profile's dispatch pipeline: port, press tracker,
// trie, workers.
type Listener struct {
	Profile       string
	PortName      string
	mainTree      *trie.Tree
	subprofiles   *SubprofileHolder
	enableTrigger []macro.Trigger
	cycleTrigger  []macro.Trigger

	enabledCallbackScript        string
	virtualSustainCallbackScript string
	subprofileCallbackScript     string

	runtime *runtime.Runtime
	tracker *presstracker.Tracker

	enabledMu sync.Mutex
	enabled   bool

	workersMu sync.Mutex
	workers   map[*macro.Script]*worker.Worker

	port    drivers.In
	stopFn  func()
	start   time.Time
	logFunc trie.PredicateLogger
}

// Config is the construction-time parameters for one Listener.
type Config struct {
	Profile                      string
	PortName                     string
	MainTree                     *trie.Tree
	Subprofiles                  []SubprofileEntry
	EnableTrigger                []macro.Trigger
	CycleSubprofilesTrigger      []macro.Trigger
	InitiallyEnabled             bool
	VirtualSustainDefault        bool
	EnabledCallbackScript        string
	VirtualSustainCallbackScript string
	SubprofileCallbackScript     string
}

// New constructs a Listener bound to rt for its lock registry and
// callback dispatcher. It does not open the MIDI port; call Start for
// that.
func New(cfg Config, rt *runtime.Runtime) *Listener {
	l := &Listener{
		Profile:                      cfg.Profile,
		PortName:                     cfg.PortName,
		mainTree:                     cfg.MainTree,
		subprofiles:                  NewSubprofileHolder(cfg.Subprofiles),
		enableTrigger:                cfg.EnableTrigger,
		cycleTrigger:                 cfg.CycleSubprofilesTrigger,
		enabledCallbackScript:        cfg.EnabledCallbackScript,
		virtualSustainCallbackScript: cfg.VirtualSustainCallbackScript,
		subprofileCallbackScript:     cfg.SubprofileCallbackScript,
		runtime:                      rt,
		enabled:                      cfg.InitiallyEnabled,
		workers:                      map[*macro.Script]*worker.Worker{},
		start:                        time.Now(),
	}
	l.logFunc = func(text string, err error) {
		mmlog.Warnf(mmlog.With(context.Background(), l.Profile, l.currentSubprofileName()), "predicate %q failed: %v", text, err)
	}
	l.tracker = presstracker.New(presstracker.ExecutorFunc(l.execute))
	if cfg.VirtualSustainDefault {
		l.tracker.SetVirtualPedalDown(context.Background(), true)
	}
	return l
}

func (l *Listener) currentTree() *trie.Tree {
	if l.subprofiles != nil {
		_, tree := l.subprofiles.Current()
		return tree
	}
	return l.mainTree
}

func (l *Listener) currentSubprofileName() string {
	if l.subprofiles == nil {
		return ""
	}
	name, _ := l.subprofiles.Current()
	return name
}

// execute is the press tracker's Executor: it runs control-trigger
// matching ahead of normal matching, gates on the enabled flag, and
// drives whichever trie is currently selected. The trie is looked up
// per call, so a subprofile switch takes effect on the next event
// without disturbing held-note state.
func (l *Listener) execute(held []macro.PlayedNote, msg *macro.MIDIMessage) {
	if msg == nil {
		if len(l.enableTrigger) > 0 && trie.MatchTriggers(l.enableTrigger, held, l.logFunc) {
			l.ToggleEnabled()
			return
		}
		if l.Enabled() && len(l.cycleTrigger) > 0 && trie.MatchTriggers(l.cycleTrigger, held, l.logFunc) {
			l.CycleSubprofiles()
			return
		}
	}
	if !l.Enabled() {
		return
	}
	l.currentTree().Execute(held, msg, l.logFunc, l.dispatch)
}

// dispatch finds-or-creates the script's worker and queues the
// invocation.
func (l *Listener) dispatch(script *macro.Script, notes []macro.PlayedNote, msg *macro.MIDIMessage) {
	l.workersMu.Lock()
	w, ok := l.workers[script]
	if !ok {
		w = worker.New(script, l.runtime.Locks)
		l.workers[script] = w
	}
	l.workersMu.Unlock()
	w.Queue(context.Background(), worker.Invocation{Notes: notes, MIDI: msg})
}

// Start opens the MIDI port named in PortName and begins dispatching
// inbound messages.
func (l *Listener) Start() error {
	ins, err := drivers.Ins()
	if err != nil {
		return fmt.Errorf("listener %q: %w", l.Profile, err)
	}
	var in drivers.In
	for _, candidate := range ins {
		if candidate.String() == l.PortName {
			in = candidate
			break
		}
	}
	if in == nil {
		return fmt.Errorf("listener %q: MIDI input port %q not found", l.Profile, l.PortName)
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("listener %q: opening port %q: %w", l.Profile, l.PortName, err)
	}
	stop, err := in.Listen(l.onMessage, drivers.ListenConfig{})
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("listener %q: listening on %q: %w", l.Profile, l.PortName, err)
	}
	l.port = in
	l.stopFn = stop
	return nil
}

// onMessage is the driver callback. The tracker is fed even while the
// listener is disabled so an enable-trigger can still be recognized
// from its held notes.
func (l *Listener) onMessage(raw []byte, _ int32) {
	if len(raw) < 2 {
		return
	}
	data2 := byte(0)
	if len(raw) > 2 {
		data2 = raw[2]
	}
	now := time.Since(l.start).Nanoseconds()
	nibble, channel, d1, d2, ok := midimsg.FromBytes(raw[0], raw[1], data2, now)
	if !ok {
		return
	}
	msg := macro.MIDIMessage{StatusNibble: nibble, Channel: channel, Data1: d1, Data2: d2, Time: now}
	l.tracker.HandleMessage(context.Background(), msg)
}

// Stop closes the MIDI port (the driver joins its own callback thread)
// then shuts down every script worker this listener has created.
func (l *Listener) Stop() {
	if l.stopFn != nil {
		l.stopFn()
	}
	if l.port != nil {
		_ = l.port.Close()
	}
	l.workersMu.Lock()
	workers := make([]*worker.Worker, 0, len(l.workers))
	for _, w := range l.workers {
		workers = append(workers, w)
	}
	l.workersMu.Unlock()
	for _, w := range workers {
		w.Shutdown()
	}
}

// Enabled reports whether this listener currently dispatches macros.
func (l *Listener) Enabled() bool {
	l.enabledMu.Lock()
	defer l.enabledMu.Unlock()
	return l.enabled
}

// SetEnabled sets the enabled flag and queues a status callback on a
// change.
func (l *Listener) SetEnabled(enabled bool) {
	l.enabledMu.Lock()
	changed := l.enabled != enabled
	l.enabled = enabled
	l.enabledMu.Unlock()
	if changed {
		l.queueEnabledCallback(enabled)
	}
}

// ToggleEnabled flips the enabled flag.
func (l *Listener) ToggleEnabled() {
	l.enabledMu.Lock()
	l.enabled = !l.enabled
	enabled := l.enabled
	l.enabledMu.Unlock()
	l.queueEnabledCallback(enabled)
}

func (l *Listener) queueEnabledCallback(enabled bool) {
	payload := "disabled"
	if enabled {
		payload = "enabled"
	}
	l.runtime.Callbacks.Enqueue(callback.Callback{
		Profile: l.Profile, Kind: callback.KindEnabled, Payload: payload, ScriptPath: l.enabledCallbackScript,
	})
}

// SetVirtualPedalDown sets the virtual sustain pedal and queues a
// status callback.
func (l *Listener) SetVirtualPedalDown(down bool) {
	l.tracker.SetVirtualPedalDown(context.Background(), down)
	l.queueVirtualSustainCallback(down)
}

// ToggleVirtualPedalDown flips the virtual sustain pedal.
func (l *Listener) ToggleVirtualPedalDown() {
	down := l.tracker.ToggleVirtualPedalDown(context.Background())
	l.queueVirtualSustainCallback(down)
}

func (l *Listener) queueVirtualSustainCallback(down bool) {
	payload := "disabled"
	if down {
		payload = "enabled"
	}
	l.runtime.Callbacks.Enqueue(callback.Callback{
		Profile: l.Profile, Kind: callback.KindVirtualSustain, Payload: payload, ScriptPath: l.virtualSustainCallbackScript,
	})
}

// CycleSubprofiles rotates to the next subprofile. A single-entry ring
// is a no-op that produces no callback.
func (l *Listener) CycleSubprofiles() {
	if l.subprofiles == nil {
		return
	}
	name, changed := l.subprofiles.Cycle()
	if !changed {
		return
	}
	l.queueSubprofileCallback(name)
}

// SetSubprofile selects a subprofile by name.
func (l *Listener) SetSubprofile(name string) error {
	if l.subprofiles == nil {
		return fmt.Errorf("listener %q has no subprofiles", l.Profile)
	}
	changed, ok := l.subprofiles.SetByName(name)
	if !ok {
		return fmt.Errorf("listener %q has no subprofile %q", l.Profile, name)
	}
	if changed {
		l.queueSubprofileCallback(name)
	}
	return nil
}

func (l *Listener) queueSubprofileCallback(name string) {
	l.runtime.Callbacks.Enqueue(callback.Callback{
		Profile: l.Profile, Kind: callback.KindSubprofile, Payload: name, ScriptPath: l.subprofileCallbackScript,
	})
}

// GetInfo returns a snapshot of this listener's public state.
func (l *Listener) GetInfo() Info {
	pedal, virtual := l.tracker.SustainState()
	info := Info{
		Enabled:        l.Enabled(),
		MidiInputPort:  l.PortName,
		Sustain:        pedal,
		VirtualSustain: virtual,
	}
	if l.subprofiles != nil {
		info.Subprofiles = l.subprofiles.Names()
		info.CurrentSubprof, _ = l.subprofiles.Current()
	}
	return info
}
