// Package presstracker implements the held-notes state machine: it
// turns raw inbound MIDI messages into the ordered list of
// logically-held notes, reconciling physical (CC 64) and virtual
// sustain pedals on a per-channel basis, and hands the held list to an
// Executor on every change so macros can be matched against it.
package presstracker

import (
	"context"
	"sync"

	"github.com/midi-macros/midi-macros/internal/macro"
)

// MIDI status nibbles the tracker cares about.
const (
	statusNoteOff           = 0x8
	statusNoteOn            = 0x9
	statusPolyAftertouch    = 0xA
	statusControlChange     = 0xB
	statusChannelAftertouch = 0xD
	ccSustainPedal          = 64
)

// Executor receives the held-note snapshots the tracker produces. A nil
// msg is a held-notes evaluation (a note was logically released); a
// non-nil msg carries the raw message that just arrived so wildcard
// catchers can see every inbound event.
type Executor interface {
	Execute(held []macro.PlayedNote, msg *macro.MIDIMessage)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(held []macro.PlayedNote, msg *macro.MIDIMessage)

func (f ExecutorFunc) Execute(held []macro.PlayedNote, msg *macro.MIDIMessage) { f(held, msg) }

type noteKey struct {
	note    int
	channel int
}

// Tracker owns one listener's held-note state. The Executor callback
// only ever enqueues work onto a script worker and never calls back
// into the tracker synchronously, so a plain mutex suffices; there is
// no synchronous reentry to support.
type Tracker struct {
	mu sync.Mutex

	held                      []macro.PlayedNote
	queuedReleases            map[noteKey]bool
	pedalDown                 [16]bool
	virtualPedalDown          bool
	lastChangeWasAdd          bool
	hadExtraMessageSincePress bool

	exec Executor
}

// New constructs a Tracker that feeds exec on every held-note change
// and on every raw inbound message except sustain-pedal CCs.
func New(exec Executor) *Tracker {
	return &Tracker{
		exec:           exec,
		queuedReleases: map[noteKey]bool{},
	}
}

func (t *Tracker) sustainingLocked(channel int) bool {
	return t.pedalDown[channel] || t.virtualPedalDown
}

// HandleMessage processes one inbound MIDI message under the tracker's
// lock. Note-ons append to the held list; note-offs (or note-ons with
// velocity 0) either queue a release while the channel sustains, or
// fire a held-notes evaluation and trim the held list. A sustain-pedal
// CC that ends a channel's sustain runs the sustain-release procedure.
// Every message other than a sustain-pedal CC additionally hands the raw
// message to the executor so wildcard catchers fire once per inbound event.
func (t *Tracker) HandleMessage(ctx context.Context, msg macro.MIDIMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	isSustainCC := msg.StatusNibble == statusControlChange && msg.Data1 == ccSustainPedal
	isNoteEvent := msg.StatusNibble == statusNoteOn || msg.StatusNibble == statusNoteOff
	isAftertouch := msg.StatusNibble == statusPolyAftertouch || msg.StatusNibble == statusChannelAftertouch
	if !isNoteEvent && !isSustainCC && !isAftertouch {
		t.hadExtraMessageSincePress = true
	}

	if isSustainCC {
		wasSustaining := t.sustainingLocked(msg.Channel)
		t.pedalDown[msg.Channel] = msg.Data2 >= 64
		if wasSustaining && !t.sustainingLocked(msg.Channel) {
			t.sustainReleaseLocked(msg.Channel)
		}
		return
	}

	key := noteKey{note: msg.Data1, channel: msg.Channel}
	switch {
	case msg.StatusNibble == statusNoteOn && msg.Data2 > 0:
		delete(t.queuedReleases, key)
		t.held = append(t.held, macro.PlayedNote{Note: msg.Data1, Channel: msg.Channel, Velocity: msg.Data2, Time: msg.Time})
		t.lastChangeWasAdd = true
		t.hadExtraMessageSincePress = false
	case msg.StatusNibble == statusNoteOff || (msg.StatusNibble == statusNoteOn && msg.Data2 == 0):
		if t.sustainingLocked(msg.Channel) {
			t.queuedReleases[key] = true
		} else {
			if t.lastChangeWasAdd && !t.hadExtraMessageSincePress {
				t.exec.Execute(t.snapshotLocked(), nil)
			}
			t.held = removeKey(t.held, key)
			t.lastChangeWasAdd = false
		}
	}

	rawMsg := msg
	t.exec.Execute(t.snapshotLocked(), &rawMsg)
}

// sustainReleaseLocked removes every queued-release entry on channel
// once it stops sustaining. Macros fire first, against the still-intact
// held list, then the released entries are trimmed.
func (t *Tracker) sustainReleaseLocked(channel int) {
	var toRemove []noteKey
	for key := range t.queuedReleases {
		if key.channel == channel {
			toRemove = append(toRemove, key)
		}
	}
	if len(toRemove) == 0 {
		return
	}
	if t.lastChangeWasAdd && !t.hadExtraMessageSincePress {
		t.exec.Execute(t.snapshotLocked(), nil)
	}
	t.lastChangeWasAdd = false
	for _, key := range toRemove {
		delete(t.queuedReleases, key)
		t.held = removeKey(t.held, key)
	}
}

// SetVirtualPedalDown sets the virtual sustain pedal. A transition from
// sustaining to not triggers sustain-release on every channel whose
// physical pedal is also up. The toggle never counts as an extra
// message for catcher gating.
func (t *Tracker) SetVirtualPedalDown(ctx context.Context, down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.virtualPedalDown
	t.virtualPedalDown = down
	if was && !down {
		for ch := 0; ch < 16; ch++ {
			if !t.pedalDown[ch] {
				t.sustainReleaseLocked(ch)
			}
		}
	}
}

// ToggleVirtualPedalDown flips the virtual sustain pedal and reports
// the new state.
func (t *Tracker) ToggleVirtualPedalDown(ctx context.Context) bool {
	t.mu.Lock()
	cur := t.virtualPedalDown
	t.mu.Unlock()
	t.SetVirtualPedalDown(ctx, !cur)
	return !cur
}

// Held returns a snapshot of the currently held notes.
func (t *Tracker) Held() []macro.PlayedNote {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []macro.PlayedNote {
	out := make([]macro.PlayedNote, len(t.held))
	copy(out, t.held)
	return out
}

// SustainState reports the per-channel physical pedal state and the
// virtual pedal flag.
func (t *Tracker) SustainState() (pedalDown [16]bool, virtual bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pedalDown, t.virtualPedalDown
}

func removeKey(held []macro.PlayedNote, key noteKey) []macro.PlayedNote {
	out := held[:0]
	for _, pn := range held {
		if pn.Note == key.note && pn.Channel == key.channel {
			continue
		}
		out = append(out, pn)
	}
	return out
}
