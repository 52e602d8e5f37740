package trie

import (
	"github.com/midi-macros/midi-macros/internal/macro"
)

// Dispatch is invoked once per macro whose trigger pattern and argument
// definition both matched. notes is non-nil only for an ArgPlayedNotes
// argument definition; msg is non-nil only for an ArgMidi argument
// definition (a wildcard script, or a Note/Chord macro whose script
// waits on the message that arrives once its trigger is fully held).
type Dispatch func(script *macro.Script, notes []macro.PlayedNote, msg *macro.MIDIMessage)

// Tree is the macro trie: non-wildcard macros
// are routed through a trigger-keyed prefix tree rooted at root;
// wildcard macros (no triggers at all) bypass the tree entirely and are
// checked against every incoming MIDI message regardless of what notes
// are currently held.
type Tree struct {
	root      *Node
	wildcards []*macro.Script
}

// New returns an empty trie.
func New() *Tree {
	return &Tree{root: newNode()}
}

func argBounds(def *macro.ArgumentDefinition) (int, float64) {
	if def == nil {
		return 0, 0
	}
	switch def.Kind {
	case macro.ArgZero:
		return 0, 0
	case macro.ArgMidi:
		return 1, 1 // consuming the message itself counts as one unit
	default: // ArgPlayedNotes
		return def.Range.Lower, def.Range.Upper
	}
}

// Insert adds m to the tree. A wildcard macro (nil Triggers) is appended
// to the wildcard list instead of walking the trie.
func (t *Tree) Insert(m *macro.Macro) {
	if len(m.Triggers) == 0 {
		t.wildcards = append(t.wildcards, m.Script)
		return
	}

	n := len(m.Triggers)
	suffixNotes := make([]int, n)
	total := 0
	for i := n - 1; i >= 0; i-- {
		total += m.Triggers[i].NoteCount()
		suffixNotes[i] = total
	}
	argMin, argMax := argBounds(m.Script.ArgumentDefinition)

	current := t.root
	for i, trig := range m.Triggers {
		current.updateBounds(suffixNotes[i]+argMin, float64(suffixNotes[i])+argMax)
		current = current.getOrCreateBranch(trig)
	}
	// current is now the terminal node: its own bound is just the
	// argument definition's cardinality, with no more trigger notes left
	// to consume.
	current.updateBounds(argMin, argMax)
	current.addScript(m.Script)
}

// Execute matches held against every macro in the tree and, if msg is
// non-nil, also against every wildcard script. log receives the text of
// any predicate that fails to evaluate.
func (t *Tree) Execute(held []macro.PlayedNote, msg *macro.MIDIMessage, log PredicateLogger, dispatch Dispatch) {
	if msg != nil {
		for _, ws := range t.wildcards {
			if matchMidi(ws.ArgumentDefinition, *msg, log) {
				dispatch(ws, nil, msg)
			}
		}
	}
	hasMidi := 0
	if msg != nil {
		hasMidi = 1
	}
	if !t.root.shouldProcess(len(held) + hasMidi) {
		return
	}
	t.matchFrom(t.root, held, 0, msg, hasMidi, log, dispatch)
}

func (t *Tree) matchFrom(node *Node, held []macro.PlayedNote, pos int, msg *macro.MIDIMessage, hasMidi int, log PredicateLogger, dispatch Dispatch) {
	tail := held[pos:]
	for _, s := range node.scripts {
		considerScript(s, tail, msg, log, dispatch)
	}

	remaining := len(held) - pos
	for _, br := range node.branches {
		switch trig := br.trigger.(type) {
		case macro.Note:
			if pos >= len(held) {
				continue
			}
			if !br.child.shouldProcess(remaining - 1 + hasMidi) {
				continue
			}
			if matchNote(trig, held, pos, log) {
				t.matchFrom(br.child, held, pos+1, msg, hasMidi, log, dispatch)
			}
		case macro.Chord:
			k := len(trig.Notes)
			if pos+k > len(held) {
				continue
			}
			if !br.child.shouldProcess(remaining - k + hasMidi) {
				continue
			}
			if matchChord(trig, held, pos, log) {
				t.matchFrom(br.child, held, pos+k, msg, hasMidi, log, dispatch)
			}
		}
	}
}

// considerScript assembles the candidate argument tuple for s: the
// message that just arrived if one did, else the unconsumed tail of
// held notes. A Midi-argdef script fires only once every held note has
// been consumed by the trigger path above it.
func considerScript(s *macro.Script, tail []macro.PlayedNote, msg *macro.MIDIMessage, log PredicateLogger, dispatch Dispatch) {
	def := s.ArgumentDefinition
	if def == nil {
		def = macro.ZeroArgumentDefinition
	}
	switch def.Kind {
	case macro.ArgMidi:
		if msg != nil && len(tail) == 0 && matchMidi(def, *msg, log) {
			dispatch(s, nil, msg)
		}
	case macro.ArgZero:
		if msg == nil && len(tail) == 0 {
			dispatch(s, nil, nil)
		}
	case macro.ArgPlayedNotes:
		if msg == nil && def.Range.Test(len(tail)) && matchPlayedNotesArgument(def, tail, log) {
			dispatch(s, tail, nil)
		}
	}
}
