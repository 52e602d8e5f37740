// Package trie implements the macro trie: triggers stored as a prefix
// tree with per-node [minActions, maxActions] bounds that prune whole
// subtrees, plus the trigger-matching recursion that walks it against
// the currently held notes.
package trie

import (
	"fmt"
	"sync"

	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/predicate"
)

// PredicateLogger receives the text of a predicate that failed to
// evaluate; such a predicate is treated as false and matching
// continues.
type PredicateLogger func(predicateText string, err error)

// compileCache memoizes compiled predicate expressions; it is shared
// by every listener's matching thread.
var (
	compileMu    sync.RWMutex
	compileCache = map[string]*predicate.Expr{}
)

func compilePredicate(text string) (*predicate.Expr, error) {
	compileMu.RLock()
	e, ok := compileCache[text]
	compileMu.RUnlock()
	if ok {
		return e, nil
	}
	e, err := predicate.Compile(text)
	if err != nil {
		return nil, err
	}
	compileMu.Lock()
	compileCache[text] = e
	compileMu.Unlock()
	return e, nil
}

func evalAllPredicates(predicates []string, env predicate.Env, log PredicateLogger) bool {
	for _, text := range predicates {
		expr, err := compilePredicate(text)
		if err != nil {
			if log != nil {
				log(text, err)
			}
			return false
		}
		v, err := expr.Eval(env)
		if err != nil {
			if log != nil {
				log(text, err)
			}
			return false
		}
		if !v.Truthy() {
			return false
		}
	}
	return true
}

// matchNote reports whether held[pos] satisfies trigger: the MIDI
// numbers must be equal and every predicate must hold.
func matchNote(trigger macro.Note, held []macro.PlayedNote, pos int, log PredicateLogger) bool {
	played := held[pos]
	if played.Note != trigger.MIDI {
		return false
	}
	env := predicate.Env{
		"VELOCITY": predicate.NumberValue(float64(played.Velocity)),
		"v":        predicate.NumberValue(float64(played.Velocity)),
		"TIME":     predicate.NumberValue(float64(played.Time)),
		"t":        predicate.NumberValue(float64(played.Time)),
		"CHANNEL":  predicate.NumberValue(float64(played.Channel)),
		"c":        predicate.NumberValue(float64(played.Channel)),
	}
	if pos == 0 {
		env["ELAPSED_TIME"] = predicate.NilValue()
		env["et"] = predicate.NilValue()
	} else {
		et := played.Time - held[pos-1].Time
		env["ELAPSED_TIME"] = predicate.NumberValue(float64(et))
		env["et"] = predicate.NumberValue(float64(et))
	}
	return evalAllPredicates(trigger.Predicates, env, log)
}

// matchChord reports whether held[pos:pos+k] satisfies trigger, after
// stably sorting the consumed slice ascending by MIDI number.
func matchChord(trigger macro.Chord, held []macro.PlayedNote, pos int, log PredicateLogger) bool {
	k := len(trigger.Notes)
	if pos+k > len(held) {
		return false
	}
	type indexed struct {
		note macro.PlayedNote
		idx  int
	}
	sorted := make([]indexed, k)
	for i := 0; i < k; i++ {
		sorted[i] = indexed{note: held[pos+i], idx: pos + i}
	}
	// stable insertion sort by MIDI number ascending.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].note.Note < sorted[j-1].note.Note; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for i, macroNote := range trigger.Notes {
		if !matchNote(macroNote, held, sorted[i].idx, log) {
			return false
		}
	}
	channels := map[int]bool{}
	minV, maxV, sumV := sorted[0].note.Velocity, sorted[0].note.Velocity, 0
	for _, s := range sorted {
		if s.note.Velocity < minV {
			minV = s.note.Velocity
		}
		if s.note.Velocity > maxV {
			maxV = s.note.Velocity
		}
		sumV += s.note.Velocity
		channels[s.note.Channel] = true
	}
	start := held[pos].Time
	finish := held[pos+k-1].Time
	env := predicate.Env{
		"CHORD_START_TIME":       predicate.NumberValue(float64(start)),
		"cst":                    predicate.NumberValue(float64(start)),
		"CHORD_FINISH_TIME":      predicate.NumberValue(float64(finish)),
		"cft":                    predicate.NumberValue(float64(finish)),
		"CHORD_ELAPSED_TIME":     predicate.NumberValue(float64(finish - start)),
		"cet":                    predicate.NumberValue(float64(finish - start)),
		"CHORD_MIN_VELOCITY":     predicate.NumberValue(float64(minV)),
		"cminv":                  predicate.NumberValue(float64(minV)),
		"CHORD_MAX_VELOCITY":     predicate.NumberValue(float64(maxV)),
		"cmaxv":                  predicate.NumberValue(float64(maxV)),
		"CHORD_AVERAGE_VELOCITY": predicate.NumberValue(float64(sumV) / float64(k)),
		"cavgv":                  predicate.NumberValue(float64(sumV) / float64(k)),
	}
	if len(channels) == 1 {
		for ch := range channels {
			env["CHANNEL"] = predicate.NumberValue(float64(ch))
			env["c"] = predicate.NumberValue(float64(ch))
		}
	} else {
		env["CHANNEL"] = predicate.NilValue()
		env["c"] = predicate.NilValue()
	}
	return evalAllPredicates(trigger.Predicates, env, log)
}

// matchMidi evaluates a Midi argument definition's predicates against the
// message that just arrived.
func matchMidi(def *macro.ArgumentDefinition, msg macro.MIDIMessage, log PredicateLogger) bool {
	env := predicate.Env{
		"s":       predicate.NumberValue(float64(msg.StatusNibble)),
		"STATUS":  predicate.NumberValue(float64(msg.StatusNibble)),
		"d1":      predicate.NumberValue(float64(msg.Data1)),
		"DATA_1":  predicate.NumberValue(float64(msg.Data1)),
		"d2":      predicate.NumberValue(float64(msg.Data2)),
		"DATA_2":  predicate.NumberValue(float64(msg.Data2)),
		"c":       predicate.NumberValue(float64(msg.Channel)),
		"CHANNEL": predicate.NumberValue(float64(msg.Channel)),
		"t":       predicate.NumberValue(float64(msg.Time)),
		"TIME":    predicate.NumberValue(float64(msg.Time)),
	}
	return evalAllPredicates(def.Predicates, env, log)
}

// matchPlayedNotesArgument evaluates a PlayedNotes argument definition's
// own predicates against each candidate note in the tail being offered
// as arguments, using the same per-note environment as a trigger Note,
// relative to the tail itself.
func matchPlayedNotesArgument(def *macro.ArgumentDefinition, candidates []macro.PlayedNote, log PredicateLogger) bool {
	if len(def.Predicates) == 0 {
		return true
	}
	for i, pn := range candidates {
		env := predicate.Env{
			"VELOCITY": predicate.NumberValue(float64(pn.Velocity)),
			"v":        predicate.NumberValue(float64(pn.Velocity)),
			"TIME":     predicate.NumberValue(float64(pn.Time)),
			"t":        predicate.NumberValue(float64(pn.Time)),
			"CHANNEL":  predicate.NumberValue(float64(pn.Channel)),
			"c":        predicate.NumberValue(float64(pn.Channel)),
		}
		if i == 0 {
			env["ELAPSED_TIME"] = predicate.NilValue()
			env["et"] = predicate.NilValue()
		} else {
			et := pn.Time - candidates[i-1].Time
			env["ELAPSED_TIME"] = predicate.NumberValue(float64(et))
			env["et"] = predicate.NumberValue(float64(et))
		}
		if !evalAllPredicates(def.Predicates, env, log) {
			return false
		}
	}
	return true
}

func branchKey(t macro.Trigger) string {
	return fmt.Sprintf("%T:%s", t, t.String())
}
