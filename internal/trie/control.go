package trie

import "github.com/midi-macros/midi-macros/internal/macro"

// MatchTriggers reports whether held is an exact match for triggers —
// every trigger consumes its notes in order and no held notes are left
// over. This is how a listener evaluates its enable-trigger and
// cycle-subprofiles-trigger, which are matched directly against a
// trigger sequence rather than through the trie (control triggers are
// never attached to it).
func MatchTriggers(triggers []macro.Trigger, held []macro.PlayedNote, log PredicateLogger) bool {
	pos := 0
	for _, t := range triggers {
		switch trig := t.(type) {
		case macro.Note:
			if pos >= len(held) || !matchNote(trig, held, pos, log) {
				return false
			}
			pos++
		case macro.Chord:
			k := len(trig.Notes)
			if pos+k > len(held) || !matchChord(trig, held, pos, log) {
				return false
			}
			pos += k
		default:
			return false
		}
	}
	return pos == len(held)
}
