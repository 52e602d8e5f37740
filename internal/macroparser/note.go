package macroparser

import (
	"strconv"

	"github.com/midi-macros/midi-macros/internal/aspn"
	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/parsebuf"
)

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isBasePitchLetter(c byte) bool {
	u := c
	if u >= 'a' && u <= 'z' {
		u -= 'a' - 'A'
	}
	return u >= 'A' && u <= 'G'
}

func parseNoteWithPredicate(buf *parsebuf.Buffer) (macro.Note, error) {
	start := buf.Position()
	c, err := buf.Peek()
	if err != nil {
		return macro.Note{}, err
	}
	var midiNote int
	if isDigit(c) {
		midiNote, err = parsePositiveInteger(buf)
	} else {
		midiNote, err = parseASPNNote(buf)
	}
	if err != nil {
		return macro.Note{}, err
	}
	if !aspn.InMIDIRange(midiNote) {
		return macro.Note{}, &parsebuf.Error{Pos: start, Line: buf.CurrentLineText(), Message: "invalid MIDI note: " + strconv.Itoa(midiNote)}
	}
	predicates, err := maybeParsePredicates(buf)
	if err != nil {
		return macro.Note{}, err
	}
	return macro.Note{MIDI: midiNote, Predicates: predicates}, nil
}

func parsePositiveInteger(buf *parsebuf.Buffer) (int, error) {
	start := buf.Position()
	var digits []byte
	for {
		c, err := buf.Peek()
		if err != nil || !isDigit(c) {
			break
		}
		digits = append(digits, c)
		if err := buf.Advance(1); err != nil {
			return 0, err
		}
	}
	if len(digits) == 0 {
		return 0, &parsebuf.Error{Pos: start, Line: buf.CurrentLineText(), Message: "expected a positive integer"}
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, err
	}
	return n, nil
}

func parseASPNNote(buf *parsebuf.Buffer) (int, error) {
	c, err := buf.Peek()
	if err != nil {
		return 0, err
	}
	if !isBasePitchLetter(c) {
		return 0, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected an ASPN base pitch letter A-G"}
	}
	basePitch := c
	if basePitch >= 'a' && basePitch <= 'z' {
		basePitch -= 'a' - 'A'
	}
	if err := buf.Advance(1); err != nil {
		return 0, err
	}
	offset := 0
	for {
		r, size, ok := peekRune(buf)
		if !ok {
			break
		}
		delta, matched := 0, true
		switch r {
		case '#', '♯':
			delta = 1
		case 'b', '♭':
			delta = -1
		case '\U0001d12a':
			delta = 2
		case '\U0001d12b':
			delta = -2
		default:
			matched = false
		}
		if !matched {
			break
		}
		offset += delta
		if err := buf.Advance(size); err != nil {
			return 0, err
		}
	}
	octave, err := parseSignedInteger(buf)
	if err != nil {
		return 0, err
	}
	return aspn.ASPNToMIDI(octave, basePitch, offset)
}

func parseSignedInteger(buf *parsebuf.Buffer) (int, error) {
	sign := 1
	c, err := buf.Peek()
	if err == nil && c == '-' {
		sign = -1
		if err := buf.Advance(1); err != nil {
			return 0, err
		}
	}
	n, err := parsePositiveInteger(buf)
	if err != nil {
		return 0, err
	}
	return sign * n, nil
}

func parseChord(buf *parsebuf.Buffer) (macro.Chord, error) {
	if err := buf.Advance(1); err != nil { // '['
		return macro.Chord{}, err
	}
	var notes []macro.Note
	for {
		buf.SkipWhitespace()
		note, err := parseNoteWithoutPredicate(buf)
		if err != nil {
			return macro.Chord{}, err
		}
		notes = append(notes, note)
		buf.SkipWhitespace()
		c, err := buf.Peek()
		if err != nil {
			return macro.Chord{}, err
		}
		if c == ']' {
			if err := buf.Advance(1); err != nil {
				return macro.Chord{}, err
			}
			break
		}
		if c != '|' {
			return macro.Chord{}, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected '|' or ']'"}
		}
		if err := buf.Advance(1); err != nil {
			return macro.Chord{}, err
		}
	}
	sortNotesAscending(notes)
	predicates, err := maybeParsePredicates(buf)
	if err != nil {
		return macro.Chord{}, err
	}
	return macro.Chord{Notes: notes, Predicates: predicates}, nil
}

// parseNoteWithoutPredicate reads a bare note inside a chord; a
// per-element predicate, if present, is still attached to that element.
func parseNoteWithoutPredicate(buf *parsebuf.Buffer) (macro.Note, error) {
	return parseNoteWithPredicate(buf)
}

func sortNotesAscending(notes []macro.Note) {
	for i := 1; i < len(notes); i++ {
		for j := i; j > 0 && notes[j].MIDI < notes[j-1].MIDI; j-- {
			notes[j], notes[j-1] = notes[j-1], notes[j]
		}
	}
}

// peekRune decodes the rune starting at the cursor without relying on
// byte-oriented Peek, since pitch modifiers include multi-byte runes.
func peekRune(buf *parsebuf.Buffer) (rune, int, bool) {
	line := buf.CurrentLineText()
	pos := buf.Position()
	if pos.Col >= len(line) {
		return 0, 0, false
	}
	for _, r := range line[pos.Col:] {
		size := len(string(r))
		return r, size, true
	}
	return 0, 0, false
}
