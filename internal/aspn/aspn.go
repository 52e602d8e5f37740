// Package aspn converts between MIDI note numbers and American Standard
// Pitch Notation (ASPN) names. Middle C (MIDI 60) is C4.
package aspn

import "fmt"

var chromaticASCII = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
var chromaticUnicode = [12]string{"C", "C♯", "D", "D♯", "E", "F", "F♯", "G", "G♯", "A", "A♯", "B"}

var basePitchSemitone = map[byte]int{
	'C': 0,
	'D': 2,
	'E': 4,
	'F': 5,
	'G': 7,
	'A': 9,
	'B': 11,
}

// MIDIToASPN renders a MIDI note number (0-127) as its ASPN name, e.g. 60 ->
// "C4". When unicode is true, sharps are rendered with U+266F rather than
// ASCII '#'. The input is not range-checked; callers outside 0-127 get a
// mathematically consistent but musically meaningless answer.
func MIDIToASPN(note int, unicode bool) string {
	table := chromaticASCII
	if unicode {
		table = chromaticUnicode
	}
	octave := floorDiv(note-12, 12)
	pitch := table[mod12(note-12)]
	return fmt.Sprintf("%s%d", pitch, octave)
}

// ASPNToMIDI is the inverse of MIDIToASPN's pitch math: given an octave, an
// upper-case base letter A-G, and a signed accidental offset (sharp = +1,
// double-sharp = +2, flat = -1, double-flat = -2), returns the MIDI note
// number.
func ASPNToMIDI(octave int, basePitch byte, accidentalOffset int) (int, error) {
	semitone, ok := basePitchSemitone[basePitch]
	if !ok {
		return 0, fmt.Errorf("aspn: invalid base pitch letter %q", basePitch)
	}
	return octave*12 + 12 + semitone + accidentalOffset, nil
}

// InMIDIRange reports whether note falls within the valid MIDI range.
func InMIDIRange(note int) bool {
	return note >= 0 && note <= 127
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod12(a int) int {
	m := a % 12
	if m < 0 {
		m += 12
	}
	return m
}
