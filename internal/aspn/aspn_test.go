package aspn

import "testing"

func TestMIDIToASPN(t *testing.T) {
	table := []struct {
		note int
		exp  string
	}{
		{60, "C4"},
		{69, "A4"},
		{0, "C-1"},
		{127, "G9"},
	}
	for _, test := range table {
		got := MIDIToASPN(test.note, false)
		if got != test.exp {
			t.Errorf("MIDIToASPN(%d): exp %s, got %s", test.note, test.exp, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for note := 0; note <= 127; note++ {
		name := MIDIToASPN(note, false)
		// parse back the simple ASCII form: letter, optional '#', signed octave.
		basePitch := name[0]
		offset := 0
		i := 1
		if i < len(name) && name[i] == '#' {
			offset = 1
			i++
		}
		octaveStr := name[i:]
		octave := 0
		neg := false
		for _, r := range octaveStr {
			if r == '-' {
				neg = true
				continue
			}
			octave = octave*10 + int(r-'0')
		}
		if neg {
			octave = -octave
		}
		got, err := ASPNToMIDI(octave, basePitch, offset)
		if err != nil {
			t.Fatalf("note %d: %v", note, err)
		}
		if got != note {
			t.Errorf("round trip note %d -> %s -> %d", note, name, got)
		}
	}
}
