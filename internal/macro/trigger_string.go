package macro

import (
	"strings"

	"github.com/midi-macros/midi-macros/internal/aspn"
)

func predicateSuffix(predicates []string) string {
	if len(predicates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range predicates {
		b.WriteByte('{')
		b.WriteString(p)
		b.WriteByte('}')
	}
	return b.String()
}

func (n Note) String() string {
	return aspn.MIDIToASPN(n.MIDI, true) + predicateSuffix(n.Predicates)
}

func (c Chord) String() string {
	parts := make([]string, len(c.Notes))
	for i, n := range c.Notes {
		parts[i] = aspn.MIDIToASPN(n.MIDI, true)
	}
	return "[" + strings.Join(parts, "|") + "]" + predicateSuffix(c.Predicates)
}
