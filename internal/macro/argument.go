package macro

import (
	"fmt"
	"math"

	"github.com/midi-macros/midi-macros/internal/aspn"
)

// ArgumentNumberRange is the inclusive [lo,hi] cardinality a
// PlayedNotes argument definition accepts; hi may be +Inf for an
// open-ended range.
type ArgumentNumberRange struct {
	Lower int
	Upper float64 // math.Inf(1) for unbounded
}

var UnboundedRange = ArgumentNumberRange{Lower: 0, Upper: math.Inf(1)}
var ZeroRange = ArgumentNumberRange{Lower: 0, Upper: 0}

func ExactRange(n int) ArgumentNumberRange { return ArgumentNumberRange{Lower: n, Upper: float64(n)} }

// Test reports whether n arguments fall within the range.
func (r ArgumentNumberRange) Test(n int) bool {
	return n >= r.Lower && float64(n) <= r.Upper
}

// ArgumentKind distinguishes the three ArgumentDefinition variants.
type ArgumentKind int

const (
	ArgZero ArgumentKind = iota
	ArgPlayedNotes
	ArgMidi
)

// ArgumentDefinition declares what arguments a script accepts: none, the
// tail of held notes past the triggering position, or the single MIDI
// message that just arrived.
type ArgumentDefinition struct {
	Kind       ArgumentKind
	Range      ArgumentNumberRange // meaningful for ArgPlayedNotes
	Predicates []string
	Processor  *ArgumentProcessor // nil means "default formatting"
}

// ZeroArgumentDefinition is used for macros that take no script arguments.
var ZeroArgumentDefinition = &ArgumentDefinition{Kind: ArgZero, Range: ZeroRange}

// NumArgumentsAllowed reports whether n candidate arguments satisfy this
// definition's cardinality.
func (a *ArgumentDefinition) NumArgumentsAllowed(n int) bool {
	if a == nil || a.Kind == ArgZero {
		return n == 0
	}
	if a.Kind == ArgMidi {
		return n == 1
	}
	return a.Range.Test(n)
}

// FormatField renders one named field of a PlayedNote or MIDIMessage
// into its string representation.
type FormatField struct {
	Name     string
	FromNote func(PlayedNote) (string, bool)
	FromMIDI func(MIDIMessage) (string, bool)
}

func noNote(PlayedNote) (string, bool)  { return "", false }
func noMIDI(MIDIMessage) (string, bool) { return "", false }

var Formats = map[string]*FormatField{}

func registerFormat(f *FormatField) { Formats[f.Name] = f }

func init() {
	registerFormat(&FormatField{
		Name: "MIDI",
		FromNote: func(pn PlayedNote) (string, bool) { return fmt.Sprintf("%d", pn.Note), true },
		FromMIDI: noMIDI,
	})
	registerFormat(&FormatField{
		Name:     "ASPN",
		FromNote: func(pn PlayedNote) (string, bool) { return aspn.MIDIToASPN(pn.Note, false), true },
		FromMIDI: noMIDI,
	})
	registerFormat(&FormatField{
		Name:     "ASPN_UNICODE",
		FromNote: func(pn PlayedNote) (string, bool) { return aspn.MIDIToASPN(pn.Note, true), true },
		FromMIDI: noMIDI,
	})
	registerFormat(&FormatField{
		Name:     "PIANO",
		FromNote: func(pn PlayedNote) (string, bool) { return fmt.Sprintf("%d", pn.Note-20), true },
		FromMIDI: noMIDI,
	})
	registerFormat(&FormatField{
		Name:     "VELOCITY",
		FromNote: func(pn PlayedNote) (string, bool) { return fmt.Sprintf("%d", pn.Velocity), true },
		FromMIDI: noMIDI,
	})
	registerFormat(&FormatField{
		Name:     "TIME",
		FromNote: func(pn PlayedNote) (string, bool) { return fmt.Sprintf("%d", pn.Time), true },
		FromMIDI: func(m MIDIMessage) (string, bool) { return fmt.Sprintf("%d", m.Time), true },
	})
	registerFormat(&FormatField{
		Name:     "CHANNEL",
		FromNote: func(pn PlayedNote) (string, bool) { return fmt.Sprintf("%d", pn.Channel), true },
		FromMIDI: func(m MIDIMessage) (string, bool) { return fmt.Sprintf("%d", m.Channel), true },
	})
	registerFormat(&FormatField{
		Name:     "STATUS",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) { return fmt.Sprintf("%d", m.StatusNibble), true },
	})
	registerFormat(&FormatField{
		Name:     "DATA_0",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) { return fmt.Sprintf("%d", (m.StatusNibble<<4)|m.Channel), true },
	})
	registerFormat(&FormatField{
		Name:     "DATA_1",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) { return fmt.Sprintf("%d", m.Data1), true },
	})
	registerFormat(&FormatField{
		Name:     "DATA_2",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) { return fmt.Sprintf("%d", m.Data2), true },
	})
	registerFormat(&FormatField{
		Name: "MESSAGE_BYTES_HEX",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) {
			return fmt.Sprintf("%02x%02x%02x", (m.StatusNibble<<4)|m.Channel, m.Data1, m.Data2), true
		},
	})
	registerFormat(&FormatField{
		Name:     "CC_VALUE",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) { return fmt.Sprintf("%d", m.Data2), true },
	})
	registerFormat(&FormatField{
		Name:     "CC_VALUE_PERCENT",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) {
			return fmt.Sprintf("%d", int(float64(m.Data2)/127.0*100)), true
		},
	})
	registerFormat(&FormatField{
		Name:     "CC_VALUE_BOOL",
		FromNote: noNote,
		FromMIDI: func(m MIDIMessage) (string, bool) {
			if m.Data2 >= 64 {
				return "true", true
			}
			return "false", true
		},
	})
	registerFormat(&FormatField{
		Name:     "VELOCITY_PERCENT",
		FromNote: func(pn PlayedNote) (string, bool) { return fmt.Sprintf("%d", pn.Velocity*100/127), true },
		FromMIDI: noMIDI,
	})
	registerFormat(&FormatField{
		Name:     "NONE",
		FromNote: func(PlayedNote) (string, bool) { return "", true },
		FromMIDI: func(MIDIMessage) (string, bool) { return "", true },
	})
}

// FormatPart is either a literal string segment or a named FormatField,
// composing an f-string format like `f"%a-%v"`.
type FormatPart struct {
	Literal string
	Field   *FormatField // nil when Literal is set
}

// ArgumentProcessor is a joiner (separator + format parts) or a script
// preprocessor (ordered replace-token -> joiner substitutions).
type ArgumentProcessor struct {
	// Joiner fields:
	Separator string
	Format    []FormatPart

	// Script-preprocessor fields (mutually exclusive with Joiner use):
	Replacements []Replacement
}

// Replacement is one (token, joiner) substitution applied to a script's
// text in order.
type Replacement struct {
	Token     string
	Processor *ArgumentProcessor
}

func (p *ArgumentProcessor) IsPreprocessor() bool { return len(p.Replacements) > 0 }

// RenderNote applies a joiner's format parts to a single PlayedNote.
func (p *ArgumentProcessor) RenderNote(pn PlayedNote) string {
	var b []byte
	for _, part := range p.Format {
		if part.Field == nil {
			b = append(b, part.Literal...)
			continue
		}
		s, ok := part.Field.FromNote(pn)
		if ok {
			b = append(b, s...)
		}
	}
	return string(b)
}

// RenderMIDI applies a joiner's format parts to a single MIDIMessage.
func (p *ArgumentProcessor) RenderMIDI(m MIDIMessage) string {
	var b []byte
	for _, part := range p.Format {
		if part.Field == nil {
			b = append(b, part.Literal...)
			continue
		}
		s, ok := part.Field.FromMIDI(m)
		if ok {
			b = append(b, s...)
		}
	}
	return string(b)
}
