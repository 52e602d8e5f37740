// Package macroparser compiles macro-file source text into macro.Macro
// values. It never executes scripts or predicates. INVOCATION_FORMAT
// expressions are compiled with internal/predicate at parse time;
// match-predicates are only checked for balanced braces and are compiled
// when they are first matched.
package macroparser

import (
	"fmt"

	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/parsebuf"
)

// Error is a macro-language structural violation: a rule the grammar
// itself enforces (wildcard without a Midi argdef, KILL without
// BACKGROUND, and so on), as opposed to a parsebuf syntax error.
type Error struct {
	Pos     parsebuf.Pos
	Message string
}

func (e *Error) Error() string { return e.Message }

// Parse compiles every macro in source. Profile and subprofile are
// stamped onto each resulting Script for its own logging.
func Parse(source, profile, subprofile string) ([]*macro.Macro, error) {
	buf := parsebuf.New(source)
	var macros []*macro.Macro
	for {
		buf.SkipTillData(true)
		if buf.AtEOF() {
			break
		}
		m, err := parseMacroLine(buf, profile, subprofile)
		if err != nil {
			return nil, err
		}
		macros = append(macros, m)
	}
	return macros, nil
}

func parseMacroLine(buf *parsebuf.Buffer, profile, subprofile string) (*macro.Macro, error) {
	triggers, argDef, err := parseMacroDefinition(buf)
	if err != nil {
		return nil, err
	}
	buf.SkipWhitespace()

	isWildcard := triggers == nil
	if isWildcard && (argDef == nil || argDef.Kind != macro.ArgMidi) {
		return nil, &Error{Pos: buf.Position(), Message: "wildcard trigger '*' requires a MIDI argument definition"}
	}

	interpreter, err := maybeParseInterpreter(buf)
	if err != nil {
		return nil, err
	}
	flags, locks, invocationFormat, err := maybeParseFlags(buf)
	if err != nil {
		return nil, err
	}
	if flags.Has(macro.FlagKill) && !flags.Has(macro.FlagBackground) {
		return nil, &Error{Pos: buf.Position(), Message: "KILL requires BACKGROUND"}
	}
	if flags.Has(macro.FlagBackground) {
		if flags.Has(macro.FlagDebounce) || flags.Has(macro.FlagBlock) || len(locks) > 0 {
			return nil, &Error{Pos: buf.Position(), Message: "BACKGROUND is mutually exclusive with DEBOUNCE, BLOCK and LOCK"}
		}
	}

	buf.SkipWhitespace()
	if err := parseArrow(buf); err != nil {
		return nil, err
	}
	buf.SkipWhitespace()
	text, err := parseScriptBody(buf)
	if err != nil {
		return nil, err
	}

	if argDef == nil {
		argDef = macro.ZeroArgumentDefinition
	}
	script := &macro.Script{
		Text:               text,
		Interpreter:        interpreter,
		Flags:              flags,
		Locks:              locks,
		InvocationFormat:   invocationFormat,
		ArgumentDefinition: argDef,
		Profile:            profile,
		Subprofile:         subprofile,
	}
	return &macro.Macro{Triggers: triggers, Script: script}, nil
}

// parseMacroDefinition parses the '[ triggers ]? argDef?' portion of a
// macro line. A nil trigger slice marks a wildcard macro.
func parseMacroDefinition(buf *parsebuf.Buffer) ([]macro.Trigger, *macro.ArgumentDefinition, error) {
	c, err := buf.Peek()
	if err != nil {
		return nil, nil, err
	}
	if c == '*' {
		if err := buf.Advance(1); err != nil {
			return nil, nil, err
		}
		buf.SkipWhitespace()
		def, err := parseArgumentDefinition(buf)
		if err != nil {
			return nil, nil, err
		}
		return nil, def, nil
	}

	var triggers []macro.Trigger
	for {
		buf.SkipWhitespace()
		group, err := parseTriggerOrGroup(buf)
		if err != nil {
			return nil, nil, err
		}
		triggers = append(triggers, group...)
		buf.SkipWhitespace()
		c, err := buf.Peek()
		if err != nil || c != '+' {
			break
		}
		if err := buf.Advance(1); err != nil {
			return nil, nil, err
		}
	}

	buf.SkipWhitespace()
	if peekKeyword(buf, "NOTES") || peekKeyword(buf, "MIDI") {
		def, err := parseArgumentDefinition(buf)
		if err != nil {
			return nil, nil, err
		}
		return triggers, def, nil
	}
	return triggers, nil, nil
}

func parseTriggerOrGroup(buf *parsebuf.Buffer) ([]macro.Trigger, error) {
	c, err := buf.Peek()
	if err != nil {
		return nil, err
	}
	switch {
	case c == '(':
		return parseParenGroup(buf)
	case c == '[':
		chord, err := parseChord(buf)
		if err != nil {
			return nil, err
		}
		return []macro.Trigger{chord}, nil
	case isDigit(c) || isBasePitchLetter(c):
		note, err := parseNoteWithPredicate(buf)
		if err != nil {
			return nil, err
		}
		return []macro.Trigger{note}, nil
	default:
		return nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: fmt.Sprintf("expected chord, note, or '(': got %q", c)}
	}
}

func parseParenGroup(buf *parsebuf.Buffer) ([]macro.Trigger, error) {
	if err := buf.Advance(1); err != nil { // '('
		return nil, err
	}
	var group []macro.Trigger
	for {
		buf.SkipWhitespace()
		sub, err := parseTriggerOrGroup(buf)
		if err != nil {
			return nil, err
		}
		group = append(group, sub...)
		buf.SkipWhitespace()
		c, err := buf.Peek()
		if err != nil {
			return nil, err
		}
		if c == ')' {
			if err := buf.Advance(1); err != nil {
				return nil, err
			}
			break
		}
		if c != '+' {
			return nil, &parsebuf.Error{Pos: buf.Position(), Line: buf.CurrentLineText(), Message: "expected '+' or ')'"}
		}
		if err := buf.Advance(1); err != nil {
			return nil, err
		}
	}
	predicates, err := maybeParsePredicates(buf)
	if err != nil {
		return nil, err
	}
	for _, p := range predicates {
		for i, t := range group {
			switch tt := t.(type) {
			case macro.Note:
				tt.Predicates = append(tt.Predicates, p)
				group[i] = tt
			case macro.Chord:
				tt.Predicates = append(tt.Predicates, p)
				group[i] = tt
			}
		}
	}
	return group, nil
}
