package macroparser

import (
	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/parsebuf"
)

// ParseTriggers compiles a bare trigger sequence with no argument
// definition, interpreter, flags, arrow, or script body. This is the
// form a config file's enable_trigger and cycle_subprofiles_trigger
// settings use; such triggers share the note/chord grammar but are
// matched directly by the listener, never attached to a trie.
func ParseTriggers(source string) ([]macro.Trigger, error) {
	buf := parsebuf.New(source)
	buf.SkipTillData(true)
	triggers, argDef, err := parseMacroDefinition(buf)
	if err != nil {
		return nil, err
	}
	if triggers == nil {
		return nil, &Error{Pos: buf.Position(), Message: "control trigger must not be a wildcard"}
	}
	if argDef != nil {
		return nil, &Error{Pos: buf.Position(), Message: "control trigger must not declare an argument definition"}
	}
	buf.SkipTillData(true)
	if !buf.AtEOF() {
		return nil, &Error{Pos: buf.Position(), Message: "unexpected trailing content after control trigger"}
	}
	return triggers, nil
}
