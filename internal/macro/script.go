package macro

import (
	"strings"

	"github.com/midi-macros/midi-macros/internal/predicate"
)

// ScriptFlag is a bitmask of the boolean flags a script can set in its
// `[...]` flags list.
type ScriptFlag uint

const (
	FlagBlock ScriptFlag = 1 << iota
	FlagDebounce
	FlagBackground
	FlagKill
	FlagScriptPathAsEnvVar
)

var flagNames = map[string]ScriptFlag{
	"BLOCK":                  FlagBlock,
	"DEBOUNCE":               FlagDebounce,
	"BACKGROUND":             FlagBackground,
	"KILL":                   FlagKill,
	"SCRIPT_PATH_AS_ENV_VAR": FlagScriptPathAsEnvVar,
}

// FlagByName looks up a named flag; ok is false for an unrecognized name.
func FlagByName(name string) (ScriptFlag, bool) {
	f, ok := flagNames[name]
	return f, ok
}

func (f ScriptFlag) Has(bit ScriptFlag) bool { return f&bit != 0 }

func (f ScriptFlag) String() string {
	var names []string
	for name, bit := range flagNames {
		if f.Has(bit) {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// Script is a textual body plus its invocation policy. A Script has
// exactly one worker (internal/worker) with an unbounded FIFO invocation
// queue, created lazily by the listener on the script's first dispatch.
type Script struct {
	Text               string
	Interpreter        string
	Flags              ScriptFlag
	Locks              []string // LOCK=a,b,c, in declared order
	InvocationFormat   *FormatExpr
	ArgumentDefinition *ArgumentDefinition

	Profile    string
	Subprofile string
}

// FormatExpr is a compiled f-string: literal segments interleaved with
// predicate-language sub-expressions (e.g. INVOCATION_FORMAT's `{v*2}`).
type FormatExpr struct {
	Parts []FormatExprPart
}

// FormatExprPart is either a literal string or a compiled predicate
// expression to interpolate.
type FormatExprPart struct {
	Literal string
	Expr    *predicate.Expr
}

func (s *Script) String() string {
	var b strings.Builder
	if s.ArgumentDefinition != nil && s.ArgumentDefinition.Kind != ArgZero {
		b.WriteString("argdef ")
	}
	if s.Interpreter != "" {
		b.WriteString("(\"")
		b.WriteString(s.Interpreter)
		b.WriteString("\") ")
	}
	if s.Flags != 0 {
		b.WriteByte('[')
		b.WriteString(s.Flags.String())
		b.WriteString("] ")
	}
	b.WriteString("-> {\n")
	for _, line := range strings.Split(s.Text, "\n") {
		b.WriteByte('\t')
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("}")
	return b.String()
}

// Macro pairs a trigger sequence with a Script. A nil Triggers slice
// marks a wildcard macro, legal only with a Midi argument definition;
// the parser enforces this at construction.
type Macro struct {
	Triggers []Trigger // nil for a wildcard macro
	Script   *Script
}

func (m *Macro) String() string {
	if len(m.Triggers) == 0 {
		return "* " + m.Script.String()
	}
	parts := make([]string, len(m.Triggers))
	for i, t := range m.Triggers {
		parts[i] = t.String()
	}
	return strings.Join(parts, "+") + " " + m.Script.String()
}

// NoteCount is the total number of held notes this macro's trigger
// sequence consumes.
func (m *Macro) NoteCount() int {
	n := 0
	for _, t := range m.Triggers {
		n += t.NoteCount()
	}
	return n
}
