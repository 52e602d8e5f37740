package macroparser

import (
	"math"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/midi-macros/midi-macros/internal/macro"
)

func parseOne(t *testing.T, source string) *macro.Macro {
	t.Helper()
	macros, err := Parse(source, "test", "")
	if err != nil {
		t.Fatalf("Parse(%q): %v", source, err)
	}
	if len(macros) != 1 {
		t.Fatalf("Parse(%q): expected 1 macro, got %d", source, len(macros))
	}
	return macros[0]
}

func TestSingleNoteMacro(t *testing.T) {
	m := parseOne(t, "C4 -> echo hi")
	if diff := deep.Equal(m.Triggers, []macro.Trigger{macro.Note{MIDI: 60}}); diff != nil {
		t.Error(diff)
	}
	if m.Script.Text != "echo hi" {
		t.Errorf("script text: %q", m.Script.Text)
	}
	if m.Script.Profile != "test" {
		t.Errorf("profile not stamped: %q", m.Script.Profile)
	}
}

func TestNumericAndASPNNotesAgree(t *testing.T) {
	table := []struct {
		src  string
		midi int
	}{
		{"60 -> x", 60},
		{"C4 -> x", 60},
		{"c4 -> x", 60},
		{"C#4 -> x", 61},
		{"Db4 -> x", 61},
		{"B-1 -> x", 11},
		{"G9 -> x", 127},
	}
	for _, test := range table {
		m := parseOne(t, test.src)
		note := m.Triggers[0].(macro.Note)
		if note.MIDI != test.midi {
			t.Errorf("%q: expected MIDI %d, got %d", test.src, test.midi, note.MIDI)
		}
	}
}

func TestOutOfRangeMIDIRejected(t *testing.T) {
	for _, src := range []string{"128 -> x", "C10 -> x"} {
		if _, err := Parse(src, "p", ""); err == nil {
			t.Errorf("%q: expected invalid-MIDI error", src)
		}
	}
}

func TestChordSortedByPitch(t *testing.T) {
	m := parseOne(t, "[G4|C4|E4]{cminv>80} -> echo chord")
	chord := m.Triggers[0].(macro.Chord)
	want := []macro.Note{{MIDI: 60}, {MIDI: 64}, {MIDI: 67}}
	if diff := deep.Equal(chord.Notes, want); diff != nil {
		t.Error(diff)
	}
	if diff := deep.Equal(chord.Predicates, []string{"cminv>80"}); diff != nil {
		t.Error(diff)
	}
}

func TestTriggerSequence(t *testing.T) {
	m := parseOne(t, "C4 + [E4|G4] + C5 -> x")
	if len(m.Triggers) != 3 {
		t.Fatalf("expected 3 triggers, got %d", len(m.Triggers))
	}
	if m.NoteCount() != 4 {
		t.Fatalf("expected NoteCount 4, got %d", m.NoteCount())
	}
}

func TestGroupPredicateAppendsToEachTrigger(t *testing.T) {
	m := parseOne(t, "(C4 + D4){v>50} -> x")
	for i, trig := range m.Triggers {
		note := trig.(macro.Note)
		if diff := deep.Equal(note.Predicates, []string{"v>50"}); diff != nil {
			t.Errorf("trigger %d: %v", i, diff)
		}
	}
}

func TestWildcardRequiresMidiArgDef(t *testing.T) {
	m := parseOne(t, "* MIDI{s==11 and d1==74} -> echo cc")
	if m.Triggers != nil {
		t.Fatal("wildcard macro must have nil triggers")
	}
	def := m.Script.ArgumentDefinition
	if def.Kind != macro.ArgMidi {
		t.Fatalf("expected Midi argdef, got %v", def.Kind)
	}
	if diff := deep.Equal(def.Predicates, []string{"s==11 and d1==74"}); diff != nil {
		t.Error(diff)
	}

	if _, err := Parse("* NOTES -> x", "p", ""); err == nil {
		t.Fatal("wildcard with NOTES argdef must be rejected")
	}
	if _, err := Parse("* -> x", "p", ""); err == nil {
		t.Fatal("wildcard without argdef must be rejected")
	}
}

func TestNotesArgDefRanges(t *testing.T) {
	table := []struct {
		src   string
		lower int
		upper float64
	}{
		{"C4 NOTES -> x", 0, math.Inf(1)},
		{"C4 NOTES[3] -> x", 3, 3},
		{"C4 NOTES[1:4] -> x", 1, 4},
		{"C4 NOTES[2:] -> x", 2, math.Inf(1)},
		{"C4 NOTES[:5] -> x", 0, 5},
	}
	for _, test := range table {
		m := parseOne(t, test.src)
		def := m.Script.ArgumentDefinition
		if def.Kind != macro.ArgPlayedNotes {
			t.Errorf("%q: expected PlayedNotes argdef", test.src)
			continue
		}
		if def.Range.Lower != test.lower || def.Range.Upper != test.upper {
			t.Errorf("%q: range [%d,%v], want [%d,%v]", test.src, def.Range.Lower, def.Range.Upper, test.lower, test.upper)
		}
	}
}

func TestJoinerProcessor(t *testing.T) {
	m := parseOne(t, `[C4|E4|G4] NOTES(["-"] ASPN) -> echo`)
	proc := m.Script.ArgumentDefinition.Processor
	if proc == nil || proc.IsPreprocessor() {
		t.Fatal("expected a joiner processor")
	}
	if proc.Separator != "-" {
		t.Errorf("separator: %q", proc.Separator)
	}
	got := proc.RenderNote(macro.PlayedNote{Note: 60, Velocity: 90})
	if got != "C4" {
		t.Errorf("RenderNote: %q", got)
	}
}

func TestFStringProcessor(t *testing.T) {
	m := parseOne(t, `C4 NOTES(f"%a@%v") -> echo`)
	proc := m.Script.ArgumentDefinition.Processor
	got := proc.RenderNote(macro.PlayedNote{Note: 64, Velocity: 77})
	if got != "E4@77" {
		t.Errorf("RenderNote: %q", got)
	}
}

func TestFStringPercentEscape(t *testing.T) {
	m := parseOne(t, `C4 NOTES(f"%v%%") -> echo`)
	proc := m.Script.ArgumentDefinition.Processor
	got := proc.RenderNote(macro.PlayedNote{Note: 60, Velocity: 50})
	if got != "50%" {
		t.Errorf("RenderNote: %q", got)
	}
}

func TestScriptPreprocessor(t *testing.T) {
	m := parseOne(t, `C4 NOTES("$*" -> ["-"] MIDI) -> echo $*`)
	proc := m.Script.ArgumentDefinition.Processor
	if !proc.IsPreprocessor() {
		t.Fatal("expected a script preprocessor")
	}
	if len(proc.Replacements) != 1 || proc.Replacements[0].Token != "$*" {
		t.Fatalf("replacements: %+v", proc.Replacements)
	}
}

func TestFlags(t *testing.T) {
	m := parseOne(t, "C4 [DEBOUNCE|BLOCK|LOCK=a,b] -> x")
	s := m.Script
	if !s.Flags.Has(macro.FlagDebounce) || !s.Flags.Has(macro.FlagBlock) {
		t.Fatalf("flags: %v", s.Flags)
	}
	if diff := deep.Equal(s.Locks, []string{"a", "b"}); diff != nil {
		t.Error(diff)
	}
}

func TestFlagRules(t *testing.T) {
	table := []struct {
		src string
		ok  bool
	}{
		{"C4 [BACKGROUND] -> x", true},
		{"C4 [BACKGROUND|KILL] -> x", true},
		{"C4 [KILL] -> x", false},
		{"C4 [BACKGROUND|DEBOUNCE] -> x", false},
		{"C4 [BACKGROUND|BLOCK] -> x", false},
		{"C4 [BACKGROUND|LOCK=a] -> x", false},
		{"C4 [NOT_A_FLAG] -> x", false},
	}
	for _, test := range table {
		_, err := Parse(test.src, "p", "")
		if test.ok && err != nil {
			t.Errorf("%q: unexpected error %v", test.src, err)
		}
		if !test.ok && err == nil {
			t.Errorf("%q: expected error", test.src)
		}
	}
}

func TestInterpreter(t *testing.T) {
	m := parseOne(t, `C4 ("python3") -> print("hi")`)
	if m.Script.Interpreter != "python3" {
		t.Errorf("interpreter: %q", m.Script.Interpreter)
	}
}

func TestInvocationFormat(t *testing.T) {
	m := parseOne(t, `C4 NOTES [INVOCATION_FORMAT="note {ARGS}"] -> x`)
	f := m.Script.InvocationFormat
	if f == nil {
		t.Fatal("expected a compiled INVOCATION_FORMAT")
	}
	if len(f.Parts) != 2 || f.Parts[0].Literal != "note " || f.Parts[1].Expr == nil {
		t.Fatalf("parts: %+v", f.Parts)
	}
}

func TestUnicodeArrow(t *testing.T) {
	m := parseOne(t, "C4 → echo hi")
	if m.Script.Text != "echo hi" {
		t.Errorf("script text: %q", m.Script.Text)
	}
}

func TestMultiLineScript(t *testing.T) {
	src := "C4 -> {\n\techo one\n\n\techo two\n}"
	m := parseOne(t, src)
	want := "echo one\n\necho two"
	if m.Script.Text != want {
		t.Errorf("script text %q, want %q", m.Script.Text, want)
	}
}

func TestMultiLineScriptIndentEnforced(t *testing.T) {
	src := "C4 -> {\n\techo one\necho two\n}"
	_, err := Parse(src, "p", "")
	if err == nil || !strings.Contains(err.Error(), "incorrect indentation") {
		t.Fatalf("expected incorrect-indentation error, got %v", err)
	}
}

func TestCommentsAndMultipleMacros(t *testing.T) {
	src := "# header\nC4 -> echo one\n\n# another\nD4 -> echo two\n"
	macros, err := Parse(src, "p", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(macros) != 2 {
		t.Fatalf("expected 2 macros, got %d", len(macros))
	}
}

func TestMultiLinePredicate(t *testing.T) {
	src := "C4{v >\n50} -> x"
	m := parseOne(t, src)
	note := m.Triggers[0].(macro.Note)
	if len(note.Predicates) != 1 {
		t.Fatalf("predicates: %+v", note.Predicates)
	}
}

func TestPredicateStringLiteralsHideBraces(t *testing.T) {
	src := `C4{"}" == "}"} -> x`
	m := parseOne(t, src)
	note := m.Triggers[0].(macro.Note)
	if len(note.Predicates) != 1 || !strings.Contains(note.Predicates[0], `"}"`) {
		t.Fatalf("predicates: %+v", note.Predicates)
	}
}

func TestParseTriggers(t *testing.T) {
	triggers, err := ParseTriggers("C4 + [E4|G4]")
	if err != nil {
		t.Fatal(err)
	}
	if len(triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(triggers))
	}
	if _, err := ParseTriggers("* MIDI"); err == nil {
		t.Fatal("wildcard control trigger must be rejected")
	}
	if _, err := ParseTriggers("C4 NOTES"); err == nil {
		t.Fatal("control trigger with argdef must be rejected")
	}
}
