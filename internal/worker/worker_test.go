package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/midi-macros/midi-macros/internal/locks"
	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/predicate"
)

func chordNotes() []macro.PlayedNote {
	return []macro.PlayedNote{
		{Note: 60, Channel: 0, Velocity: 85, Time: 0},
		{Note: 64, Channel: 0, Velocity: 90, Time: 1},
		{Note: 67, Channel: 0, Velocity: 95, Time: 2},
	}
}

func aspnJoiner(sep string) *macro.ArgumentProcessor {
	return &macro.ArgumentProcessor{
		Separator: sep,
		Format:    []macro.FormatPart{{Field: macro.Formats["ASPN"]}},
	}
}

func TestRenderJoinerNotes(t *testing.T) {
	script := &macro.Script{
		Text: "echo",
		ArgumentDefinition: &macro.ArgumentDefinition{
			Kind:      macro.ArgPlayedNotes,
			Range:     macro.UnboundedRange,
			Processor: aspnJoiner("-"),
		},
	}
	w := New(script, locks.New())
	argString, finalText, usesStdin, err := w.renderInvocation(Invocation{Notes: chordNotes()})
	if err != nil {
		t.Fatal(err)
	}
	if argString != "C4-E4-G4" {
		t.Errorf("argString: %q", argString)
	}
	if finalText != "echo" || !usesStdin {
		t.Errorf("finalText=%q usesStdin=%v", finalText, usesStdin)
	}
}

func TestRenderDefaultJoinerIsMIDINumbers(t *testing.T) {
	script := &macro.Script{
		Text:               "echo",
		ArgumentDefinition: &macro.ArgumentDefinition{Kind: macro.ArgPlayedNotes, Range: macro.UnboundedRange},
	}
	w := New(script, locks.New())
	argString, _, _, err := w.renderInvocation(Invocation{Notes: chordNotes()})
	if err != nil {
		t.Fatal(err)
	}
	if argString != "60 64 67" {
		t.Errorf("argString: %q", argString)
	}
}

func TestRenderPreprocessorEditsScriptText(t *testing.T) {
	script := &macro.Script{
		Text: "play $* now",
		ArgumentDefinition: &macro.ArgumentDefinition{
			Kind:  macro.ArgPlayedNotes,
			Range: macro.UnboundedRange,
			Processor: &macro.ArgumentProcessor{
				Replacements: []macro.Replacement{{Token: "$*", Processor: aspnJoiner(",")}},
			},
		},
	}
	w := New(script, locks.New())
	argString, finalText, usesStdin, err := w.renderInvocation(Invocation{Notes: chordNotes()})
	if err != nil {
		t.Fatal(err)
	}
	if finalText != "play C4,E4,G4 now" {
		t.Errorf("finalText: %q", finalText)
	}
	if argString != "" || usesStdin {
		t.Errorf("preprocessor must not produce a stdin argument, got %q", argString)
	}
}

func TestRenderMidiMessage(t *testing.T) {
	script := &macro.Script{
		Text:               "echo",
		ArgumentDefinition: &macro.ArgumentDefinition{Kind: macro.ArgMidi},
	}
	w := New(script, locks.New())
	msg := &macro.MIDIMessage{StatusNibble: 11, Channel: 0, Data1: 74, Data2: 100, Time: 5}
	argString, _, _, err := w.renderInvocation(Invocation{MIDI: msg})
	if err != nil {
		t.Fatal(err)
	}
	if argString != "11 74 100" {
		t.Errorf("argString: %q", argString)
	}
}

func TestRenderInvocationFormatWrapsArgs(t *testing.T) {
	script := &macro.Script{
		Text: "echo",
		ArgumentDefinition: &macro.ArgumentDefinition{
			Kind:      macro.ArgPlayedNotes,
			Range:     macro.UnboundedRange,
			Processor: aspnJoiner("-"),
		},
	}
	expr, err := predicate.Compile("ARGS")
	if err != nil {
		t.Fatal(err)
	}
	script.InvocationFormat = &macro.FormatExpr{Parts: []macro.FormatExprPart{
		{Literal: "notes="},
		{Expr: expr},
	}}
	w := New(script, locks.New())
	argString, _, _, err := w.renderInvocation(Invocation{Notes: chordNotes()})
	if err != nil {
		t.Fatal(err)
	}
	if argString != "notes=C4-E4-G4" {
		t.Errorf("argString: %q", argString)
	}
}

func TestDebounceRunsOnlyLastOfDrainedBatch(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	script := &macro.Script{
		Text:               fmt.Sprintf("printf x >> %s", out),
		Flags:              macro.FlagDebounce | macro.FlagBlock,
		ArgumentDefinition: macro.ZeroArgumentDefinition,
	}
	w := New(script, locks.New())
	for i := 0; i < 3; i++ {
		w.q.push(item{inv: Invocation{}})
	}
	w.q.push(item{sentinel: true})
	w.run(context.Background())
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1 {
		t.Fatalf("debounced batch ran %d times, want 1", len(data))
	}
}

func TestNonDebounceRunsEveryQueuedItem(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	script := &macro.Script{
		Text:               fmt.Sprintf("printf x >> %s", out),
		Flags:              macro.FlagBlock,
		ArgumentDefinition: macro.ZeroArgumentDefinition,
	}
	w := New(script, locks.New())
	for i := 0; i < 3; i++ {
		w.q.push(item{inv: Invocation{}})
	}
	w.q.push(item{sentinel: true})
	w.run(context.Background())
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 3 {
		t.Fatalf("ran %d times, want 3", len(data))
	}
}

func TestBackgroundSpawnsOneChildFedOverStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	script := &macro.Script{
		Text:  fmt.Sprintf("cat >> %s", out),
		Flags: macro.FlagBackground,
		ArgumentDefinition: &macro.ArgumentDefinition{
			Kind:      macro.ArgPlayedNotes,
			Range:     macro.UnboundedRange,
			Processor: aspnJoiner("-"),
		},
	}
	w := New(script, locks.New())
	w.q.push(item{inv: Invocation{Notes: chordNotes()[:1]}})
	w.q.push(item{inv: Invocation{Notes: chordNotes()[1:2]}})
	w.q.push(item{sentinel: true})
	w.run(context.Background()) // teardown closes stdin and waits on the child
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 || lines[0] != "C4" || lines[1] != "E4" {
		t.Fatalf("background child saw %q", string(data))
	}
}

func TestShutdownWithoutQueueDoesNotHang(t *testing.T) {
	script := &macro.Script{Text: "true", ArgumentDefinition: macro.ZeroArgumentDefinition}
	w := New(script, locks.New())
	w.Shutdown() // must return immediately
}

func TestQueueShutdownDrains(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	script := &macro.Script{
		Text:               fmt.Sprintf("printf x >> %s", out),
		Flags:              macro.FlagBlock,
		ArgumentDefinition: macro.ZeroArgumentDefinition,
	}
	w := New(script, locks.New())
	w.Queue(context.Background(), Invocation{})
	w.Shutdown()
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1 {
		t.Fatalf("queued invocation did not run before shutdown, file=%q", string(data))
	}
}
