package presstracker

import (
	"context"
	"testing"

	"github.com/go-test/deep"

	"github.com/midi-macros/midi-macros/internal/macro"
)

type call struct {
	held []macro.PlayedNote
	raw  bool
}

type recorder struct {
	calls []call
}

func (r *recorder) exec() Executor {
	return ExecutorFunc(func(held []macro.PlayedNote, msg *macro.MIDIMessage) {
		r.calls = append(r.calls, call{held: held, raw: msg != nil})
	})
}

// evaluations returns only the held-notes evaluations, dropping the
// raw-message calls wildcard catchers get.
func (r *recorder) evaluations() [][]macro.PlayedNote {
	var out [][]macro.PlayedNote
	for _, c := range r.calls {
		if !c.raw {
			out = append(out, c.held)
		}
	}
	return out
}

func noteOn(note, channel, velocity int, at int64) macro.MIDIMessage {
	return macro.MIDIMessage{StatusNibble: statusNoteOn, Channel: channel, Data1: note, Data2: velocity, Time: at}
}

func noteOff(note, channel int, at int64) macro.MIDIMessage {
	return macro.MIDIMessage{StatusNibble: statusNoteOff, Channel: channel, Data1: note, Time: at}
}

func sustain(channel, value int, at int64) macro.MIDIMessage {
	return macro.MIDIMessage{StatusNibble: statusControlChange, Channel: channel, Data1: ccSustainPedal, Data2: value, Time: at}
}

func feed(t *Tracker, msgs ...macro.MIDIMessage) {
	for _, m := range msgs {
		t.HandleMessage(context.Background(), m)
	}
}

func heldNumbers(t *Tracker) []int {
	var out []int
	for _, pn := range t.Held() {
		out = append(out, pn.Note)
	}
	return out
}

func TestPressReleaseTrace(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr, noteOn(60, 0, 90, 0), noteOff(60, 0, 10))
	if len(tr.Held()) != 0 {
		t.Fatalf("held after release: %v", tr.Held())
	}
	evals := rec.evaluations()
	if len(evals) != 1 {
		t.Fatalf("expected exactly one evaluation, got %d", len(evals))
	}
	if evals[0][0].Note != 60 || evals[0][0].Velocity != 90 {
		t.Fatalf("evaluation saw %v", evals[0])
	}
}

func TestHeldOrderIsPressOrder(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr, noteOn(67, 0, 90, 0), noteOn(60, 0, 90, 1), noteOn(64, 0, 90, 2))
	if diff := deep.Equal(heldNumbers(tr), []int{67, 60, 64}); diff != nil {
		t.Error(diff)
	}
}

func TestVelocityZeroNoteOnIsRelease(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr, noteOn(60, 0, 90, 0), noteOn(60, 0, 0, 10))
	if len(tr.Held()) != 0 {
		t.Fatalf("held after vel-0 note-on: %v", tr.Held())
	}
	if len(rec.evaluations()) != 1 {
		t.Fatal("vel-0 note-on should evaluate like a release")
	}
}

func TestOnlyFirstReleaseOfAChordEvaluates(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr,
		noteOn(60, 0, 85, 0), noteOn(64, 0, 90, 1), noteOn(67, 0, 95, 2),
		noteOff(60, 0, 10), noteOff(64, 0, 11), noteOff(67, 0, 12),
	)
	evals := rec.evaluations()
	if len(evals) != 1 {
		t.Fatalf("expected one evaluation for the chord, got %d", len(evals))
	}
	if diff := deep.Equal(evals[0], []macro.PlayedNote{
		{Note: 60, Channel: 0, Velocity: 85, Time: 0},
		{Note: 64, Channel: 0, Velocity: 90, Time: 1},
		{Note: 67, Channel: 0, Velocity: 95, Time: 2},
	}); diff != nil {
		t.Error(diff)
	}
	if len(tr.Held()) != 0 {
		t.Fatalf("held after all releases: %v", tr.Held())
	}
}

func TestSustainRetainsReleasedNotes(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr, noteOn(60, 0, 80, 0), sustain(0, 127, 1), noteOff(60, 0, 2))
	if diff := deep.Equal(heldNumbers(tr), []int{60}); diff != nil {
		t.Error(diff)
	}
	if len(rec.evaluations()) != 0 {
		t.Fatal("queued release must not evaluate")
	}

	feed(tr, sustain(0, 0, 3))
	if len(tr.Held()) != 0 {
		t.Fatalf("held after sustain release: %v", tr.Held())
	}
	// Macros fire against the still-held list before trimming.
	evals := rec.evaluations()
	if len(evals) != 1 || len(evals[0]) != 1 || evals[0][0].Note != 60 {
		t.Fatalf("sustain-release evaluations: %v", evals)
	}
}

func TestSustainIsPerChannel(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr,
		sustain(0, 127, 0),
		noteOn(60, 0, 80, 1), noteOn(62, 1, 80, 2),
		noteOff(60, 0, 3), noteOff(62, 1, 4),
	)
	// Channel 1 has no sustain: 62 released immediately; 60 queued.
	if diff := deep.Equal(heldNumbers(tr), []int{60}); diff != nil {
		t.Error(diff)
	}
	feed(tr, sustain(1, 0, 5))
	if diff := deep.Equal(heldNumbers(tr), []int{60}); diff != nil {
		t.Error(diff)
	}
	feed(tr, sustain(0, 0, 6))
	if len(tr.Held()) != 0 {
		t.Fatalf("held: %v", tr.Held())
	}
}

func TestRestrikeDuringSustainDuplicates(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr,
		sustain(0, 127, 0),
		noteOn(60, 0, 80, 1), noteOff(60, 0, 2), noteOn(60, 0, 90, 3),
	)
	if diff := deep.Equal(heldNumbers(tr), []int{60, 60}); diff != nil {
		t.Error(diff)
	}
	// The re-press cleared the queued release; pedal up keeps both
	// entries held until a real release arrives.
	feed(tr, sustain(0, 0, 4))
	if diff := deep.Equal(heldNumbers(tr), []int{60, 60}); diff != nil {
		t.Error(diff)
	}
	feed(tr, noteOff(60, 0, 5))
	if len(tr.Held()) != 0 {
		t.Fatalf("held: %v", tr.Held())
	}
}

func TestVirtualSustainRetainsAndReleases(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	tr.SetVirtualPedalDown(context.Background(), true)
	feed(tr, noteOn(60, 0, 80, 0), noteOff(60, 0, 1))
	if diff := deep.Equal(heldNumbers(tr), []int{60}); diff != nil {
		t.Error(diff)
	}
	tr.SetVirtualPedalDown(context.Background(), false)
	if len(tr.Held()) != 0 {
		t.Fatalf("held after virtual release: %v", tr.Held())
	}
	if len(rec.evaluations()) != 1 {
		t.Fatalf("expected one evaluation at virtual release, got %d", len(rec.evaluations()))
	}
}

func TestVirtualSustainYieldsToPhysicalPedal(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	tr.SetVirtualPedalDown(context.Background(), true)
	feed(tr, sustain(0, 127, 0), noteOn(60, 0, 80, 1), noteOff(60, 0, 2))
	tr.SetVirtualPedalDown(context.Background(), false)
	// Channel 0's physical pedal still sustains.
	if diff := deep.Equal(heldNumbers(tr), []int{60}); diff != nil {
		t.Error(diff)
	}
	feed(tr, sustain(0, 0, 3))
	if len(tr.Held()) != 0 {
		t.Fatalf("held: %v", tr.Held())
	}
}

func TestRawMessageReachesExecutorOncePerNoteEvent(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	feed(tr, noteOn(60, 0, 90, 0), noteOff(60, 0, 1))
	rawCalls := 0
	for _, c := range rec.calls {
		if c.raw {
			rawCalls++
		}
	}
	if rawCalls != 2 {
		t.Fatalf("expected 2 raw-message calls, got %d", rawCalls)
	}
}

func TestExtraMessageSincePressSuppressesReleaseEvaluation(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	pitchBend := macro.MIDIMessage{StatusNibble: 0xE, Channel: 0, Data1: 0, Data2: 64, Time: 1}
	feed(tr, noteOn(60, 0, 90, 0), pitchBend, noteOff(60, 0, 2))
	if len(rec.evaluations()) != 0 {
		t.Fatal("release after an extra message must not evaluate held notes")
	}
	if len(tr.Held()) != 0 {
		t.Fatalf("held: %v", tr.Held())
	}
}

func TestAftertouchIsNotAnExtraMessage(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.exec())
	at := macro.MIDIMessage{StatusNibble: statusChannelAftertouch, Channel: 0, Data1: 60, Time: 1}
	feed(tr, noteOn(60, 0, 90, 0), at, noteOff(60, 0, 2))
	if len(rec.evaluations()) != 1 {
		t.Fatal("aftertouch must not suppress the release evaluation")
	}
}
