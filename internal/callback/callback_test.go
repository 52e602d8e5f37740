package callback

import (
	"context"
	"testing"

	"github.com/go-test/deep"
)

func TestCoalesceKeepsLastPerKindForDebouncingProfiles(t *testing.T) {
	d := New(func(profile string) bool { return profile == "piano" })
	batch := []Callback{
		{Profile: "piano", Kind: KindEnabled, Payload: "enabled"},
		{Profile: "organ", Kind: KindEnabled, Payload: "enabled"},
		{Profile: "piano", Kind: KindSubprofile, Payload: "lead"},
		{Profile: "piano", Kind: KindEnabled, Payload: "disabled"},
		{Profile: "organ", Kind: KindEnabled, Payload: "disabled"},
	}
	got := d.coalesce(batch)
	want := []Callback{
		{Profile: "organ", Kind: KindEnabled, Payload: "enabled"},
		{Profile: "piano", Kind: KindSubprofile, Payload: "lead"},
		{Profile: "piano", Kind: KindEnabled, Payload: "disabled"},
		{Profile: "organ", Kind: KindEnabled, Payload: "disabled"},
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}

func TestCoalesceWithoutDebounceIsIdentity(t *testing.T) {
	d := New(func(string) bool { return false })
	batch := []Callback{
		{Profile: "p", Kind: KindEnabled, Payload: "enabled"},
		{Profile: "p", Kind: KindEnabled, Payload: "disabled"},
	}
	if diff := deep.Equal(d.coalesce(batch), batch); diff != nil {
		t.Error(diff)
	}
}

func TestToggleUntoggleCollapsesToFinalState(t *testing.T) {
	d := New(func(string) bool { return true })
	batch := []Callback{
		{Profile: "p", Kind: KindEnabled, Payload: "enabled"},
		{Profile: "p", Kind: KindEnabled, Payload: "disabled"},
	}
	got := d.coalesce(batch)
	if len(got) != 1 || got[0].Payload != "disabled" {
		t.Fatalf("coalesce: %+v", got)
	}
}

func TestStopDrainsQueuedCallbacks(t *testing.T) {
	d := New(nil)
	go d.Run(context.Background())
	// No ScriptPath: drained without spawning anything.
	d.Enqueue(Callback{Profile: "p", Kind: KindEnabled, Payload: "enabled"})
	d.Stop() // returns only once Run has exited
}
