package config

import (
	"strings"
	"testing"

	"github.com/go-test/deep"
)

const sampleConfig = `
socket_path = "/tmp/mm.sock"

[profile.piano]
midi_input_port = "Piano MIDI In"
macro_file = "piano.macros"
debounce_callbacks = true
enable_trigger = "C8"
enabled_callback_script = "/usr/local/bin/notify"

[[profile.piano.subprofile]]
name = "lead"
macro_file = "piano-lead.macros"

[[profile.piano.subprofile]]
name = "rhythm"
macro_file = "piano-rhythm.macros"

[profile.pads]
midi_input_port = "Pad Controller"
macro_file = "pads.macros"
enabled = false
virtual_sustain_default = true
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse(sampleConfig)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SocketPath != "/tmp/mm.sock" {
		t.Errorf("socket path: %q", cfg.SocketPath)
	}
	want := &Profile{
		Name:                  "piano",
		MidiInputPort:         "Piano MIDI In",
		MacroFile:             "piano.macros",
		Enabled:               true,
		DebounceCallbacks:     true,
		EnabledCallbackScript: "/usr/local/bin/notify",
		EnableTrigger:         "C8",
		Subprofiles: []Subprofile{
			{Name: "lead", MacroFile: "piano-lead.macros"},
			{Name: "rhythm", MacroFile: "piano-rhythm.macros"},
		},
	}
	if diff := deep.Equal(cfg.Profiles["piano"], want); diff != nil {
		t.Error(diff)
	}

	pads := cfg.Profiles["pads"]
	if pads.Enabled {
		t.Error("pads should be disabled")
	}
	if !pads.VirtualSustainDefault {
		t.Error("pads should default virtual sustain on")
	}
}

func TestMissingRequiredSetting(t *testing.T) {
	src := "[profile.piano]\nmacro_file = \"x.macros\"\n"
	_, err := Parse(src)
	if err == nil || !strings.Contains(err.Error(), "midi_input_port") {
		t.Fatalf("expected missing midi_input_port error, got %v", err)
	}
}

func TestMissingSubprofileName(t *testing.T) {
	src := `
[profile.p]
midi_input_port = "in"
macro_file = "m"

[[profile.p.subprofile]]
macro_file = "sub.macros"
`
	if _, err := Parse(src); err == nil {
		t.Fatal("expected missing subprofile name error")
	}
}

func TestUnrecognizedKeyRejected(t *testing.T) {
	src := `
[profile.p]
midi_input_port = "in"
macro_file = "m"
not_a_setting = 5
`
	_, err := Parse(src)
	if err == nil || !strings.Contains(err.Error(), "unrecognized") {
		t.Fatalf("expected unrecognized-setting error, got %v", err)
	}
}

func TestMalformedTOMLRejected(t *testing.T) {
	if _, err := Parse("= nonsense ="); err == nil {
		t.Fatal("expected a parse error")
	}
}
