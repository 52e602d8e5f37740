package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleRejectsMalformedMessages(t *testing.T) {
	a := New("", "")
	table := []struct {
		message []string
		hint    string
	}{
		{nil, "empty"},
		{[]string{"bogus"}, "unknown"},
		{[]string{"reload", "extra"}, "no arguments"},
		{[]string{"get-loaded-profiles", "extra"}, "no arguments"},
		{[]string{"profile"}, "requires"},
		{[]string{"profile", "ghost", "toggle"}, "no loaded profile"},
	}
	for _, test := range table {
		success, body := a.Handle(test.message)
		if success {
			t.Errorf("%v: expected failure", test.message)
		}
		if !strings.Contains(body, test.hint) {
			t.Errorf("%v: body %q missing %q", test.message, body, test.hint)
		}
	}
}

func TestHandleGetLoadedProfilesEmpty(t *testing.T) {
	a := New("", "")
	success, body := a.Handle([]string{"get-loaded-profiles"})
	if !success || body != "" {
		t.Fatalf("got %v, %q", success, body)
	}
}

func TestBuildAllRejectsBadMacroFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	macroPath := filepath.Join(dir, "bad.macros")
	if err := os.WriteFile(configPath, []byte(
		"[profile.p]\nmidi_input_port = \"in\"\nmacro_file = \"bad.macros\"\n",
	), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(macroPath, []byte("not a macro\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := New(configPath, dir)
	if _, _, err := a.buildAll(); err == nil {
		t.Fatal("expected a parse error to abort the build")
	}
}

func TestBuildAllParsesProfilesAndSubprofiles(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	files := map[string]string{
		"main.macros": "C4 -> echo main\n",
		"lead.macros": "D4 -> echo lead\n* MIDI{s==11} -> echo cc\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(configPath, []byte(`
[profile.p]
midi_input_port = "in"
macro_file = "main.macros"
enable_trigger = "C8 + B7"

[[profile.p.subprofile]]
name = "lead"
macro_file = "lead.macros"
`), 0o644); err != nil {
		t.Fatal(err)
	}
	a := New(configPath, dir)
	builds, socketPath, err := a.buildAll()
	if err != nil {
		t.Fatal(err)
	}
	if socketPath != "" {
		t.Errorf("socket path: %q", socketPath)
	}
	b, ok := builds["p"]
	if !ok {
		t.Fatal("profile p missing from build")
	}
	if b.cfg.MainTree == nil {
		t.Error("main tree not built")
	}
	if len(b.cfg.Subprofiles) != 1 || b.cfg.Subprofiles[0].Name != "lead" {
		t.Errorf("subprofiles: %+v", b.cfg.Subprofiles)
	}
	if len(b.cfg.EnableTrigger) != 2 {
		t.Errorf("enable trigger: %+v", b.cfg.EnableTrigger)
	}
}
