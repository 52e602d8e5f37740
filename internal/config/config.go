// Package config loads the TOML configuration file: a global section
// plus independent named profiles, each with optional named
// subprofiles.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Error is a configuration violation: a missing required setting or an
// unrecognized key. It aborts the reload that produced it.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Subprofile is one named, switchable variant of a profile's macro set.
type Subprofile struct {
	Name      string
	MacroFile string
}

// Profile is one independent, named listener configuration.
type Profile struct {
	Name                         string
	MidiInputPort                string
	MacroFile                    string
	Enabled                      bool
	VirtualSustainDefault        bool
	DebounceCallbacks            bool
	EnabledCallbackScript        string
	VirtualSustainCallbackScript string
	SubprofileCallbackScript     string
	EnableTrigger                string
	CycleSubprofilesTrigger      string
	Subprofiles                  []Subprofile
}

// Config is the fully validated, defaulted configuration tree.
type Config struct {
	SocketPath string
	Profiles   map[string]*Profile
}

// rawConfig mirrors the TOML shape BurntSushi/toml decodes directly
// into; rawProfile/rawSubprofile carry the same field names as the
// setting tables in settings.go.
type rawConfig struct {
	SocketPath string                 `toml:"socket_path"`
	Profile    map[string]rawProfile  `toml:"profile"`
}

type rawProfile struct {
	MidiInputPort                string          `toml:"midi_input_port"`
	MacroFile                    string          `toml:"macro_file"`
	Enabled                      *bool           `toml:"enabled"`
	VirtualSustainDefault        *bool           `toml:"virtual_sustain_default"`
	DebounceCallbacks            *bool           `toml:"debounce_callbacks"`
	EnabledCallbackScript        string          `toml:"enabled_callback_script"`
	VirtualSustainCallbackScript string          `toml:"virtual_sustain_callback_script"`
	SubprofileCallbackScript     string          `toml:"subprofile_callback_script"`
	EnableTrigger                string          `toml:"enable_trigger"`
	CycleSubprofilesTrigger      string          `toml:"cycle_subprofiles_trigger"`
	Subprofile                  []rawSubprofile `toml:"subprofile"`
}

type rawSubprofile struct {
	Name      string `toml:"name"`
	MacroFile string `toml:"macro_file"`
}

// Parse decodes TOML source text into a validated Config. Every
// profile and subprofile is checked against its allow-list of
// recognized keys and its required keys; reload is all-or-nothing, so
// the first violation aborts the whole parse.
func Parse(source string) (*Config, error) {
	var raw rawConfig
	meta, err := toml.Decode(source, &raw)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("config: %v", err)}
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &Error{Message: fmt.Sprintf("config: unrecognized setting(s): %v", keys)}
	}

	cfg := &Config{SocketPath: raw.SocketPath, Profiles: map[string]*Profile{}}
	for name, rp := range raw.Profile {
		p, err := buildProfile(name, rp)
		if err != nil {
			return nil, err
		}
		cfg.Profiles[name] = p
	}
	return cfg, nil
}

// checkRequired reports an Error naming the first required key in
// specs whose value is absent from present.
func checkRequired(section string, specs []settingSpec, present map[string]string) error {
	for _, key := range requiredKeys(specs) {
		if present[key] == "" {
			return &Error{Message: fmt.Sprintf("config: %s missing required setting %q", section, key)}
		}
	}
	return nil
}

func buildProfile(name string, rp rawProfile) (*Profile, error) {
	if err := checkRequired(fmt.Sprintf("profile %q", name), profileSettings, map[string]string{
		"midi_input_port": rp.MidiInputPort,
		"macro_file":      rp.MacroFile,
	}); err != nil {
		return nil, err
	}
	p := &Profile{
		Name:                         name,
		MidiInputPort:                rp.MidiInputPort,
		MacroFile:                    rp.MacroFile,
		Enabled:                      boolDefault(rp.Enabled, true),
		VirtualSustainDefault:        boolDefault(rp.VirtualSustainDefault, false),
		DebounceCallbacks:            boolDefault(rp.DebounceCallbacks, false),
		EnabledCallbackScript:        rp.EnabledCallbackScript,
		VirtualSustainCallbackScript: rp.VirtualSustainCallbackScript,
		SubprofileCallbackScript:     rp.SubprofileCallbackScript,
		EnableTrigger:                rp.EnableTrigger,
		CycleSubprofilesTrigger:      rp.CycleSubprofilesTrigger,
	}
	for _, rs := range rp.Subprofile {
		if err := checkRequired(fmt.Sprintf("profile %q subprofile", name), subprofileSettings, map[string]string{
			"name":       rs.Name,
			"macro_file": rs.MacroFile,
		}); err != nil {
			return nil, err
		}
		p.Subprofiles = append(p.Subprofiles, Subprofile{Name: rs.Name, MacroFile: rs.MacroFile})
	}
	return p, nil
}

func boolDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
