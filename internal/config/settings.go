package config

// settingSpec describes one recognized TOML key: whether it is
// required and, if not, the value substituted when absent.
type settingSpec struct {
	Key      string
	Required bool
	Default  interface{}
}

var globalSettings = []settingSpec{
	{Key: "socket_path", Required: false, Default: ""},
}

var profileSettings = []settingSpec{
	{Key: "midi_input_port", Required: true},
	{Key: "macro_file", Required: true},
	{Key: "enabled", Required: false, Default: true},
	{Key: "virtual_sustain_default", Required: false, Default: false},
	{Key: "debounce_callbacks", Required: false, Default: false},
	{Key: "enabled_callback_script", Required: false, Default: ""},
	{Key: "virtual_sustain_callback_script", Required: false, Default: ""},
	{Key: "subprofile_callback_script", Required: false, Default: ""},
	{Key: "enable_trigger", Required: false, Default: ""},
	{Key: "cycle_subprofiles_trigger", Required: false, Default: ""},
	{Key: "subprofile", Required: false, Default: nil}, // table array, handled separately
}

var subprofileSettings = []settingSpec{
	{Key: "name", Required: true},
	{Key: "macro_file", Required: true},
}

func requiredKeys(specs []settingSpec) []string {
	var req []string
	for _, s := range specs {
		if s.Required {
			req = append(req, s.Key)
		}
	}
	return req
}
