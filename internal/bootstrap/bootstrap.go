// Package bootstrap creates the config directory and a commented
// default config file on first run.
package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDirName = "midi-macros"

const defaultConfig = `# midi-macros configuration.
# socket_path defaults to $XDG_RUNTIME_DIR/midi-macros-ipc.sock or the
# system temp dir when unset.
# socket_path = ""

# [profile.example]
# midi_input_port = "My MIDI Device"
# macro_file = "example.macros"
`

// ConfigDir returns the directory midi-macros reads its config and
// macro files from, creating the directory on first run. The default
// config.toml is written separately by EnsureConfigFile.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("bootstrap: %w", err)
	}
	dir := filepath.Join(base, appDirName)
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// EnsureDir creates path (and parents) if absent. It errors if a
// regular file already occupies path.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("bootstrap: %s exists and is not a directory", path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("bootstrap: creating %s: %w", path, err)
	}
	return nil
}

// EnsureConfigFile writes a commented default config.toml into dir if
// no config file exists there yet. It returns the config file's path.
func EnsureConfigFile(dir string) (string, error) {
	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("bootstrap: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("bootstrap: writing default config: %w", err)
	}
	return path, nil
}
