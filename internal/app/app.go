// Package app wires the pieces into a running instance: it loads the
// TOML config, parses every profile's macro files into tries, builds
// one listener per profile, and serves the control socket. Reloads are
// all-or-nothing: a new configuration is only promoted once every
// profile and subprofile has parsed successfully.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/midi-macros/midi-macros/internal/config"
	"github.com/midi-macros/midi-macros/internal/ipc"
	"github.com/midi-macros/midi-macros/internal/listener"
	"github.com/midi-macros/midi-macros/internal/macro"
	"github.com/midi-macros/midi-macros/internal/macroparser"
	"github.com/midi-macros/midi-macros/internal/mmlog"
	"github.com/midi-macros/midi-macros/internal/runtime"
	"github.com/midi-macros/midi-macros/internal/trie"
)

// App owns the process-wide runtime, the current listener set, and the
// control-socket server.
type App struct {
	ConfigPath string
	MacroDir   string

	rt     *runtime.Runtime
	server *ipc.Server

	mu        sync.Mutex
	listeners map[string]*listener.Listener
	debounce  map[string]bool
	started   bool
}

// New constructs an App reading configPath, resolving relative macro
// file names against macroDir.
func New(configPath, macroDir string) *App {
	a := &App{
		ConfigPath: configPath,
		MacroDir:   macroDir,
		listeners:  map[string]*listener.Listener{},
		debounce:   map[string]bool{},
	}
	a.rt = runtime.New(a.shouldDebounce)
	return a
}

func (a *App) shouldDebounce(profile string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.debounce[profile]
}

// built is one fully parsed profile, ready to become a listener. All
// parsing happens before any listener is touched so a reload either
// promotes everything or changes nothing.
type built struct {
	cfg      listener.Config
	debounce bool
}

// buildAll parses the config file and every macro file it names.
func (a *App) buildAll() (map[string]built, string, error) {
	raw, err := os.ReadFile(a.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config %s: %w", a.ConfigPath, err)
	}
	cfg, err := config.Parse(string(raw))
	if err != nil {
		return nil, "", err
	}
	out := map[string]built{}
	for name, p := range cfg.Profiles {
		b, err := a.buildProfile(p)
		if err != nil {
			return nil, "", fmt.Errorf("profile %q: %w", name, err)
		}
		out[name] = b
	}
	return out, cfg.SocketPath, nil
}

func (a *App) buildProfile(p *config.Profile) (built, error) {
	mainTree, err := a.parseMacroFile(p.MacroFile, p.Name, "")
	if err != nil {
		return built{}, err
	}
	var subs []listener.SubprofileEntry
	for _, sp := range p.Subprofiles {
		tree, err := a.parseMacroFile(sp.MacroFile, p.Name, sp.Name)
		if err != nil {
			return built{}, fmt.Errorf("subprofile %q: %w", sp.Name, err)
		}
		subs = append(subs, listener.SubprofileEntry{Name: sp.Name, Tree: tree})
	}
	var enableTrigger, cycleTrigger []macro.Trigger
	if p.EnableTrigger != "" {
		enableTrigger, err = macroparser.ParseTriggers(p.EnableTrigger)
		if err != nil {
			return built{}, fmt.Errorf("enable_trigger: %w", err)
		}
	}
	if p.CycleSubprofilesTrigger != "" {
		cycleTrigger, err = macroparser.ParseTriggers(p.CycleSubprofilesTrigger)
		if err != nil {
			return built{}, fmt.Errorf("cycle_subprofiles_trigger: %w", err)
		}
	}
	return built{
		cfg: listener.Config{
			Profile:                      p.Name,
			PortName:                     p.MidiInputPort,
			MainTree:                     mainTree,
			Subprofiles:                  subs,
			EnableTrigger:                enableTrigger,
			CycleSubprofilesTrigger:      cycleTrigger,
			InitiallyEnabled:             p.Enabled,
			VirtualSustainDefault:        p.VirtualSustainDefault,
			EnabledCallbackScript:        p.EnabledCallbackScript,
			VirtualSustainCallbackScript: p.VirtualSustainCallbackScript,
			SubprofileCallbackScript:     p.SubprofileCallbackScript,
		},
		debounce: p.DebounceCallbacks,
	}, nil
}

func (a *App) parseMacroFile(path, profile, subprofile string) (*trie.Tree, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.MacroDir, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading macro file %s: %w", path, err)
	}
	macros, err := macroparser.Parse(string(raw), profile, subprofile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	tree := trie.New()
	ctx := mmlog.With(context.Background(), profile, subprofile)
	for _, m := range macros {
		mmlog.Infof(ctx, "adding macro %s", m)
		tree.Insert(m)
	}
	return tree, nil
}

// Start performs the initial load, launches every listener and the
// callback dispatcher, and binds the control socket. A listener that
// fails to start (bad port, permissions) is logged and skipped; the
// others continue.
func (a *App) Start(ctx context.Context) error {
	builds, socketPath, err := a.buildAll()
	if err != nil {
		return err
	}
	a.rt.Start(ctx)
	a.promote(builds)

	if socketPath == "" {
		socketPath = ipc.SocketPath()
	}
	server, err := ipc.NewServer(socketPath, a.Handle)
	if err != nil {
		a.stopListeners()
		a.rt.Stop()
		return fmt.Errorf("control socket: %w", err)
	}
	a.server = server
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	return nil
}

// promote swaps the listener set: old listeners are stopped and
// drained first, then the new ones are started.
func (a *App) promote(builds map[string]built) {
	a.stopListeners()

	newListeners := map[string]*listener.Listener{}
	newDebounce := map[string]bool{}
	names := make([]string, 0, len(builds))
	for name := range builds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := builds[name]
		l := listener.New(b.cfg, a.rt)
		ctx := mmlog.With(context.Background(), name, "")
		if err := l.Start(); err != nil {
			mmlog.Errorf(ctx, "not starting listener: %v", err)
			continue
		}
		mmlog.Infof(ctx, "listening on %q", b.cfg.PortName)
		newListeners[name] = l
		newDebounce[name] = b.debounce
	}

	a.mu.Lock()
	a.listeners = newListeners
	a.debounce = newDebounce
	a.mu.Unlock()
}

func (a *App) stopListeners() {
	a.mu.Lock()
	old := a.listeners
	a.listeners = map[string]*listener.Listener{}
	a.mu.Unlock()
	for _, l := range old {
		l.Stop()
	}
}

// Reload re-parses everything and, only if every profile succeeded,
// swaps the listener set.
func (a *App) Reload() error {
	builds, _, err := a.buildAll()
	if err != nil {
		return err
	}
	a.promote(builds)
	return nil
}

// Stop tears the instance down: control socket first so no new verbs
// arrive, then listeners, then the callback dispatcher.
func (a *App) Stop() {
	if a.server != nil {
		a.server.Close()
		a.server = nil
	}
	a.stopListeners()
	a.rt.Stop()
}

// Profiles returns the loaded profile names, sorted.
func (a *App) Profiles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, 0, len(a.listeners))
	for name := range a.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *App) lookup(name string) (*listener.Listener, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.listeners[name]
	return l, ok
}
