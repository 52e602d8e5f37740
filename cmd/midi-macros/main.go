// midi-macros watches MIDI input ports and launches shell scripts when
// the held notes match user-declared patterns. Run with no subcommand
// it starts the daemon; the reload, get-loaded-profiles, and profile
// subcommands drive a running daemon over its control socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/midi-macros/midi-macros/internal/app"
	"github.com/midi-macros/midi-macros/internal/bootstrap"
	"github.com/midi-macros/midi-macros/internal/ipc"
)

var (
	configPath string
	macroDir   string
	socketPath string
)

func main() {
	root := &cobra.Command{
		Use:   "midi-macros",
		Short: "Trigger shell scripts from MIDI note patterns",
		RunE:  runDaemon,
		// The daemon takes no positional arguments.
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: user config dir)")
	root.PersistentFlags().StringVar(&macroDir, "macro-dir", "", "directory macro files resolve against (default: <config dir>/macros)")
	root.PersistentFlags().StringVar(&socketPath, "socket", "", "control socket path (default: $XDG_RUNTIME_DIR/midi-macros-ipc.sock)")

	root.AddCommand(
		clientCommand("reload", "Re-parse all configs in the running daemon", []string{"reload"}),
		clientCommand("get-loaded-profiles", "List the running daemon's profiles", []string{"get-loaded-profiles"}),
		profileCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(-1)
	}
}

// resolvePaths fills in the config file and macro directory, creating
// them on first run.
func resolvePaths() error {
	if configPath == "" {
		dir, err := bootstrap.ConfigDir()
		if err != nil {
			return err
		}
		configPath, err = bootstrap.EnsureConfigFile(dir)
		if err != nil {
			return err
		}
	}
	if macroDir == "" {
		macroDir = filepath.Join(filepath.Dir(configPath), "macros")
	}
	return bootstrap.EnsureDir(macroDir)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if err := resolvePaths(); err != nil {
		return err
	}
	a := app.New(configPath, macroDir)
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	return nil
}

func controlSocket() string {
	if socketPath != "" {
		return socketPath
	}
	return ipc.SocketPath()
}

// send performs one control-socket round trip and prints the response
// body. A failed verb becomes a non-nil error so the process exits
// non-zero.
func send(message []string) error {
	success, body, err := ipc.Send(controlSocket(), message)
	if err != nil {
		return err
	}
	if !success {
		return fmt.Errorf("%s", body)
	}
	if body != "" {
		fmt.Println(body)
	}
	return nil
}

func clientCommand(use, short string, message []string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return send(message)
		},
	}
}

func profileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <name> <action> [arg]",
		Short: "Control one profile in the running daemon",
		Long: `Control one profile in the running daemon.

Actions: toggle, enable, disable, get-loaded-subprofiles,
cycle-subprofiles, set-subprofile <name>, virtual-sustain
toggle|enable|disable.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			return send(append([]string{"profile"}, args...))
		},
	}
}
