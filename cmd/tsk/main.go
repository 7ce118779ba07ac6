// Package main implements tsk, the CLI front end for the task vault. It
// talks to a running taskd daemon when one is configured and falls back to
// direct vault access when the daemon is down.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/access"
	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/daemon"
	"github.com/fyrsmithlabs/taskd/internal/vault"
)

var (
	configPath string
	fileOnly   bool
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tsk",
	Short: "Manage tasks in the vault",
	Long: `tsk manages markdown tasks stored in a vault of status folders.

When a taskd daemon is configured, commands go through it; if the daemon
is unreachable, tsk writes to the vault directly and says so.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&fileOnly, "file-only", false, "skip the daemon and use the vault directly")
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(healthCmd)
	for _, c := range transitionCmds() {
		rootCmd.AddCommand(c)
	}
}

// newLayer wires the access layer from config. The returned cleanup must
// run before exit.
func newLayer() (*access.Layer, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	// The CLI stays quiet; fallbacks are reported through the notifier.
	logger := zap.NewNop()

	vaultBackend, err := vault.New(vault.Config{
		Root:        cfg.Vault.Root,
		SkipCorrupt: cfg.Vault.SkipCorrupt,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open vault: %w", err)
	}

	var daemonBackend *daemon.Client
	if cfg.Daemon.Enabled && !fileOnly {
		daemonBackend = daemon.New(daemon.Config{
			BaseURL: cfg.Daemon.URL,
			Timeout: cfg.Daemon.Timeout.Duration(),
		}, logger)
	}

	notify := access.Notifier(func(op string, cause error) {
		fmt.Fprintf(os.Stderr, "warning: daemon unreachable, %s saved to vault directly\n", op)
	})

	layerCfg := access.Config{DefaultStatus: cfg.DefaultStatus()}
	var layer *access.Layer
	if daemonBackend != nil {
		layer = access.New(vaultBackend, daemonBackend, layerCfg, logger, access.WithFallbackNotifier(notify))
	} else {
		layer = access.New(vaultBackend, nil, layerCfg, logger)
	}
	return layer, func() { vaultBackend.Close() }, nil
}
