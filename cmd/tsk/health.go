package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/daemon"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check whether the taskd daemon is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if !cfg.Daemon.Enabled || fileOnly {
			fmt.Printf("daemon: disabled (file-only mode)\nvault:  %s\n", cfg.Vault.Root)
			return nil
		}

		client := daemon.New(daemon.Config{
			BaseURL: cfg.Daemon.URL,
			Timeout: cfg.Daemon.Timeout.Duration(),
		}, zap.NewNop())

		if !client.TestConnection(cmd.Context()) {
			fmt.Printf("daemon: unreachable at %s\nvault:  %s (fallback)\n", cfg.Daemon.URL, cfg.Vault.Root)
			// Unreachable is an answer, not a command failure.
			return nil
		}

		health, checkedAt, _ := client.LastHealth()
		fmt.Printf("daemon:  %s (%s, up %s)\n", health.Status, health.Version, health.Uptime)
		fmt.Printf("tasks:   %d (refreshed %s)\n", health.Cache.TaskCount, health.Cache.LastRefresh.Local().Format("15:04:05"))
		fmt.Printf("checked: %s\n", checkedAt.Local().Format("15:04:05"))
		fmt.Printf("vault:   %s\n", cfg.Vault.Root)
		return nil
	},
}
