package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/installer"
	"github.com/sprocio/sproc/internal/lifecycle"
)

// createPinCommand resolves a definition file and makes it the pinned
// configuration.
func createPinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <file>",
		Short: "Resolve a service definition file and pin it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Pin(args[0])
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			success("pinned %d services from %s", len(cfg.Services), args[0])
			return nil
		},
	}
}

func createPinnedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pinned",
		Short: "Print the pinned configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(config.PinnedPath())
			if os.IsNotExist(err) {
				failure("no pinned configuration, run `sproc pin <file>` first")
				return errFailed
			}
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			_, _ = fmt.Fprint(os.Stdout, string(body))
			return nil
		},
	}
}

// createMergeCommand unions a definition file into both the pinned
// configuration and its source file.
func createMergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <file>",
		Short: "Merge a definition file into the pinned configuration and its source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Merge(args[0]); err != nil {
				failure("%v", err)
				return errFailed
			}
			success("merged %s", args[0])
			return nil
		},
	}
}

// createPullCommand unions a definition file into the pinned configuration
// only, leaving the source file alone.
func createPullCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <file>",
		Short: "Merge a definition file into the pinned configuration only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Pull(args[0]); err != nil {
				failure("%v", err)
				return errFailed
			}
			success("pulled %s", args[0])
			return nil
		},
	}
}

func createInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install <registry> <service>",
		Short: "Install a service definition from a remote registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, name := args[0], args[1]
			ctx, cancel := context.WithTimeout(cmd.Context(), installer.DefaultTimeout)
			defer cancel()
			if _, err := installer.Install(ctx, nil, registry, name); err != nil {
				failure("%v", err)
				return errFailed
			}
			success("installed %s from %s", name, registry)
			return nil
		},
	}
}

func createUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <service>",
		Short: "Remove a service definition from the pinned configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// a running instance does not survive removal of its
			// definition; uninstalling would otherwise orphan the process
			eng, err := loadEngine()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			for _, r := range eng.Kill([]string{args[0]}) {
				if r.Err != nil && !errors.Is(r.Err, lifecycle.ErrNotRunning) {
					failure("%v", r.Err)
					return errFailed
				}
			}
			if err := config.Uninstall(args[0]); err != nil {
				failure("%v", err)
				return errFailed
			}
			success("uninstalled %s", args[0])
			return nil
		},
	}
}
