package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sprocio/sproc/internal/config"
	"github.com/sprocio/sproc/internal/lifecycle"
	"github.com/sprocio/sproc/internal/logger"
	"github.com/sprocio/sproc/pkg/client"
)

// loadEngine builds a single-shot lifecycle engine over the pinned
// configuration. CLI engines stay quiet below warn; service output goes to
// the inherited terminal, not to log files.
func loadEngine() (*lifecycle.Engine, error) {
	cfg, err := config.LoadPinned()
	if err != nil {
		return nil, err
	}
	log := logger.New(os.Stderr, "warn")
	return lifecycle.New(cfg, lifecycle.Options{Logger: log}), nil
}

func createRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <service>...",
		Short: "Start services in the background",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			return reportResults("started", eng.Run(args))
		},
	}
}

func createRunAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Start every pinned service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			return reportResults("started", eng.RunAll())
		},
	}
}

func createKillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <service>...",
		Short: "Stop running services",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			return reportResults("killed", eng.Kill(args))
		},
	}
}

func createKillAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kill-all",
		Short: "Stop every running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			return reportResults("killed", eng.KillAll())
		},
	}
}

func createInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <service>",
		Short: "Inspect a running service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			info, err := eng.Info(args[0])
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			return printJSON(info)
		},
	}
}

func createInfoAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info-all",
		Short: "Inspect every running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			infos := eng.InfoAll()
			if infos == nil {
				infos = []lifecycle.ServiceInfo{}
			}
			return printJSON(infos)
		},
	}
}

// createSpawnCommand starts services through the running daemon, so
// restart supervision applies. Local run never restarts.
func createSpawnCommand() *cobra.Command {
	var host string
	cmd := &cobra.Command{
		Use:   "spawn <service>...",
		Short: "Start services under daemon supervision",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPinned()
			if err != nil {
				failure("%v", err)
				return errFailed
			}
			c := client.New(fmt.Sprintf("%s:%d", host, cfg.Server.Port), cfg.Server.Key)
			results := make([]lifecycle.Result, 0, len(args))
			for _, name := range args {
				results = append(results, lifecycle.Result{Name: name, Err: c.Start(cmd.Context(), name)})
			}
			return reportResults("spawned", results)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "daemon host")
	return cmd
}
