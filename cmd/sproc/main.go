package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		// failures are already printed per target
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "sproc",
		Short: "Lightweight service supervisor",
		Long: `Sproc pins a TOML service definition file and runs, supervises and
inspects the services it declares, locally or through the control daemon.

Examples:
  sproc pin ./services.toml         # resolve and pin a definition file
  sproc run web worker              # start services in the background
  sproc info web                    # inspect a running service
  sproc serve                       # start the control daemon
  sproc spawn web                   # start under daemon supervision
  sproc install sproc.example.com redis  # install from a remote registry`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		createPinCommand(),
		createPinnedCommand(),
		createMergeCommand(),
		createPullCommand(),
		createRunCommand(),
		createRunAllCommand(),
		createSpawnCommand(),
		createKillCommand(),
		createKillAllCommand(),
		createInfoCommand(),
		createInfoAllCommand(),
		createInstallCommand(),
		createUninstallCommand(),
		createServeCommand(),
	)
	return root
}
