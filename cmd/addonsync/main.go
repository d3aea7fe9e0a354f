package main

import (
	"fmt"
	"os"

	"addonsync/cmd/addonsync/ui"
	"addonsync/config"
	"addonsync/internal/buildinfo"
	"addonsync/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	var (
		debug         bool
		noInteraction bool
		socketPath    string
	)
	if err := logging.Configure(logging.LevelWarn, false); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "addonsync",
		Short:         "Keep the host's add-on set converged with the declared requirements",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureInteraction(noInteraction)

			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, false)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noInteraction, "no-interaction", false, "Disable spinners and colors")
	root.PersistentFlags().StringVar(&socketPath, "socket", config.DefaultSocket(), "Daemon unix socket path")

	root.AddCommand(statusCmd(&socketPath))
	root.AddCommand(requirementsCmd(&socketPath))
	root.AddCommand(historyCmd(&socketPath))
	root.AddCommand(doctorCmd(&socketPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
