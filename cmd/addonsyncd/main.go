package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"addonsync/config"
	daemonruntime "addonsync/daemon"
	"addonsync/internal/buildinfo"
	"addonsync/internal/logging"

	"github.com/spf13/cobra"
)

func main() {
	if err := logging.Configure(logging.LevelInfo, false); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		socketPath string
		catalogURL string
		debug      bool
		jsonLogs   bool
	)

	cmd := &cobra.Command{
		Use:     "addonsyncd",
		Short:   "Add-on reconcile daemon",
		Version: buildinfo.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level, jsonLogs)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !debug {
				if err := logging.Configure(cfg.LogLevel, jsonLogs); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("socket") {
				cfg.Socket = socketPath
			}
			if cmd.Flags().Changed("catalog-url") {
				cfg.CatalogURL = catalogURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			slog.Info("Starting add-on reconcile daemon.", "version", buildinfo.Version, "socket", cfg.Socket)
			return daemonruntime.Run(ctx, cfg)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log JSON instead of text")
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	cmd.Flags().StringVar(&socketPath, "socket", config.DefaultSocket(), "Unix socket path")
	cmd.Flags().StringVar(&catalogURL, "catalog-url", "", "Catalog update-site URL")
	return cmd
}
