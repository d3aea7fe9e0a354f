package main

import (
	"context"
	"fmt"
	"time"

	"addonsync/catalog"
	"addonsync/cmd/addonsync/ui"
	"addonsync/config"
	"addonsync/infra/docker"
	"addonsync/internal/clockcheck"
	"addonsync/sdk"

	"github.com/spf13/cobra"
)

func doctorCmd(socketFlag *string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the daemon, the Docker substrate, the catalog, and the local clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			healthy := true
			report := func(ok bool, okMsg, failMsg string) {
				if ok {
					fmt.Println(ui.SuccessMsg("%s", okMsg))
					return
				}
				healthy = false
				fmt.Println(ui.ErrorMsg("%s", failMsg))
			}

			client := sdk.Dial(*socketFlag)
			defer func() { _ = client.Close() }()
			if st, err := client.Status(ctx); err != nil {
				report(false, "", fmt.Sprintf("daemon not reachable at %s: %v", *socketFlag, err))
			} else {
				report(true, fmt.Sprintf("daemon reachable (version %s, phase %s)", st.Version, st.Phase), "")
				if st.Converged {
					fmt.Println(ui.SuccessMsg("add-on set converged"))
				} else {
					fmt.Println(ui.WarnMsg("add-on set not yet converged (%d pending)", st.Pending))
				}
			}

			if host, err := docker.Connect(ctx, cfg.DockerHost); err != nil {
				report(false, "", fmt.Sprintf("docker daemon not reachable: %v", err))
			} else {
				report(true, "docker daemon reachable", "")
				_ = host.Close()
			}

			cat := catalog.NewClient(cfg.CatalogURL, nil, nil)
			if err := cat.Refresh(ctx); err != nil {
				report(false, "", fmt.Sprintf("catalog not fetchable from %s: %v", cfg.CatalogURL, err))
			} else {
				report(true, fmt.Sprintf("catalog reachable (generated %s)", cat.Generated().Format(time.RFC3339)), "")
			}

			res := clockcheck.Check("")
			switch {
			case res.Err != nil:
				fmt.Println(ui.WarnMsg("clock skew unknown: %v", res.Err))
			case res.Healthy:
				report(true, fmt.Sprintf("clock healthy (offset %s)", res.Offset.Round(time.Millisecond)), "")
			default:
				report(false, "", fmt.Sprintf("clock skewed by %s; warning rate limits may misfire", res.Offset.Round(time.Millisecond)))
			}

			if !healthy {
				return fmt.Errorf("problems found")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	return cmd
}
