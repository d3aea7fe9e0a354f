package main

import (
	"context"
	"fmt"

	"addonsync/api"
	"addonsync/cmd/addonsync/ui"
	"addonsync/sdk"

	"github.com/spf13/cobra"
)

func requirementsCmd(socketFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "requirements",
		Short: "Show the declared add-on set and its installed state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp *api.RequirementsResponse

			client := sdk.Dial(*socketFlag)
			defer func() { _ = client.Close() }()

			err := ui.RunWithSpinner(cmd.Context(), "Connecting", func(ctx context.Context) error {
				var err error
				resp, err = client.Requirements(ctx)
				return err
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(resp.Requirements))
			for i, r := range resp.Requirements {
				installed := ui.Muted("absent")
				if r.Installed {
					installed = r.InstalledVersion
					if installed == "" {
						installed = "installed"
					}
					if !r.Enabled {
						installed += " (disabled)"
					}
				}
				rows[i] = []string{r.Name, ui.Kind(r.Optional), r.MinVersion, installed}
			}
			fmt.Println(ui.Table([]string{"NAME", "KIND", "MIN VERSION", "INSTALLED"}, rows))
			return nil
		},
	}
}
