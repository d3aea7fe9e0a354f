package main

import (
	"context"
	"fmt"

	"addonsync/api"
	"addonsync/cmd/addonsync/ui"
	"addonsync/sdk"

	"github.com/spf13/cobra"
)

func historyCmd(socketFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recent add-on deploys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp *api.HistoryResponse

			client := sdk.Dial(*socketFlag)
			defer func() { _ = client.Close() }()

			err := ui.RunWithSpinner(cmd.Context(), "Connecting", func(ctx context.Context) error {
				var err error
				resp, err = client.History(ctx)
				return err
			})
			if err != nil {
				return err
			}

			if len(resp.Events) == 0 {
				fmt.Println(ui.Muted("No deploys recorded."))
				return nil
			}

			rows := make([][]string, len(resp.Events))
			for i, ev := range resp.Events {
				action := "install"
				if ev.Upgrade {
					action = "upgrade"
				}
				rows[i] = []string{
					ev.At.Local().Format("2006-01-02 15:04:05"),
					ev.Name,
					action,
					ev.Version,
					ui.Outcome(ev.OK),
				}
			}
			fmt.Println(ui.Table([]string{"TIME", "NAME", "ACTION", "VERSION", "RESULT"}, rows))
			return nil
		},
	}
}
