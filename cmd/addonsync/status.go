package main

import (
	"context"
	"fmt"
	"strconv"

	"addonsync/api"
	"addonsync/cmd/addonsync/ui"
	"addonsync/sdk"

	"github.com/spf13/cobra"
)

func statusCmd(socketFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show reconcile status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st *api.StatusResponse

			client := sdk.Dial(*socketFlag)
			defer func() { _ = client.Close() }()

			err := ui.RunWithSpinner(cmd.Context(), "Connecting", func(ctx context.Context) error {
				var err error
				st, err = client.Status(ctx)
				return err
			})
			if err != nil {
				return err
			}

			fetched := ui.Muted("never")
			if !st.CatalogFetchedAt.IsZero() {
				fetched = st.CatalogFetchedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Println(ui.KeyValues("  ",
				ui.KV("Converged", ui.Converged(st.Converged)),
				ui.KV("Phase", st.Phase),
				ui.KV("Pending", strconv.Itoa(st.Pending)),
				ui.KV("Catalog fetched", fetched),
				ui.KV("Version", st.Version),
			))
			if st.Message != "" {
				if st.MessageImportant {
					fmt.Println(ui.WarnMsg("%s", st.Message))
				} else {
					fmt.Println(ui.InfoMsg("%s", st.Message))
				}
			}
			return nil
		},
	}
}
