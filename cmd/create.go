package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var (
	createSource string

	createCmd = &cobra.Command{
		Use:   "create <branch>",
		Short: "Create a branch as a CoW snapshot of a source branch and start its container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			mgr, err := newManager(store)
			if err != nil {
				return err
			}
			if err := mgr.Create(cmd.Context(), args[0], createSource); err != nil {
				return err
			}
			fmt.Println(utils.Green(fmt.Sprintf("branch %q created", args[0])))
			return nil
		},
	}
)

func init() {
	createCmd.Flags().StringVar(&createSource, "source", "", "branch to snapshot from (defaults to main)")
	rootCmd.AddCommand(createCmd)
}
