package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var (
	strictUnmount bool

	deleteProjectCmd = &cobra.Command{
		Use:   "delete-project <name>",
		Short: "Tear down every branch, unmount, and destroy the project's Btrfs image",
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
			if err := mgr.DeleteProject(cmd.Context(), strictUnmount); err != nil {
				return err
			}
			fmt.Println(utils.Green(fmt.Sprintf("project %q destroyed", args[0])))
			return nil
		},
	}
)

func init() {
	deleteProjectCmd.Flags().BoolVar(&strictUnmount, "strict-unmount", false,
		"fail on a busy mount instead of lazily unmounting it")
	rootCmd.AddCommand(deleteProjectCmd)
}
