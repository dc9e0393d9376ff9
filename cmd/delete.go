package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <branch>",
	Short: "Stop and remove a branch's container and subvolume",
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
		if err := mgr.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println(utils.Green(fmt.Sprintf("branch %q deleted", args[0])))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
