package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop every branch's container, leaving the Btrfs mount intact",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		mgr, err := newManager(store)
		if err != nil {
			return err
		}
		if err := mgr.Stop(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(utils.Green("project stopped"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
