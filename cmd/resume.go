package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Restart every branch's container against its existing data",
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
		if err := mgr.Resume(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(utils.Green("project resumed"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
