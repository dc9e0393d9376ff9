package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var useCmd = &cobra.Command{
	Use:   "use <branch>",
	Short: "Point the proxy at a different branch for new connections",
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
		if err := mgr.Use(args[0]); err != nil {
			return err
		}
		fmt.Println(utils.Green(fmt.Sprintf("active branch set to %q", args[0])))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(useCmd)
}
