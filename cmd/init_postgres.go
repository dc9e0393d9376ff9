package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var initPostgresCmd = &cobra.Command{
	Use:   "init-postgres",
	Short: "Start only the main branch's postgres container for the current project",
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
		if err := mgr.InitPostgres(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(utils.Green("main branch container started"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initPostgresCmd)
}
