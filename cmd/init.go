package cmd

import (
	"fmt"

	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var (
	initProjectPort int

	initCmd = &cobra.Command{
		Use:   "init <name>",
		Short: "Provision a new Btrfs-backed project and register its main branch",
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
			if err := mgr.Init(cmd.Context(), args[0], initProjectPort); err != nil {
				return err
			}
			fmt.Println(utils.Green(fmt.Sprintf("project %q initialized", args[0])))
			return nil
		},
	}
)

func init() {
	initCmd.Flags().IntVar(&initProjectPort, "port", 0, "proxy port to bind (defaults to the config document's proxy_port)")
	rootCmd.AddCommand(initCmd)
}
