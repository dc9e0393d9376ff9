package cmd

import (
	"os"
	"os/signal"

	"github.com/joshuapassos/dbranch/internal/proxy"
	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the branch-aware connection proxy until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		go store.Watch(ctx)

		utils.Info("dbranch proxy starting")
		return proxy.New(store).ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
