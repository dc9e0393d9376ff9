package cmd

import (
	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/spf13/cobra"
)

// list and show are reserved verbs per spec §6: accepted as valid CLI
// surface but not yet implemented.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Reserved for a future machine-readable branch listing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dbrerr.NotImplemented("list")
	},
}

var showCmd = &cobra.Command{
	Use:   "show <branch>",
	Short: "Reserved for a future single-branch detail view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dbrerr.NotImplemented("show")
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}
