package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joshuapassos/dbranch/internal/accounting"
	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every branch's port, running state, and extent accounting",
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
		rows, err := mgr.Status(cmd.Context())
		if err != nil {
			return err
		}

		doc := store.Snapshot()
		fmt.Println(strings.Repeat("-", 60))
		fmt.Println(utils.Bold(fmt.Sprintf("project %s — proxy :%d", doc.Name, doc.ProxyPort)))
		fmt.Println(strings.Repeat("-", 60))

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("BRANCH", "PORT", "LOGICAL", "UNIQUE", "RUNNING", "AGE")
		for _, r := range rows {
			name := r.Name
			if r.IsActive {
				name = name + " *"
			}
			running := "no"
			if r.Running {
				running = "yes"
			}
			table.Append(
				name,
				fmt.Sprintf("%d", r.Port),
				accounting.HumanSize(r.LogicalSize),
				accounting.HumanSize(r.UniqueSize),
				running,
				r.Age.Round(1e9).String(),
			)
		}
		return table.Render()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
