// Package cmd wires the dbranch CLI verbs (spec §6) to the C7/C8/C9
// internal packages, following the teacher's cobra+viper root command
// shape: persistent debug/config flags, DBRANCH_-prefixed env binding,
// and best-effort Sentry crash reporting.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Overridden via `-ldflags "-X github.com/joshuapassos/dbranch/cmd.version=..."`.
var version = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:     "dbranch",
	Short:   "dBranch " + version + " - PostgreSQL database branching over Btrfs",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if dsn := viper.GetString("SENTRY_DSN"); dsn != "" {
			_ = sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: version, TracesSampleRate: 1.0})
		}
		return nil
	},
	SilenceErrors: true,
}

// Execute runs the root command, printing "<Kind>: <message>" to stderr
// and exiting non-zero on failure, per SPEC_FULL.md §6's output contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, utils.Red(err.Error()))
		if sentry.CurrentHub().Client() != nil {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "output debug logs to stderr")
	flags.String("config", "", "path to the dbranch config document (overrides DBRANCH_CONFIG)")
	cobra.CheckErr(viper.BindPFlags(flags))

	viper.SetEnvPrefix("DBRANCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func GetRootCmd() *cobra.Command {
	return rootCmd
}
