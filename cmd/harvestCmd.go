package cmd

import (
	"fmt"

	"Testbed/pkg"

	"github.com/spf13/cobra"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Convert existing captures",
	Long:  `Convert the captures already under the capture root and merge them into one flow report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		defer log.Sync()

		report, err := pkg.Harvest(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		if report.NoData {
			fmt.Fprintln(cmd.OutOrStdout(), "No captures were found, no report written.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report: %s (%d flows, %d of %d captures converted)\n",
			report.Path, report.Rows, report.Converted, report.Captures)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(harvestCmd)
}
