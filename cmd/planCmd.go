package cmd

import (
	"Testbed/pkg"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the derived topology",
	Long:  `Print nodes, interface names, addresses and route tables without creating anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		topo, err := pkg.LoadTopology(cfg.Topology)
		if err != nil {
			return err
		}
		return pkg.NewCalculator(topo, cfg.PrinterHost, cfg.InternalBridge).Show(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
