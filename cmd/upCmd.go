package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Testbed/pkg"
	"Testbed/pkg/lifecycle"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run a capture session",
	Long: `Build the topology, capture traffic until "stop" is typed (or --duration
elapses), then harvest the captures into a flow report and tear everything down.
Ctrl-C tears down immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		defer log.Sync()

		topo, err := pkg.LoadTopology(cfg.Topology)
		if err != nil {
			return err
		}

		yes, _ := cmd.Flags().GetBool("yes")
		duration, _ := cmd.Flags().GetDuration("duration")
		console := lifecycle.NewConsole(os.Stdin, cmd.OutOrStdout())
		defer console.Close()
		console.AssumeYes = yes
		console.Duration = duration

		m, err := pkg.NewManager(cfg, topo, console, log)
		if err != nil {
			return err
		}
		defer m.Close()
		log.Info("session started", zap.String("session", m.Session), zap.String("topology", cfg.Topology))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)
		done := make(chan struct{})
		defer close(done)
		go func() {
			for {
				select {
				case <-sig:
					m.Interrupt()
				case <-done:
					return
				}
			}
		}()

		err = m.Up(cmd.Context())
		report := m.Report()
		switch {
		case report.NoData:
			fmt.Fprintln(cmd.OutOrStdout(), "No captures were found, no report written.")
		case report.Path != "":
			fmt.Fprintf(cmd.OutOrStdout(), "Report: %s (%d flows from %d captures)\n", report.Path, report.Rows, report.Captures)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
	upCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation before switch creation")
	upCmd.Flags().Duration("duration", time.Duration(0), "Stop capturing after this long")
}
