package cmd

import (
	"Testbed/pkg/config"
	"Testbed/pkg/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "testbed",
	Short:        "SDN traffic-capture testbed",
	Long:         "Builds a containerized SDN testbed, captures its traffic and turns the captures into a labeled flow report.",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// load reads the runtime configuration and builds the logger.
func load() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to the runtime configuration file")
	flags.StringP("topology", "f", "", "Path to the topology file")
	flags.String("capture-root", "", "Directory receiving captures, logs and the report")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")

	_ = v.BindPFlag("topology", flags.Lookup("topology"))
	_ = v.BindPFlag("capture_root", flags.Lookup("capture-root"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
}
