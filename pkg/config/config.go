// Package config loads runtime settings from a YAML file, TESTBED_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "TESTBED"

type Images struct {
	Bridge     string `mapstructure:"bridge"`
	Controller string `mapstructure:"controller"`
	Server     string `mapstructure:"server"`
	Client     string `mapstructure:"client"`
	Printer    string `mapstructure:"printer"`
	Converter  string `mapstructure:"converter"`
}

type Onos struct {
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
	Port     int      `mapstructure:"port"`
	Apps     []string `mapstructure:"apps"`
}

type Harvest struct {
	HeaderMarker string `mapstructure:"header_marker"`
	ReportName   string `mapstructure:"report_name"`
}

type Teardown struct {
	InterruptDiagnostics bool `mapstructure:"interrupt_diagnostics"`
}

// Archive is the optional object store receiving the report. Empty Endpoint
// disables the upload.
type Archive struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Topology       string   `mapstructure:"topology"`
	CaptureRoot    string   `mapstructure:"capture_root"`
	ConfigDir      string   `mapstructure:"config_dir"`
	RemoteHome     string   `mapstructure:"remote_home"`
	InternalBridge string   `mapstructure:"internal_bridge"`
	PrinterHost    uint8    `mapstructure:"printer_host"`
	MetricsFile    string   `mapstructure:"metrics_file"`
	Images         Images   `mapstructure:"images"`
	Onos           Onos     `mapstructure:"onos"`
	Harvest        Harvest  `mapstructure:"harvest"`
	Teardown       Teardown `mapstructure:"teardown"`
	Archive        Archive  `mapstructure:"archive"`
	Log            Log      `mapstructure:"log"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("topology", "topology.yaml")
	v.SetDefault("capture_root", "flows")
	v.SetDefault("config_dir", "config")
	v.SetDefault("remote_home", "/home/debian")
	v.SetDefault("internal_bridge", "brint")
	v.SetDefault("printer_host", 250)
	v.SetDefault("metrics_file", "metrics.prom")

	v.SetDefault("images.bridge", "testbed/ovs:latest")
	v.SetDefault("images.controller", "onosproject/onos:2.7.0")
	v.SetDefault("images.server", "testbed/server:latest")
	v.SetDefault("images.client", "testbed/client:latest")
	v.SetDefault("images.printer", "testbed/printer:latest")
	v.SetDefault("images.converter", "testbed/cicflowmeter:latest")

	v.SetDefault("onos.user", "onos")
	v.SetDefault("onos.password", "rocks")
	v.SetDefault("onos.port", 8181)
	v.SetDefault("onos.apps", []string{"org.onosproject.openflow", "org.onosproject.fwd"})

	v.SetDefault("harvest.header_marker", "Flow ID")
	v.SetDefault("harvest.report_name", "final_report.csv")
	v.SetDefault("teardown.interrupt_diagnostics", false)

	// every key needs a default for TESTBED_* variables to reach Unmarshal
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.bucket", "testbed")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.use_ssl", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads path when set, overlays the environment and returns the
// validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.CaptureRoot == "" {
		return errors.New("capture_root must be set")
	}
	if c.ConfigDir == "" {
		return errors.New("config_dir must be set")
	}
	if c.PrinterHost == 0 || c.PrinterHost == 255 {
		return fmt.Errorf("printer_host %d out of range", c.PrinterHost)
	}
	if c.Archive.Endpoint != "" && c.Archive.Bucket == "" {
		return errors.New("archive.bucket must be set with archive.endpoint")
	}
	return nil
}

// MetricsPath resolves the metrics textfile under the capture root unless
// it is absolute.
func (c *Config) MetricsPath() string {
	if c.MetricsFile == "" || filepath.IsAbs(c.MetricsFile) {
		return c.MetricsFile
	}
	return filepath.Join(c.CaptureRoot, c.MetricsFile)
}
