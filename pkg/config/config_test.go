package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "flows", cfg.CaptureRoot)
	assert.Equal(t, uint8(250), cfg.PrinterHost)
	assert.Equal(t, "Flow ID", cfg.Harvest.HeaderMarker)
	assert.Equal(t, "final_report.csv", cfg.Harvest.ReportName)
	assert.False(t, cfg.Teardown.InterruptDiagnostics)
	assert.Equal(t, 8181, cfg.Onos.Port)
	assert.NotEmpty(t, cfg.Onos.Apps)
	assert.Empty(t, cfg.Archive.Endpoint)
	assert.Equal(t, filepath.Join("flows", "metrics.prom"), cfg.MetricsPath())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "testbed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
capture_root: /srv/flows
printer_host: 240
images:
  client: lab/client:1
teardown:
  interrupt_diagnostics: true
archive:
  endpoint: minio:9000
  bucket: captures
`), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/flows", cfg.CaptureRoot)
	assert.Equal(t, uint8(240), cfg.PrinterHost)
	assert.Equal(t, "lab/client:1", cfg.Images.Client)
	assert.Equal(t, "onosproject/onos:2.7.0", cfg.Images.Controller)
	assert.True(t, cfg.Teardown.InterruptDiagnostics)
	assert.Equal(t, "captures", cfg.Archive.Bucket)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("TESTBED_CAPTURE_ROOT", "/tmp/captures")
	t.Setenv("TESTBED_LOG_LEVEL", "debug")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/captures", cfg.CaptureRoot)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadArchiveFromEnvironment(t *testing.T) {
	t.Setenv("TESTBED_ARCHIVE_ENDPOINT", "minio:9000")
	t.Setenv("TESTBED_ARCHIVE_ACCESS_KEY", "ak")
	t.Setenv("TESTBED_ARCHIVE_SECRET_KEY", "sk")
	t.Setenv("TESTBED_ARCHIVE_USE_SSL", "true")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "minio:9000", cfg.Archive.Endpoint)
	assert.Equal(t, "ak", cfg.Archive.AccessKey)
	assert.Equal(t, "sk", cfg.Archive.SecretKey)
	assert.True(t, cfg.Archive.UseSSL)
	assert.Equal(t, "testbed", cfg.Archive.Bucket)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	v := viper.New()
	v.Set("printer_host", 255)
	_, err := Load(v, "")
	assert.Error(t, err)

	v = viper.New()
	v.Set("archive.endpoint", "minio:9000")
	v.Set("archive.bucket", "")
	_, err = Load(v, "")
	assert.Error(t, err)
}

func TestMetricsPathAbsolute(t *testing.T) {
	cfg := &Config{CaptureRoot: "flows", MetricsFile: "/var/lib/node_exporter/testbed.prom"}
	assert.Equal(t, "/var/lib/node_exporter/testbed.prom", cfg.MetricsPath())
}
