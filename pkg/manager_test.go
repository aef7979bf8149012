package pkg

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Testbed/pkg/config"
	"Testbed/pkg/lifecycle"
)

// The docker client connects lazily, so wiring and an interrupted session
// run without a daemon.
func TestManagerInterruptedBeforeBuild(t *testing.T) {
	v := viper.New()
	v.Set("capture_root", t.TempDir())
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	topo, err := LoadTopology(filepath.Join("..", "example", "topology.yaml"))
	require.NoError(t, err)

	op := lifecycle.NewConsole(nil, nil)
	op.AssumeYes = true
	m, err := NewManager(cfg, topo, op, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	_, err = uuid.Parse(m.Session)
	require.NoError(t, err)

	m.Interrupt()
	require.NoError(t, m.Up(context.Background()))
	assert.True(t, m.Report().NoData)
	assert.FileExists(t, cfg.MetricsPath())
}

func TestManagerRejectsBadArchiveSettings(t *testing.T) {
	v := viper.New()
	v.Set("capture_root", t.TempDir())
	v.Set("archive.endpoint", "minio:9000")
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	topo, err := LoadTopology(filepath.Join("..", "example", "topology.yaml"))
	require.NoError(t, err)

	_, err = NewManager(cfg, topo, lifecycle.NewConsole(nil, nil), zap.NewNop())
	assert.ErrorContains(t, err, "credentials")
}
