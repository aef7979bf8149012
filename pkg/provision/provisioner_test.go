package provision

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Testbed/api"
	"Testbed/pkg/errs"
	"Testbed/pkg/node"
	"Testbed/pkg/node/nodetest"
)

var (
	office   = netip.MustParsePrefix("192.168.210.0/24")
	external = netip.MustParsePrefix("192.168.50.0/24")
)

// writeConfigDir lays out a complete configuration directory.
func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := []string{
		"automation/run.sh",
		"printers/210",
		"printers/50",
		"sshiplist.ini",
		"profiles/office.ini",
		"profiles/attacker.ini",
		"serverconfig.ini",
	}
	for _, variant := range []string{VariantInternal, VariantExternal} {
		for _, f := range []string{"ipListPort80.txt", "ipList.txt", "iprange.txt"} {
			files = append(files, filepath.Join("attack", variant, f))
		}
	}
	for _, f := range files {
		p := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
	return dir
}

func newProvisioner(t *testing.T, fake *nodetest.FakeDriver) (*Provisioner, string) {
	dir := writeConfigDir(t)
	drivers := node.Set{Client: fake, Host: fake}
	return NewProvisioner(dir, "/home/debian", external, drivers, zap.NewNop()), dir
}

func TestDestinationsCoverEveryArtifact(t *testing.T) {
	d := Destinations("/home/debian")
	require.Len(t, d, len(Artifacts))
	assert.Equal(t, "/home/debian/automation", d[Scripts])
	assert.Equal(t, "/home/debian/printerip", d[PrinterIP])
	assert.Equal(t, "/home/debian/sshiplist.ini", d[SSHList])
	assert.Equal(t, "/home/debian/config.ini", d[Behavior])
	assert.Equal(t, "/home/debian/serverconfig.ini", d[ServerConfig])
	assert.Equal(t, "/home/debian/ipListPort80.txt", d[Port80Targets])
	assert.Equal(t, "/home/debian/ipList.txt", d[AllTargets])
	assert.Equal(t, "/home/debian/iprange.txt", d[AddressRange])
}

func TestProvisionInternalClient(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	p, dir := newProvisioner(t, fake)

	n := api.NewNode("office1", api.RoleClient)
	require.NoError(t, p.ProvisionClient(context.Background(), n, office, "office"))

	copies := fake.CallsWithPrefix("copy")
	require.Len(t, copies, len(Artifacts))
	assert.Equal(t, "copy office1 "+filepath.Join(dir, "printers", "210")+" /home/debian/printerip", copies[1])
	assert.Equal(t, "copy office1 "+filepath.Join(dir, "profiles", "office.ini")+" /home/debian/config.ini", copies[3])
	for _, c := range copies[5:] {
		assert.Contains(t, c, filepath.Join("attack", VariantInternal))
	}
}

func TestProvisionExternalClientUsesExternalLists(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	p, _ := newProvisioner(t, fake)

	n := api.NewNode("ext1", api.RoleClient)
	require.NoError(t, p.ProvisionClient(context.Background(), n, external, "attacker"))

	copies := fake.CallsWithPrefix("copy")
	require.Len(t, copies, len(Artifacts))
	assert.Contains(t, copies[1], filepath.Join("printers", "50"))
	for _, c := range copies[5:] {
		assert.Contains(t, c, filepath.Join("attack", VariantExternal))
	}
}

func TestVariantIgnoresDeveloperSubnet(t *testing.T) {
	p := NewProvisioner(t.TempDir(), "/home/debian", external, node.Set{}, zap.NewNop())
	assert.Equal(t, VariantInternal, p.Variant(netip.MustParsePrefix("192.168.220.0/24")))
	assert.Equal(t, VariantExternal, p.Variant(netip.MustParsePrefix("192.168.50.0/24")))
}

func TestPushFailureStopsImmediately(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	fake.Fail["copy:office1:/home/debian/sshiplist.ini"] = errors.New("container is not running")
	p, _ := newProvisioner(t, fake)

	err := p.ProvisionClient(context.Background(), api.NewNode("office1", api.RoleClient), office, "office")

	var ce *errs.ConfigPushError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "office1", ce.Node)
	assert.Equal(t, string(SSHList), ce.Artifact)
	assert.Len(t, fake.CallsWithPrefix("copy"), 3)
}

func TestMissingProfileFails(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	p, _ := newProvisioner(t, fake)

	err := p.ProvisionClient(context.Background(), api.NewNode("dev1", api.RoleClient), office, "developer")

	var ce *errs.ConfigPushError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, string(Behavior), ce.Artifact)

	err = p.ProvisionClient(context.Background(), api.NewNode("dev1", api.RoleClient), office, "../secret")
	require.ErrorAs(t, err, &ce)
	assert.True(t, strings.Contains(err.Error(), "invalid behaviour profile"))
}
