package pkg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Testbed/api"
)

func TestLoadExampleTopology(t *testing.T) {
	topo, err := LoadTopology(filepath.Join("..", "example", "topology.yaml"))
	require.NoError(t, err)

	assert.Len(t, topo.Controllers, 2)
	assert.Len(t, topo.Bridges, 2)
	assert.Equal(t, api.DefaultSubnets(), topo.Subnets)
	attacker := topo.Clients[len(topo.Clients)-1]
	assert.Equal(t, api.SubnetExternal, attacker.Subnet)
	assert.Equal(t, uint32(40), attacker.Link.Latency)
}

func TestLoadTopologyRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridges:
  - name: brint
clients:
  - name: office1
    bridge: brmissing
    subnet: office
    host: 10
    profile: office
`), 0o644))

	_, err := LoadTopology(path)
	assert.ErrorContains(t, err, "brmissing")
}

func TestLoadTopologyCustomSubnets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subnets:
  - role: office
    cidr: 10.1.2.0/24
  - role: external
    cidr: 10.9.9.0/24
bridges:
  - name: brint
`), 0o644))

	topo, err := LoadTopology(path)
	require.NoError(t, err)
	office, ok := topo.Subnet(api.SubnetOffice)
	require.True(t, ok)
	assert.Equal(t, "10.1.2.0/24", office.CIDR.String())
}

func TestPlan(t *testing.T) {
	topo, err := LoadTopology(filepath.Join("..", "example", "topology.yaml"))
	require.NoError(t, err)

	plan, err := NewCalculator(topo, 250, "brint").Plan()
	require.NoError(t, err)
	require.Len(t, plan, len(topo.Servers)+len(topo.Printers)+len(topo.Clients))

	byName := make(map[string]PlanEntry)
	for _, e := range plan {
		byName[e.Node] = e
		assert.Len(t, e.Routes, len(topo.Subnets)-1, e.Node)
	}
	assert.Equal(t, "192.168.210.250", byName["printer-office"].Addr.String())
	assert.Equal(t, "brint", byName["printer-office"].Bridge)
	assert.Equal(t, "attackerbrext", byName["attacker"].Uplink)
	assert.Equal(t, "192.168.50.66", byName["attacker"].Addr.String())
}

func TestShow(t *testing.T) {
	topo, err := LoadTopology(filepath.Join("..", "example", "topology.yaml"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, NewCalculator(topo, 250, "brint").Show(&out))
	assert.Contains(t, out.String(), "Link: brint <-> brext (brintbrext/brextbrint)")
	assert.Contains(t, out.String(), "Node: office1, Role: client, Bridge: brint, Interface: office1brint, IPv4: 192.168.210.10/24")
}

func TestPlanRejectsPrinterInterfaceCollision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bridges:
  - name: bc
  - name: c
printers:
  - name: xb
    subnet: office
clients:
  - name: x
    bridge: bc
    subnet: office
    host: 10
    profile: office
`), 0o644))

	topo, err := LoadTopology(path)
	require.NoError(t, err)
	_, err = NewCalculator(topo, 250, "c").Plan()
	assert.ErrorContains(t, err, "both derive interface xbc")
}
