package netcfg

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Testbed/api"
	"Testbed/pkg/errs"
	"Testbed/pkg/node"
	"Testbed/pkg/node/nodetest"
)

func subnets() []netip.Prefix {
	var out []netip.Prefix
	for _, s := range api.DefaultSubnets() {
		out = append(out, s.CIDR)
	}
	return out
}

const serverConfigPath = "/home/debian/serverconfig.ini"

func newRouter(fake *nodetest.FakeDriver) *Router {
	drivers := node.Set{Bridge: fake, Controller: fake, Host: fake, Client: fake}
	return NewRouter(subnets(), drivers, FileTransfer{Local: "config/serverconfig.ini", Remote: serverConfigPath}, zap.NewNop())
}

func TestRouteTableNeverTargetsOwnSubnet(t *testing.T) {
	all := subnets()
	for _, own := range all {
		routes := RouteTable(all, own, "up0")
		assert.Len(t, routes, len(all)-1, own.String())
		for _, r := range routes {
			assert.NotEqual(t, own, r.Dst)
			assert.Equal(t, "up0", r.Via)
		}
	}
}

func TestRouteTableComparesByValue(t *testing.T) {
	all := subnets()
	// a host address inside the office subnet, not the subnet value itself
	own := netip.MustParsePrefix("192.168.210.7/24")

	routes := RouteTable(all, own, "up0")
	require.Len(t, routes, len(all)-1)
	for _, r := range routes {
		assert.NotEqual(t, "192.168.210.0/24", r.Dst.String())
	}
}

func TestRouteTableDuplicateSubnetExcludedEverywhere(t *testing.T) {
	office := netip.MustParsePrefix("192.168.210.0/24")
	all := []netip.Prefix{office, netip.MustParsePrefix("192.168.100.0/24"), office}

	routes := RouteTable(all, office, "up0")
	require.Len(t, routes, 1)
	assert.Equal(t, "192.168.100.0/24", routes[0].Dst.String())
}

func TestConfigureNetworking(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	r := newRouter(fake)
	bridge := api.NewNode("brint", api.RoleBridge)
	n := api.NewNode("office1", api.RoleClient)

	err := r.ConfigureNetworking(context.Background(), n, bridge, netip.MustParsePrefix("192.168.210.0/24"), 12, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"connect office1 brint office1brint brintoffice1"}, fake.CallsWithPrefix("connect"))
	assert.Equal(t, []string{"setip office1 192.168.210.12/24 office1brint"}, fake.CallsWithPrefix("setip"))
	assert.Len(t, fake.CallsWithPrefix("route"), 4)
	assert.Equal(t, []string{"copy office1 config/serverconfig.ini " + serverConfigPath}, fake.CallsWithPrefix("copy"))

	assert.Equal(t, "192.168.210.12", n.IPAssignments["office1brint"].Addr.String())
	assert.Len(t, n.Routes, 4)
	require.Len(t, bridge.Interfaces, 1)
	assert.Equal(t, "brintoffice1", bridge.Interfaces[0].Local)
}

func TestConfigureNetworkingSkipsServerConfig(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	r := newRouter(fake)

	err := r.ConfigureNetworking(context.Background(), api.NewNode("files", api.RoleHost), api.NewNode("brint", api.RoleBridge),
		netip.MustParsePrefix("192.168.100.0/24"), 2, false)
	require.NoError(t, err)
	assert.Empty(t, fake.CallsWithPrefix("copy"))
}

func TestConfigureNetworkingFailureNamesNode(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	fake.Fail["route:dev1"] = errors.New("RTNETLINK answers: File exists")
	r := newRouter(fake)

	err := r.ConfigureNetworking(context.Background(), api.NewNode("dev1", api.RoleClient), api.NewNode("brint", api.RoleBridge),
		netip.MustParsePrefix("192.168.220.0/24"), 3, true)

	var pe *errs.ProvisionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "dev1", pe.Node)
	assert.Equal(t, "add route", pe.Step)
	assert.Empty(t, fake.CallsWithPrefix("copy"))
}

func TestConfigureNetworkingServerConfigPushFailure(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	fake.Fail["copy:web:"+serverConfigPath] = errors.New("no space left")
	r := newRouter(fake)

	err := r.ConfigureNetworking(context.Background(), api.NewNode("web", api.RoleHost), api.NewNode("brint", api.RoleBridge),
		netip.MustParsePrefix("192.168.100.0/24"), 3, true)

	var ce *errs.ConfigPushError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "serverConfig", ce.Artifact)
}

func TestShape(t *testing.T) {
	fake := nodetest.NewFakeDriver()
	r := newRouter(fake)
	n := api.NewNode("ext1", api.RoleClient)

	require.NoError(t, r.Shape(context.Background(), n, "brext", api.LinkProperties{}))
	assert.Empty(t, fake.CallsWithPrefix("shape"))

	require.NoError(t, r.Shape(context.Background(), n, "brext", api.LinkProperties{Latency: 40}))
	assert.Equal(t, []string{"shape ext1 ext1brext 40ms"}, fake.CallsWithPrefix("shape"))
}
