// Package netcfg wires emulated nodes into their subnet: one uplink to the
// shared bridge, one address, and a static route to every other subnet.
package netcfg

import (
	"context"
	"net/netip"

	"Testbed/api"
	"Testbed/pkg/errs"
	"Testbed/pkg/node"
	"Testbed/pkg/util"

	"go.uber.org/zap"
)

// PrefixLen is the length of every testbed subnet.
const PrefixLen = 24

// FileTransfer names a local file and where it lands inside a node.
type FileTransfer struct {
	Local  string
	Remote string
}

type Router struct {
	subnets      []netip.Prefix
	drivers      node.Set
	serverConfig FileTransfer // shared server location file
	log          *zap.Logger
}

func NewRouter(subnets []netip.Prefix, drivers node.Set, serverConfig FileTransfer, log *zap.Logger) *Router {
	return &Router{
		subnets:      subnets,
		drivers:      drivers,
		serverConfig: serverConfig,
		log:          log.Named("router"),
	}
}

// RouteTable maps every configured subnet other than own to uplink.
// Subnets are compared by value.
func RouteTable(subnets []netip.Prefix, own netip.Prefix, uplink string) []api.Route {
	own = own.Masked()
	var routes []api.Route
	for _, s := range subnets {
		if s.Masked() == own {
			continue
		}
		routes = append(routes, api.Route{Dst: s.Masked(), Via: uplink})
	}
	return routes
}

// ConfigureNetworking connects n to bridge, assigns subnet.host/24 to the
// node side and routes every other subnet through the same interface.
// Failures are ProvisionErrors naming n.
func (r *Router) ConfigureNetworking(ctx context.Context, n, bridge *api.Node, subnet netip.Prefix, host uint8, pushServerConfig bool) error {
	fail := func(step string, err error) error {
		return &errs.ProvisionError{Node: n.Name, Step: step, Err: err}
	}

	d, err := r.drivers.For(n.Role)
	if err != nil {
		return fail("driver", err)
	}
	addr, err := util.HostAddr(subnet, host)
	if err != nil {
		return fail("address", err)
	}

	uplink := util.VethName(n.Name, bridge.Name)
	if err = d.Connect(ctx, n, bridge, uplink, util.VethName(bridge.Name, n.Name)); err != nil {
		return fail("connect", err)
	}

	if err = d.SetIP(ctx, n, addr, PrefixLen, uplink); err != nil {
		return fail("set ip", err)
	}
	n.IPAssignments[uplink] = api.IPAssignment{Addr: addr, PrefixLen: PrefixLen}

	for _, route := range RouteTable(r.subnets, subnet, uplink) {
		if err = d.AddRoute(ctx, n, route.Dst, route.Via); err != nil {
			return fail("add route", err)
		}
		n.Routes = append(n.Routes, route)
	}

	if pushServerConfig {
		if err = d.CopyToContainer(ctx, n, r.serverConfig.Local, r.serverConfig.Remote); err != nil {
			return &errs.ConfigPushError{Node: n.Name, Artifact: "serverConfig", Err: err}
		}
	}

	r.log.Info("networking configured",
		zap.String("node", n.Name),
		zap.String("bridge", bridge.Name),
		zap.String("addr", addr.String()),
		zap.Int("routes", len(n.Routes)))
	return nil
}

// Shape impairs the uplink of n when its driver supports it.
func (r *Router) Shape(ctx context.Context, n *api.Node, bridge string, p api.LinkProperties) error {
	if p.IsZero() {
		return nil
	}
	d, err := r.drivers.For(n.Role)
	if err != nil {
		return &errs.ProvisionError{Node: n.Name, Step: "driver", Err: err}
	}
	s, ok := d.(node.Shaper)
	if !ok {
		r.log.Warn("driver cannot shape links, ignoring link properties", zap.String("node", n.Name))
		return nil
	}
	if err = s.Shape(ctx, n, util.VethName(n.Name, bridge), p); err != nil {
		return &errs.ProvisionError{Node: n.Name, Step: "shape", Err: err}
	}
	return nil
}
