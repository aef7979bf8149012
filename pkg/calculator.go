package pkg

import (
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"Testbed/api"
	"Testbed/pkg/netcfg"
	"Testbed/pkg/util"

	"gopkg.in/yaml.v3"
)

// LoadTopology reads and validates a topology file.
func LoadTopology(path string) (*api.TopoConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}
	var topo api.TopoConfig
	if err = yaml.Unmarshal(data, &topo); err != nil {
		return nil, fmt.Errorf("parse topology %s: %w", path, err)
	}
	if err = topo.Validate(); err != nil {
		return nil, fmt.Errorf("topology %s: %w", path, err)
	}
	return &topo, nil
}

// PlanEntry is what a node attached to a bridge will look like.
type PlanEntry struct {
	Node   string
	Role   api.Role
	Bridge string
	Uplink string
	Addr   netip.Addr
	Routes []api.Route
}

// Calculator derives interface names, addresses and route tables from a
// topology without touching any container.
type Calculator struct {
	topo           *api.TopoConfig
	printerHost    uint8
	internalBridge string
}

func NewCalculator(topo *api.TopoConfig, printerHost uint8, internalBridge string) *Calculator {
	return &Calculator{topo: topo, printerHost: printerHost, internalBridge: internalBridge}
}

func (c *Calculator) entry(name string, role api.Role, bridge string, subnet api.SubnetRole, host uint8) (PlanEntry, error) {
	s, ok := c.topo.Subnet(subnet)
	if !ok {
		return PlanEntry{}, fmt.Errorf("node %s: subnet %s not configured", name, subnet)
	}
	addr, err := util.HostAddr(s.CIDR, host)
	if err != nil {
		return PlanEntry{}, fmt.Errorf("node %s: %w", name, err)
	}
	uplink := util.VethName(name, bridge)
	return PlanEntry{
		Node:   name,
		Role:   role,
		Bridge: bridge,
		Uplink: uplink,
		Addr:   addr,
		Routes: netcfg.RouteTable(c.topo.Prefixes(), s.CIDR, uplink),
	}, nil
}

// Plan lists every attached node in creation order.
func (c *Calculator) Plan() ([]PlanEntry, error) {
	if err := c.topo.ValidateInterfaces(c.internalBridge); err != nil {
		return nil, err
	}
	var out []PlanEntry
	add := func(e PlanEntry, err error) error {
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	}
	for _, s := range c.topo.Servers {
		if err := add(c.entry(s.Name, api.RoleHost, s.Bridge, s.Subnet, s.Host)); err != nil {
			return nil, err
		}
	}
	for _, p := range c.topo.Printers {
		if err := add(c.entry(p.Name, api.RoleHost, c.internalBridge, p.Subnet, c.printerHost)); err != nil {
			return nil, err
		}
	}
	for _, cl := range c.topo.Clients {
		if err := add(c.entry(cl.Name, api.RoleClient, cl.Bridge, cl.Subnet, cl.Host)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Show prints the controllers, bridges, inter-bridge links and the plan.
func (c *Calculator) Show(w io.Writer) error {
	plan, err := c.Plan()
	if err != nil {
		return err
	}
	for _, ctrl := range c.topo.Controllers {
		fmt.Fprintf(w, "Controller: %s, Management: %s\n", ctrl.Name, ctrl.Management)
	}
	for _, br := range c.topo.Bridges {
		fmt.Fprintf(w, "Bridge: %s, Controller: %s, Capture: %t\n", br.Name, br.Controller, br.Capture)
	}
	for _, l := range c.topo.BridgeLinks {
		fmt.Fprintf(w, "Link: %s <-> %s (%s/%s)\n", l.A, l.B, util.VethName(l.A, l.B), util.VethName(l.B, l.A))
	}
	for _, e := range plan {
		routes := make([]string, 0, len(e.Routes))
		for _, r := range e.Routes {
			routes = append(routes, r.Dst.String())
		}
		fmt.Fprintf(w, "Node: %s, Role: %s, Bridge: %s, Interface: %s, IPv4: %s/%d, Routes: %s\n",
			e.Node, e.Role, e.Bridge, e.Uplink, e.Addr, netcfg.PrefixLen, strings.Join(routes, ","))
	}
	return nil
}
