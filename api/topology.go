package api

import (
	"fmt"
	"net/netip"

	"Testbed/pkg/util"
)

// TopoConfig is the topology file: every node of the testbed and how it is
// wired.
type TopoConfig struct {
	Subnets     []Subnet         `yaml:"subnets"`
	Controllers []ControllerSpec `yaml:"controllers"`
	Bridges     []BridgeSpec     `yaml:"bridges"`
	BridgeLinks []BridgeLink     `yaml:"bridgeLinks"`
	Servers     []ServerSpec     `yaml:"servers"`
	Printers    []PrinterSpec    `yaml:"printers"`
	Clients     []ClientSpec     `yaml:"clients"`
}

type ControllerSpec struct {
	Name string `yaml:"name"`
	// Management is the address the REST API is reached on. Empty means the
	// address docker assigned to the container.
	Management string            `yaml:"management"`
	Ports      map[string]string `yaml:"ports"`
}

type BridgeSpec struct {
	Name           string `yaml:"name"`
	Controller     string `yaml:"controller"` // controller node name
	ControllerPort int    `yaml:"controllerPort"`
	Capture        bool   `yaml:"capture"`
}

type BridgeLink struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

type ServerSpec struct {
	Name   string     `yaml:"name"`
	Image  string     `yaml:"image"`
	Bridge string     `yaml:"bridge"`
	Subnet SubnetRole `yaml:"subnet"`
	Host   uint8      `yaml:"host"`
	// FileShare marks the internal file-sharing server, which produces the
	// server location file instead of consuming it.
	FileShare bool `yaml:"fileShare"`
}

type PrinterSpec struct {
	Name   string     `yaml:"name"`
	Subnet SubnetRole `yaml:"subnet"`
}

type ClientSpec struct {
	Name    string         `yaml:"name"`
	Bridge  string         `yaml:"bridge"`
	Subnet  SubnetRole     `yaml:"subnet"`
	Host    uint8          `yaml:"host"`
	Profile string         `yaml:"profile"`
	Link    LinkProperties `yaml:"link"`
}

// Subnet looks up the configured subnet carrying the given role tag.
func (t *TopoConfig) Subnet(role SubnetRole) (Subnet, bool) {
	for _, s := range t.Subnets {
		if s.Role == role {
			return s, true
		}
	}
	return Subnet{}, false
}

// Prefixes returns every configured subnet prefix in declaration order.
func (t *TopoConfig) Prefixes() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(t.Subnets))
	for _, s := range t.Subnets {
		out = append(out, s.CIDR)
	}
	return out
}

// Validate checks names are unique and every reference resolves.
func (t *TopoConfig) Validate() error {
	if len(t.Subnets) == 0 {
		t.Subnets = DefaultSubnets()
	}
	seenSubnet := make(map[SubnetRole]bool)
	for _, s := range t.Subnets {
		if _, err := ParseSubnetRole(string(s.Role)); err != nil {
			return err
		}
		if !s.CIDR.Addr().Is4() || s.CIDR.Bits() != 24 {
			return fmt.Errorf("subnet %s: only IPv4 /24 prefixes are supported", s)
		}
		if seenSubnet[s.Role] {
			return fmt.Errorf("subnet role %s declared twice", s.Role)
		}
		seenSubnet[s.Role] = true
	}

	names := make(map[string]bool)
	add := func(name string) error {
		if name == "" {
			return fmt.Errorf("node with empty name")
		}
		if names[name] {
			return fmt.Errorf("node %s declared twice", name)
		}
		names[name] = true
		return nil
	}

	controllers := make(map[string]bool)
	for _, c := range t.Controllers {
		if err := add(c.Name); err != nil {
			return err
		}
		controllers[c.Name] = true
	}
	bridges := make(map[string]bool)
	for _, b := range t.Bridges {
		if err := add(b.Name); err != nil {
			return err
		}
		if b.Controller != "" && !controllers[b.Controller] {
			return fmt.Errorf("bridge %s: controller %s not found", b.Name, b.Controller)
		}
		bridges[b.Name] = true
	}
	for _, l := range t.BridgeLinks {
		if !bridges[l.A] || !bridges[l.B] || l.A == l.B {
			return fmt.Errorf("invalid bridge link %s<->%s", l.A, l.B)
		}
	}

	attached := func(name, bridge string, subnet SubnetRole, host uint8) error {
		if err := add(name); err != nil {
			return err
		}
		if !bridges[bridge] {
			return fmt.Errorf("node %s: bridge %s not found", name, bridge)
		}
		if !seenSubnet[subnet] {
			return fmt.Errorf("node %s: subnet %s not configured", name, subnet)
		}
		if host == 0 || host == 255 {
			return fmt.Errorf("node %s: host part %d out of range", name, host)
		}
		return nil
	}
	for _, s := range t.Servers {
		if err := attached(s.Name, s.Bridge, s.Subnet, s.Host); err != nil {
			return err
		}
	}
	for _, p := range t.Printers {
		if err := add(p.Name); err != nil {
			return err
		}
		if !seenSubnet[p.Subnet] {
			return fmt.Errorf("printer %s: subnet %s not configured", p.Name, p.Subnet)
		}
	}
	for _, c := range t.Clients {
		if err := attached(c.Name, c.Bridge, c.Subnet, c.Host); err != nil {
			return err
		}
		if c.Profile == "" {
			return fmt.Errorf("client %s: behaviour profile missing", c.Name)
		}
	}
	return t.ValidateInterfaces("")
}

// ValidateInterfaces checks that every veth end the topology derives is a
// usable interface name and that no two links derive the same one. Printers
// are only checked when internalBridge is known.
func (t *TopoConfig) ValidateInterfaces(internalBridge string) error {
	owner := make(map[string]string)
	link := func(a, b string) error {
		for _, end := range [][2]string{{a, b}, {b, a}} {
			name := util.VethName(end[0], end[1])
			if !util.CheckIfName(name) {
				return fmt.Errorf("link %s<->%s: invalid interface name %q", a, b, name)
			}
			pair := a + "<->" + b
			if prev, ok := owner[name]; ok {
				return fmt.Errorf("links %s and %s both derive interface %s", prev, pair, name)
			}
			owner[name] = pair
		}
		return nil
	}

	for _, l := range t.BridgeLinks {
		if err := link(l.A, l.B); err != nil {
			return err
		}
	}
	for _, s := range t.Servers {
		if err := link(s.Name, s.Bridge); err != nil {
			return err
		}
	}
	if internalBridge != "" {
		for _, p := range t.Printers {
			if err := link(p.Name, internalBridge); err != nil {
				return err
			}
		}
	}
	for _, c := range t.Clients {
		if err := link(c.Name, c.Bridge); err != nil {
			return err
		}
	}
	return nil
}
