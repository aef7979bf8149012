package api

import (
	"fmt"
	"net/netip"
	"strings"
)

type SubnetRole string

const (
	SubnetServer     SubnetRole = "server"
	SubnetManagement SubnetRole = "management"
	SubnetOffice     SubnetRole = "office"
	SubnetDeveloper  SubnetRole = "developer"
	SubnetExternal   SubnetRole = "external"
)

// Subnet is fixed at configuration time and never instantiated as a node.
type Subnet struct {
	Role SubnetRole   `yaml:"role"`
	CIDR netip.Prefix `yaml:"cidr"`
}

func (s Subnet) String() string {
	return fmt.Sprintf("%s(%s)", s.Role, s.CIDR)
}

func ParseSubnetRole(s string) (SubnetRole, error) {
	switch r := SubnetRole(strings.ToLower(strings.TrimSpace(s))); r {
	case SubnetServer, SubnetManagement, SubnetOffice, SubnetDeveloper, SubnetExternal:
		return r, nil
	}
	return "", fmt.Errorf("unknown subnet role %q", s)
}

// DefaultSubnets returns the address plan used when the topology file does
// not declare its own.
func DefaultSubnets() []Subnet {
	return []Subnet{
		{Role: SubnetServer, CIDR: netip.MustParsePrefix("192.168.100.0/24")},
		{Role: SubnetManagement, CIDR: netip.MustParsePrefix("192.168.200.0/24")},
		{Role: SubnetOffice, CIDR: netip.MustParsePrefix("192.168.210.0/24")},
		{Role: SubnetDeveloper, CIDR: netip.MustParsePrefix("192.168.220.0/24")},
		{Role: SubnetExternal, CIDR: netip.MustParsePrefix("192.168.50.0/24")},
	}
}
