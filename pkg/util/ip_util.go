package util

import (
	"fmt"
	"hash/fnv"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// HostAddr places host in the last octet of an IPv4 /24 subnet.
// HostAddr(192.168.210.0/24, 12) = 192.168.210.12
func HostAddr(subnet netip.Prefix, host uint8) (netip.Addr, error) {
	if !subnet.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("only IPv4 subnets are supported: %s", subnet)
	}
	if host == 0 || host == 255 {
		return netip.Addr{}, fmt.Errorf("host part %d is reserved", host)
	}
	b := subnet.Masked().Addr().As4()
	b[3] = host
	return netip.AddrFrom4(b), nil
}

// ThirdOctet is the lookup key for subnet-indexed files: "210" for
// 192.168.210.0/24.
func ThirdOctet(subnet netip.Prefix) string {
	b := subnet.Addr().As4()
	return strconv.Itoa(int(b[2]))
}

// VethName derives the interface name local to a for the link a<->b. Swapping
// the arguments yields the peer side. Names that would not fit in IFNAMSIZ
// are shortened and suffixed with a hash of both node names.
func VethName(a, b string) string {
	name := a + b
	if len(name) < unix.IFNAMSIZ {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(a + "/" + b))
	suffix := fmt.Sprintf("%06x", h.Sum32()&0xffffff)
	keep := unix.IFNAMSIZ - 1 - len(suffix)
	return name[:keep] + suffix
}

// CheckIfName reports whether name is usable as a Linux interface name.
func CheckIfName(name string) bool {
	if name == "" || len(name) >= unix.IFNAMSIZ {
		return false
	}
	for _, c := range name {
		if c == '/' || c == ' ' || c == ':' {
			return false
		}
	}
	return true
}
