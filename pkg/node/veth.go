package node

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"Testbed/api"

	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Host namespace link operations, replaced in tests.
var (
	linkAdd    = netlink.LinkAdd
	linkByName = netlink.LinkByName
	linkDel    = netlink.LinkDel
)

// removeHostLinks deletes whichever of names is still in the host namespace.
// Deleting one end of a veth removes its peer too.
func removeHostLinks(names ...string) error {
	var failed error
	for _, name := range names {
		l, err := linkByName(name)
		if err != nil {
			continue
		}
		if err = linkDel(l); err != nil {
			failed = multierr.Append(failed, fmt.Errorf("failed to delete %s: %w", name, err))
		}
	}
	return failed
}

// Connect creates the veth pair in the host namespace, then moves each end
// into its node. Ends landing in a bridge node are attached to its OVS bridge.
// On failure no end is left behind in the host namespace.
func (cm *ContainerManager) Connect(ctx context.Context, n, peer *api.Node, localIf, peerIf string) (err error) {
	nh, err := handleOf(n)
	if err != nil {
		return err
	}
	ph, err := handleOf(peer)
	if err != nil {
		return err
	}

	linkAttr := netlink.NewLinkAttrs()
	linkAttr.Name = localIf
	linkAttr.MTU = 1500
	veth := &netlink.Veth{
		LinkAttrs: linkAttr,
		PeerName:  peerIf,
	}
	if err = linkAdd(veth); err != nil {
		return fmt.Errorf("failed to create veth pair %s<->%s: %w", localIf, peerIf, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if cerr := removeHostLinks(localIf, peerIf); cerr != nil {
			cm.log.Warn("veth left in host namespace", zap.String("local", localIf), zap.String("remote", peerIf), zap.Error(cerr))
		}
	}()

	if err = moveToNs(localIf, nh.netNs()); err != nil {
		return err
	}
	if err = moveToNs(peerIf, ph.netNs()); err != nil {
		return err
	}

	if peer.Role == api.RoleBridge {
		if err = cm.om.AddPort(ctx, ph.ID, peer.Name, peerIf); err != nil {
			return err
		}
	}
	if n.Role == api.RoleBridge {
		if err = cm.om.AddPort(ctx, nh.ID, n.Name, localIf); err != nil {
			return err
		}
	}

	n.Interfaces = append(n.Interfaces, api.NodeInterface{Local: localIf, Peer: peerIf, PeerNode: peer.Name})
	peer.Interfaces = append(peer.Interfaces, api.NodeInterface{Local: peerIf, Peer: localIf, PeerNode: n.Name})
	cm.log.Debug("nodes connected",
		zap.String("node", n.Name), zap.String("peer", peer.Name),
		zap.String("local", localIf), zap.String("remote", peerIf))
	return nil
}

func moveToNs(ifName, netNs string) error {
	l, err := linkByName(ifName)
	if err != nil {
		return fmt.Errorf("failed to get link %s: %w", ifName, err)
	}
	containerNs, err := ns.GetNS(netNs)
	if err != nil {
		return fmt.Errorf("failed to get namespace for container: %w", err)
	}
	defer containerNs.Close()

	if err = netlink.LinkSetNsFd(l, int(containerNs.Fd())); err != nil {
		return fmt.Errorf("failed to set namespace for %s: %w", ifName, err)
	}
	return containerNs.Do(func(_ ns.NetNS) error {
		inNs, err := netlink.LinkByName(ifName)
		if err != nil {
			return fmt.Errorf("failed to get link %s in container namespace: %w", ifName, err)
		}
		if err = netlink.LinkSetUp(inNs); err != nil {
			return fmt.Errorf("failed to set %s up: %w", ifName, err)
		}
		return nil
	})
}

// inNs runs fn against ifName inside the namespace of n.
func inNs(n *api.Node, ifName string, fn func(netlink.Link) error) error {
	h, err := handleOf(n)
	if err != nil {
		return err
	}
	containerNs, err := ns.GetNS(h.netNs())
	if err != nil {
		return fmt.Errorf("failed to get namespace for container: %w", err)
	}
	defer containerNs.Close()

	return containerNs.Do(func(_ ns.NetNS) error {
		l, err := netlink.LinkByName(ifName)
		if err != nil {
			return fmt.Errorf("failed to get link %s in container namespace: %w", ifName, err)
		}
		return fn(l)
	})
}

func (cm *ContainerManager) SetIP(_ context.Context, n *api.Node, addr netip.Addr, prefixLen int, ifName string) error {
	return inNs(n, ifName, func(l netlink.Link) error {
		ipNet := &net.IPNet{IP: addr.AsSlice(), Mask: net.CIDRMask(prefixLen, addr.BitLen())}
		if err := netlink.AddrAdd(l, &netlink.Addr{IPNet: ipNet}); err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", ipNet, ifName, err)
		}
		return nil
	})
}

// AddRoute installs a link-scoped route: dst is reachable directly out of
// ifName, the shared bridge doing the rest.
func (cm *ContainerManager) AddRoute(_ context.Context, n *api.Node, dst netip.Prefix, ifName string) error {
	return inNs(n, ifName, func(l netlink.Link) error {
		dst = dst.Masked()
		route := &netlink.Route{
			LinkIndex: l.Attrs().Index,
			Scope:     netlink.SCOPE_LINK,
			Dst: &net.IPNet{
				IP:   dst.Addr().AsSlice(),
				Mask: net.CIDRMask(dst.Bits(), dst.Addr().BitLen()),
			},
		}
		if err := netlink.RouteReplace(route); err != nil {
			return fmt.Errorf("failed to add route %s via %s: %w", dst, ifName, err)
		}
		return nil
	})
}

func (cm *ContainerManager) Shape(_ context.Context, n *api.Node, ifName string, p api.LinkProperties) error {
	h, err := handleOf(n)
	if err != nil {
		return err
	}
	return cm.lm.ApplyShaping(h.netNs(), ifName, p)
}
