package link

import (
	"fmt"

	"Testbed/api"

	ns "github.com/containernetworking/plugins/pkg/ns"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

// unshaped is the class rate used when only latency or loss is requested.
const unshaped = 10000 // mbps

// ApplyShaping installs
//
//	tc qdisc add dev <if> root handle 1: htb default 1
//	tc class add dev <if> parent 1: classid 1:1 htb rate <rate>mbit burst 10000
//	tc qdisc add dev <if> parent 1:1 handle 10: netem delay <latency>ms loss <loss>%
//
// inside the namespace at netNs. Zero properties leave the link untouched.
func (lm *LinkManager) ApplyShaping(netNs, ifName string, p api.LinkProperties) error {
	if p.IsZero() {
		return nil
	}
	rate := p.Rate
	if rate == 0 {
		rate = unshaped
	}

	containerNs, err := ns.GetNS(netNs)
	if err != nil {
		return fmt.Errorf("failed to get namespace %s: %w", netNs, err)
	}
	defer containerNs.Close()

	err = containerNs.Do(func(_ ns.NetNS) error {
		link, err := netlink.LinkByName(ifName)
		if err != nil {
			return fmt.Errorf("failed to get link %s: %w", ifName, err)
		}

		root := netlink.NewHtb(netlink.QdiscAttrs{
			LinkIndex: link.Attrs().Index,
			Handle:    netlink.MakeHandle(1, 0),
			Parent:    netlink.HANDLE_ROOT,
		})
		root.Defcls = 1
		if err := netlink.QdiscReplace(root); err != nil {
			return fmt.Errorf("failed to add HTB root qdisc: %w", err)
		}

		class := netlink.NewHtbClass(
			netlink.ClassAttrs{
				LinkIndex: link.Attrs().Index,
				Handle:    netlink.MakeHandle(1, 1),
				Parent:    netlink.MakeHandle(1, 0),
			},
			netlink.HtbClassAttrs{
				Rate:   rate * 1024 * 1024,
				Buffer: 10000,
				Prio:   1,
			},
		)
		if err := netlink.ClassReplace(class); err != nil {
			return fmt.Errorf("failed to add HTB class: %w", err)
		}

		if p.Latency == 0 && p.Loss == 0 {
			return nil
		}
		netem := netlink.NewNetem(netlink.QdiscAttrs{
			LinkIndex: link.Attrs().Index,
			Parent:    netlink.MakeHandle(1, 1),
			Handle:    netlink.MakeHandle(10, 0),
		}, netlink.NetemQdiscAttrs{
			Latency: p.Latency * 1000,
			Loss:    p.Loss,
			Limit:   300000,
		})
		if err := netlink.QdiscReplace(netem); err != nil {
			return fmt.Errorf("failed to add netem qdisc: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	lm.log.Debug("link shaped",
		zap.String("interface", ifName),
		zap.Uint32("latencyMs", p.Latency),
		zap.Float32("loss", p.Loss),
		zap.Uint64("rateMbps", rate))
	return nil
}
