package ovs

import (
	"context"
	"fmt"
	"slices"

	"github.com/digitalocean/go-openvswitch/ovs"
)

// ExecFunc runs a command inside the container hosting a bridge and returns
// its combined output.
type ExecFunc func(ctx context.Context, container string, cmd ...string) ([]byte, error)

// OvsManager drives the Open vSwitch instance running inside each bridge
// container. Every ovs-vsctl call is routed through exec.
type OvsManager struct {
	exec ExecFunc
}

func NewOvsManager(exec ExecFunc) *OvsManager {
	return &OvsManager{exec: exec}
}

func (om *OvsManager) client(ctx context.Context, container string) *ovs.Client {
	return ovs.New(ovs.Exec(func(cmd string, args ...string) ([]byte, error) {
		return om.exec(ctx, container, append([]string{cmd}, args...)...)
	}))
}

// CreateBridge adds an OpenFlow 1.3 bridge named bridge.
func (om *OvsManager) CreateBridge(ctx context.Context, container, bridge string) error {
	c := om.client(ctx, container)
	if err := c.VSwitch.AddBridge(bridge); err != nil {
		return fmt.Errorf("failed to add bridge %s: %w", bridge, err)
	}
	if err := c.VSwitch.Set.Bridge(bridge, ovs.BridgeOptions{
		Protocols: []string{ovs.ProtocolOpenFlow13},
	}); err != nil {
		return fmt.Errorf("failed to set protocols on bridge %s: %w", bridge, err)
	}
	return nil
}

func (om *OvsManager) DeleteBridge(ctx context.Context, container, bridge string) error {
	if err := om.client(ctx, container).VSwitch.DeleteBridge(bridge); err != nil {
		return fmt.Errorf("failed to delete bridge %s: %w", bridge, err)
	}
	return nil
}

// AddPort attaches an interface already moved into the bridge container.
// Adding a port twice is a no-op.
func (om *OvsManager) AddPort(ctx context.Context, container, bridge, port string) error {
	c := om.client(ctx, container)
	ports, err := c.VSwitch.ListPorts(bridge)
	if err != nil {
		return fmt.Errorf("failed to list ports of %s: %w", bridge, err)
	}
	if slices.Contains(ports, port) {
		return nil
	}
	if err := c.VSwitch.AddPort(bridge, port); err != nil {
		return fmt.Errorf("failed to add %s to OVS bridge %s: %w", port, bridge, err)
	}
	return nil
}

// SetController points bridge at an OpenFlow controller, e.g. tcp:172.17.0.2:6653.
func (om *OvsManager) SetController(ctx context.Context, container, bridge, target string) error {
	if err := om.client(ctx, container).VSwitch.SetController(bridge, target); err != nil {
		return fmt.Errorf("failed to set controller %s on %s: %w", target, bridge, err)
	}
	return nil
}
