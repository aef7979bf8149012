package node

import (
	"context"
	"fmt"
	"net/netip"

	"Testbed/api"
)

// Driver materializes and wires nodes of one role.
type Driver interface {
	Instantiate(ctx context.Context, n *api.Node, opts api.InstantiateOptions) error
	// Connect creates the veth pair localIf<->peerIf with localIf inside n
	// and peerIf inside peer.
	Connect(ctx context.Context, n, peer *api.Node, localIf, peerIf string) error
	SetIP(ctx context.Context, n *api.Node, addr netip.Addr, prefixLen int, ifName string) error
	AddRoute(ctx context.Context, n *api.Node, dst netip.Prefix, ifName string) error
	CopyToContainer(ctx context.Context, n *api.Node, localPath, remotePath string) error
	CopyFromContainer(ctx context.Context, n *api.Node, remotePath, localPath string) error
	Run(ctx context.Context, n *api.Node, command string) error
	// Delete destroys the backing resource. Deleting a node that was never
	// fully instantiated, or was already deleted, succeeds.
	Delete(ctx context.Context, n *api.Node) error
}

// BridgeDriver drives software switches.
type BridgeDriver interface {
	Driver
	SetController(ctx context.Context, n *api.Node, address string, port int) error
	StartCapture(ctx context.Context, n *api.Node) error
	StopCapture(ctx context.Context, n *api.Node) error
}

// ControllerDriver drives SDN controllers.
type ControllerDriver interface {
	Driver
	Restart(ctx context.Context, n *api.Node) error
	// ActivateApplications enables the controller applications through the
	// management address. An empty address means the node's own.
	ActivateApplications(ctx context.Context, n *api.Node, managementAddr string) error
}

// Shaper is implemented by drivers able to impair a node's uplink.
type Shaper interface {
	Shape(ctx context.Context, n *api.Node, ifName string, p api.LinkProperties) error
}

// Set holds one driver per role.
type Set struct {
	Bridge     BridgeDriver
	Controller ControllerDriver
	Host       Driver
	Client     Driver
}

// For dispatches on the node role.
func (s Set) For(role api.Role) (Driver, error) {
	var d Driver
	switch role {
	case api.RoleBridge:
		if s.Bridge != nil {
			d = s.Bridge
		}
	case api.RoleController:
		if s.Controller != nil {
			d = s.Controller
		}
	case api.RoleHost:
		d = s.Host
	case api.RoleClient:
		d = s.Client
	}
	if d == nil {
		return nil, fmt.Errorf("no driver for role %s", role)
	}
	return d, nil
}
