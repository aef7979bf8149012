// Package topology creates testbed nodes in dependency order and registers
// each one before it is configured, so teardown can always find it.
package topology

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"Testbed/api"
	"Testbed/pkg/errs"
	"Testbed/pkg/metrics"
	"Testbed/pkg/netcfg"
	"Testbed/pkg/node"
	"Testbed/pkg/provision"
	"Testbed/pkg/registry"
	"Testbed/pkg/util"

	"go.uber.org/zap"
)

const (
	DefaultControllerPort = 6653
	// ClusterConfigPath is where ONOS reads its cluster definition.
	ClusterConfigPath = "/root/onos/config/cluster.json"
)

type Images struct {
	Bridge     string
	Controller string
	Server     string
	Client     string
	Printer    string
}

type Options struct {
	Images Images
	// CaptureRoot is the host directory holding one capture directory per
	// bridge.
	CaptureRoot string
	// ConfigDir holds onos/<controller>/cluster.json.
	ConfigDir      string
	PrinterHost    uint8
	InternalBridge string
}

type Builder struct {
	reg     *registry.Registry
	drivers node.Set
	router  *netcfg.Router
	prov    *provision.Provisioner
	subnets map[api.SubnetRole]api.Subnet
	opts    Options
	metrics *metrics.Collector
	log     *zap.Logger
}

func NewBuilder(reg *registry.Registry, drivers node.Set, router *netcfg.Router, prov *provision.Provisioner,
	subnets []api.Subnet, opts Options, m *metrics.Collector, log *zap.Logger) *Builder {
	bySubnet := make(map[api.SubnetRole]api.Subnet, len(subnets))
	for _, s := range subnets {
		bySubnet[s.Role] = s
	}
	return &Builder{
		reg:     reg,
		drivers: drivers,
		router:  router,
		prov:    prov,
		subnets: bySubnet,
		opts:    opts,
		metrics: m,
		log:     log.Named("builder"),
	}
}

// create registers n, then instantiates it. The node stays registered when
// instantiation fails because a half-created resource may exist.
func (b *Builder) create(ctx context.Context, n *api.Node, opts api.InstantiateOptions) (node.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errs.ProvisionError{Node: n.Name, Step: "instantiate", Err: err}
	}
	d, err := b.drivers.For(n.Role)
	if err != nil {
		return nil, &errs.ProvisionError{Node: n.Name, Step: "driver", Err: err}
	}
	if err = b.reg.Register(n); err != nil {
		return nil, &errs.ProvisionError{Node: n.Name, Step: "register", Err: err}
	}
	if err = d.Instantiate(ctx, n, opts); err != nil {
		return nil, &errs.ProvisionError{Node: n.Name, Step: "instantiate", Err: err}
	}
	b.metrics.NodeCreated(n.Role.String())
	b.log.Info("node created", zap.String("node", n.Name), zap.Stringer("role", n.Role), zap.String("image", opts.Image))
	return d, nil
}

func (b *Builder) lookup(name string, role api.Role) (*api.Node, error) {
	n, ok := b.reg.Get(name)
	if !ok || n.Role != role {
		return nil, fmt.Errorf("%s %s has not been created", role, name)
	}
	return n, nil
}

func (b *Builder) subnet(role api.SubnetRole) (api.Subnet, error) {
	s, ok := b.subnets[role]
	if !ok {
		return api.Subnet{}, fmt.Errorf("subnet %s is not configured", role)
	}
	return s, nil
}

// CreateBridge starts a switch whose captures land in CaptureRoot/<name>.
func (b *Builder) CreateBridge(ctx context.Context, name string) (*api.Node, error) {
	captureDir, err := filepath.Abs(filepath.Join(b.opts.CaptureRoot, name))
	if err != nil {
		return nil, &errs.ProvisionError{Node: name, Step: "capture dir", Err: err}
	}
	if err = os.MkdirAll(captureDir, 0o755); err != nil {
		return nil, &errs.ProvisionError{Node: name, Step: "capture dir", Err: err}
	}

	n := api.NewNode(name, api.RoleBridge)
	if _, err = b.create(ctx, n, api.InstantiateOptions{
		Image:       b.opts.Images.Bridge,
		NetworkMode: "bridge",
		Binds:       []string{captureDir + ":" + node.CaptureDir},
	}); err != nil {
		return n, err
	}
	return n, nil
}

// CreateController starts a controller, pushes its cluster definition and
// restarts it so the definition is in effect before any bridge uses it.
func (b *Builder) CreateController(ctx context.Context, name string, ports map[string]string) (*api.Node, error) {
	n := api.NewNode(name, api.RoleController)
	if _, err := b.create(ctx, n, api.InstantiateOptions{
		Image:       b.opts.Images.Controller,
		NetworkMode: "bridge",
		Ports:       ports,
	}); err != nil {
		return n, err
	}

	cluster := filepath.Join(b.opts.ConfigDir, "onos", name, "cluster.json")
	if _, err := os.Stat(cluster); err != nil {
		return n, &errs.ConfigPushError{Node: name, Artifact: "clusterConfig", Err: err}
	}
	if err := b.drivers.Controller.CopyToContainer(ctx, n, cluster, ClusterConfigPath); err != nil {
		return n, &errs.ConfigPushError{Node: name, Artifact: "clusterConfig", Err: err}
	}
	if err := b.drivers.Controller.Restart(ctx, n); err != nil {
		return n, &errs.ProvisionError{Node: name, Step: "restart", Err: err}
	}
	return n, nil
}

// ActivateController enables the controller applications.
func (b *Builder) ActivateController(ctx context.Context, name, managementAddr string) error {
	n, err := b.lookup(name, api.RoleController)
	if err != nil {
		return &errs.ProvisionError{Node: name, Step: "activate", Err: err}
	}
	if err = b.drivers.Controller.ActivateApplications(ctx, n, managementAddr); err != nil {
		return &errs.ProvisionError{Node: name, Step: "activate", Err: err}
	}
	return nil
}

// ConnectBridges links two bridges with the pair <a><b> / <b><a>.
func (b *Builder) ConnectBridges(ctx context.Context, a, c string) error {
	na, err := b.lookup(a, api.RoleBridge)
	if err != nil {
		return &errs.ProvisionError{Node: a, Step: "connect", Err: err}
	}
	nc, err := b.lookup(c, api.RoleBridge)
	if err != nil {
		return &errs.ProvisionError{Node: c, Step: "connect", Err: err}
	}
	if err = b.drivers.Bridge.Connect(ctx, na, nc, util.VethName(a, c), util.VethName(c, a)); err != nil {
		return &errs.ProvisionError{Node: a, Step: "connect", Err: err}
	}
	return nil
}

// SetController points bridge at controller. An empty address falls back to
// the controller's docker address.
func (b *Builder) SetController(ctx context.Context, bridge, controller, address string, port int) error {
	nb, err := b.lookup(bridge, api.RoleBridge)
	if err != nil {
		return &errs.ProvisionError{Node: bridge, Step: "set controller", Err: err}
	}
	nc, err := b.lookup(controller, api.RoleController)
	if err != nil {
		return &errs.ProvisionError{Node: bridge, Step: "set controller", Err: err}
	}
	if address == "" {
		address = node.ManagementAddress(nc)
	}
	if address == "" {
		return &errs.ProvisionError{Node: bridge, Step: "set controller", Err: fmt.Errorf("controller %s has no address", controller)}
	}
	if port == 0 {
		port = DefaultControllerPort
	}
	if err = b.drivers.Bridge.SetController(ctx, nb, address, port); err != nil {
		return &errs.ProvisionError{Node: bridge, Step: "set controller", Err: err}
	}
	return nil
}

// CreateServer starts a server. Every server but the file-sharing one gets
// the shared server location file.
func (b *Builder) CreateServer(ctx context.Context, s api.ServerSpec) (*api.Node, error) {
	image := s.Image
	if image == "" {
		image = b.opts.Images.Server
	}
	return b.attach(ctx, api.NewNode(s.Name, api.RoleHost), image, s.Bridge, s.Subnet, s.Host, !s.FileShare)
}

// CreatePrinter starts a printer on the internal bridge at the configured
// printer host address of subnet.
func (b *Builder) CreatePrinter(ctx context.Context, name string, subnet api.SubnetRole) (*api.Node, error) {
	return b.attach(ctx, api.NewNode(name, api.RoleHost), b.opts.Images.Printer, b.opts.InternalBridge, subnet, b.opts.PrinterHost, false)
}

// CreateClient starts a client, wires it, shapes its uplink when asked and
// pushes its configuration.
func (b *Builder) CreateClient(ctx context.Context, c api.ClientSpec) (*api.Node, error) {
	n := api.NewNode(c.Name, api.RoleClient)
	if _, err := b.attach(ctx, n, b.opts.Images.Client, c.Bridge, c.Subnet, c.Host, false); err != nil {
		return n, err
	}
	if err := b.router.Shape(ctx, n, c.Bridge, c.Link); err != nil {
		return n, err
	}
	s, _ := b.subnet(c.Subnet)
	if err := b.prov.ProvisionClient(ctx, n, s.CIDR, c.Profile); err != nil {
		return n, err
	}
	return n, nil
}

func (b *Builder) attach(ctx context.Context, n *api.Node, image, bridge string, subnet api.SubnetRole, host uint8, pushServerConfig bool) (*api.Node, error) {
	br, err := b.lookup(bridge, api.RoleBridge)
	if err != nil {
		return n, &errs.ProvisionError{Node: n.Name, Step: "bridge", Err: err}
	}
	s, err := b.subnet(subnet)
	if err != nil {
		return n, &errs.ProvisionError{Node: n.Name, Step: "subnet", Err: err}
	}
	if _, err = b.create(ctx, n, api.InstantiateOptions{Image: image}); err != nil {
		return n, err
	}
	if err = b.router.ConfigureNetworking(ctx, n, br, s.CIDR, host, pushServerConfig); err != nil {
		return n, err
	}
	return n, nil
}
