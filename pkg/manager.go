package pkg

import (
	"context"
	"fmt"
	"path/filepath"

	"Testbed/api"
	"Testbed/pkg/archive"
	"Testbed/pkg/config"
	"Testbed/pkg/harvest"
	"Testbed/pkg/lifecycle"
	"Testbed/pkg/metrics"
	"Testbed/pkg/netcfg"
	"Testbed/pkg/node"
	"Testbed/pkg/provision"
	"Testbed/pkg/registry"
	"Testbed/pkg/topology"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Manager wires the docker drivers, the builder, the harvester and the
// lifecycle controller of one session.
type Manager struct {
	Session string

	cfg       *config.Config
	cm        *node.ContainerManager
	reg       *registry.Registry
	metrics   *metrics.Collector
	harvester *harvest.Harvester
	ctrl      *lifecycle.Controller
	log       *zap.Logger
}

func newHarvester(cfg *config.Config, cm *node.ContainerManager, m *metrics.Collector, log *zap.Logger) *harvest.Harvester {
	conv := node.NewFlowMeter(cm, cfg.Images.Converter, cfg.CaptureRoot)
	return harvest.NewHarvester(conv, harvest.Options{
		HeaderMarker: cfg.Harvest.HeaderMarker,
		ReportName:   cfg.Harvest.ReportName,
	}, m, log)
}

func newArchiver(cfg *config.Config, session string, log *zap.Logger) (lifecycle.Archiver, error) {
	if cfg.Archive.Endpoint == "" {
		return nil, nil
	}
	store, err := archive.New(archive.Config{
		Endpoint:  cfg.Archive.Endpoint,
		Bucket:    cfg.Archive.Bucket,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		UseSSL:    cfg.Archive.UseSSL,
	}, session, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewManager connects to docker and assembles a session for topo.
func NewManager(cfg *config.Config, topo *api.TopoConfig, operator lifecycle.Operator, log *zap.Logger) (*Manager, error) {
	if err := topo.ValidateInterfaces(cfg.InternalBridge); err != nil {
		return nil, err
	}
	session := uuid.NewString()
	log = log.With(zap.String("session", session))

	cm, err := node.NewContainerManager(log)
	if err != nil {
		return nil, err
	}
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		cm.Close()
		return nil, err
	}

	drivers := node.Set{
		Bridge: node.NewSwitch(cm),
		Controller: node.NewOnos(cm, node.OnosConfig{
			User:     cfg.Onos.User,
			Password: cfg.Onos.Password,
			Port:     cfg.Onos.Port,
			Apps:     cfg.Onos.Apps,
		}),
		Host:   cm,
		Client: cm,
	}

	external, ok := topo.Subnet(api.SubnetExternal)
	if !ok {
		cm.Close()
		return nil, fmt.Errorf("topology has no %s subnet", api.SubnetExternal)
	}
	prov := provision.NewProvisioner(cfg.ConfigDir, cfg.RemoteHome, external.CIDR, drivers, log)
	router := netcfg.NewRouter(topo.Prefixes(), drivers, netcfg.FileTransfer{
		Local:  filepath.Join(cfg.ConfigDir, "serverconfig.ini"),
		Remote: provision.Destinations(cfg.RemoteHome)[provision.ServerConfig],
	}, log)

	reg := registry.New()
	builder := topology.NewBuilder(reg, drivers, router, prov, topo.Subnets, topology.Options{
		Images: topology.Images{
			Bridge:     cfg.Images.Bridge,
			Controller: cfg.Images.Controller,
			Server:     cfg.Images.Server,
			Client:     cfg.Images.Client,
			Printer:    cfg.Images.Printer,
		},
		CaptureRoot:    cfg.CaptureRoot,
		ConfigDir:      cfg.ConfigDir,
		PrinterHost:    cfg.PrinterHost,
		InternalBridge: cfg.InternalBridge,
	}, m, log)

	arch, err := newArchiver(cfg, session, log)
	if err != nil {
		cm.Close()
		return nil, err
	}
	h := newHarvester(cfg, cm, m, log)
	ctrl := lifecycle.NewController(topo, reg, builder, drivers, h, operator, arch, m, lifecycle.Options{
		CaptureRoot:          cfg.CaptureRoot,
		ClientLogPath:        prov.LogPath(),
		InterruptDiagnostics: cfg.Teardown.InterruptDiagnostics,
		MetricsFile:          cfg.MetricsPath(),
	}, log)

	return &Manager{
		Session:   session,
		cfg:       cfg,
		cm:        cm,
		reg:       reg,
		metrics:   m,
		harvester: h,
		ctrl:      ctrl,
		log:       log,
	}, nil
}

// Up runs the whole session and returns once it is torn down.
func (m *Manager) Up(ctx context.Context) error {
	return m.ctrl.Run(ctx)
}

// Interrupt requests an operator interrupt. Safe to call repeatedly.
func (m *Manager) Interrupt() {
	m.ctrl.Interrupt()
}

func (m *Manager) Report() harvest.Report {
	return m.ctrl.Report()
}

func (m *Manager) Close() error {
	return m.cm.Close()
}

// Harvest converts and merges the captures already under the capture root,
// outside of any session.
func Harvest(ctx context.Context, cfg *config.Config, log *zap.Logger) (harvest.Report, error) {
	cm, err := node.NewContainerManager(log)
	if err != nil {
		return harvest.Report{}, err
	}
	defer cm.Close()
	return newHarvester(cfg, cm, nil, log).Harvest(ctx, cfg.CaptureRoot)
}
