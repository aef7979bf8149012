// Package lifecycle drives a testbed session from build to teardown. Every
// exit path (normal stop, provisioning failure, operator interrupt) runs the
// same teardown routine exactly once.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"Testbed/api"
	"Testbed/pkg/errs"
	"Testbed/pkg/harvest"
	"Testbed/pkg/metrics"
	"Testbed/pkg/node"
	"Testbed/pkg/registry"
	"Testbed/pkg/topology"
)

// Operator gates the build and decides when a running session stops.
type Operator interface {
	Confirm(ctx context.Context, prompt string) error
	// AwaitStop is called once the session is running. The returned channel
	// is closed when the operator asks to stop.
	AwaitStop(ctx context.Context) <-chan struct{}
}

// Archiver uploads session artifacts once the session is over.
type Archiver interface {
	Upload(ctx context.Context, files ...string) error
}

type Options struct {
	CaptureRoot string
	// ClientLogPath is the diagnostic log inside each client.
	ClientLogPath string
	// InterruptDiagnostics also collects client logs on operator interrupt.
	InterruptDiagnostics bool
	MetricsFile          string
}

type teardownPlan struct {
	state       State
	diagnostics bool
}

type Controller struct {
	topo      *api.TopoConfig
	reg       *registry.Registry
	builder   *topology.Builder
	drivers   node.Set
	harvester *harvest.Harvester
	operator  Operator
	archiver  Archiver
	metrics   *metrics.Collector
	opts      Options
	log       *zap.Logger

	state       atomic.Int32
	interrupted atomic.Bool
	interrupt   chan struct{}

	mu          sync.Mutex
	cancelBuild context.CancelFunc
	tornDown    bool
	report      harvest.Report
}

func NewController(topo *api.TopoConfig, reg *registry.Registry, builder *topology.Builder, drivers node.Set,
	harvester *harvest.Harvester, operator Operator, archiver Archiver, m *metrics.Collector, opts Options, log *zap.Logger) *Controller {
	return &Controller{
		topo:      topo,
		reg:       reg,
		builder:   builder,
		drivers:   drivers,
		harvester: harvester,
		operator:  operator,
		archiver:  archiver,
		metrics:   m,
		opts:      opts,
		log:       log.Named("lifecycle"),
		interrupt: make(chan struct{}),
	}
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

// Report returns the harvest result of the finished session.
func (c *Controller) Report() harvest.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

func (c *Controller) transition(from, to State) bool {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	c.metrics.SetState(from.String(), to.String())
	c.log.Debug("state change", zap.Stringer("from", from), zap.Stringer("to", to))
	return true
}

func (c *Controller) enter(to State) {
	from := State(c.state.Swap(int32(to)))
	c.metrics.SetState(from.String(), to.String())
	c.log.Debug("state change", zap.Stringer("from", from), zap.Stringer("to", to))
}

// Interrupt asks the session to stop without harvesting diagnostics. Only
// the first call has an effect; later calls return immediately.
func (c *Controller) Interrupt() {
	if !c.interrupted.CompareAndSwap(false, true) {
		return
	}
	c.log.Warn("interrupt received, tearing down")
	close(c.interrupt)
	c.mu.Lock()
	if c.cancelBuild != nil {
		c.cancelBuild()
	}
	c.mu.Unlock()
}

// Run builds the topology, captures until the operator stops the session
// and then harvests and tears down. A provisioning failure is returned after
// teardown. An interrupt is not an error.
func (c *Controller) Run(ctx context.Context) error {
	if !c.transition(Idle, Building) {
		return fmt.Errorf("session already started (state %s)", c.State())
	}

	buildCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelBuild = cancel
	c.mu.Unlock()
	if c.interrupted.Load() {
		cancel()
	}
	err := c.build(buildCtx)
	cancel()

	if c.interrupted.Load() {
		c.teardown(ctx, teardownPlan{state: Interrupted, diagnostics: c.opts.InterruptDiagnostics})
		return nil
	}
	if err != nil {
		c.log.Error("build failed", zap.Error(err))
		c.teardown(ctx, teardownPlan{state: FailingOut, diagnostics: true})
		return err
	}

	if err = c.startCapture(ctx); err != nil {
		c.teardown(ctx, teardownPlan{state: FailingOut, diagnostics: true})
		return err
	}
	c.transition(Building, Running)
	c.log.Info("testbed running", zap.Int("nodes", c.reg.Len()))

	// ends the operator's wait once Run returns
	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	select {
	case <-c.operator.AwaitStop(waitCtx):
		c.teardown(ctx, teardownPlan{state: Harvesting})
	case <-c.interrupt:
		c.teardown(ctx, teardownPlan{state: Interrupted, diagnostics: c.opts.InterruptDiagnostics})
	case <-ctx.Done():
		c.teardown(ctx, teardownPlan{state: Interrupted, diagnostics: c.opts.InterruptDiagnostics})
	}
	return nil
}

// Teardown deletes whatever is still registered and harvests captures. It
// is a no-op once the session has been torn down.
func (c *Controller) Teardown(ctx context.Context) {
	c.teardown(ctx, teardownPlan{state: Harvesting})
}

func (c *Controller) build(ctx context.Context) error {
	for _, ctrl := range c.topo.Controllers {
		if _, err := c.builder.CreateController(ctx, ctrl.Name, ctrl.Ports); err != nil {
			return err
		}
	}
	if len(c.topo.Controllers) > 0 {
		if err := c.operator.Confirm(ctx, "Controllers are up. Proceed to switch creation? [y]"); err != nil {
			return err
		}
		for _, ctrl := range c.topo.Controllers {
			if err := c.builder.ActivateController(ctx, ctrl.Name, ctrl.Management); err != nil {
				return err
			}
		}
	}

	for _, br := range c.topo.Bridges {
		if _, err := c.builder.CreateBridge(ctx, br.Name); err != nil {
			return err
		}
	}
	for _, l := range c.topo.BridgeLinks {
		if err := c.builder.ConnectBridges(ctx, l.A, l.B); err != nil {
			return err
		}
	}
	for _, br := range c.topo.Bridges {
		if br.Controller == "" {
			continue
		}
		if err := c.builder.SetController(ctx, br.Name, br.Controller, c.managementAddr(br.Controller), br.ControllerPort); err != nil {
			return err
		}
	}

	for _, s := range c.topo.Servers {
		if _, err := c.builder.CreateServer(ctx, s); err != nil {
			return err
		}
	}
	for _, p := range c.topo.Printers {
		if _, err := c.builder.CreatePrinter(ctx, p.Name, p.Subnet); err != nil {
			return err
		}
	}
	for _, cl := range c.topo.Clients {
		if _, err := c.builder.CreateClient(ctx, cl); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *Controller) managementAddr(controller string) string {
	for _, ctrl := range c.topo.Controllers {
		if ctrl.Name == controller {
			return ctrl.Management
		}
	}
	return ""
}

func (c *Controller) captureBridges() []*api.Node {
	var out []*api.Node
	for _, br := range c.topo.Bridges {
		if !br.Capture {
			continue
		}
		if n, ok := c.reg.Get(br.Name); ok {
			out = append(out, n)
		}
	}
	return out
}

func (c *Controller) startCapture(ctx context.Context) error {
	for _, n := range c.captureBridges() {
		if err := c.drivers.Bridge.StartCapture(ctx, n); err != nil {
			return &errs.ProvisionError{Node: n.Name, Step: "start capture", Err: err}
		}
	}
	return nil
}

func (c *Controller) stopCapture(ctx context.Context) {
	for _, n := range c.captureBridges() {
		if err := c.drivers.Bridge.StopCapture(ctx, n); err != nil {
			c.log.Warn("failed to stop capture", zap.String("node", n.Name), zap.Error(err))
		}
	}
}

// teardown is the single exit routine. The first caller wins.
func (c *Controller) teardown(ctx context.Context, plan teardownPlan) {
	c.mu.Lock()
	if c.tornDown {
		c.mu.Unlock()
		return
	}
	c.tornDown = true
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	c.enter(plan.state)
	c.log.Info("teardown started", zap.Stringer("reason", plan.state), zap.Int("nodes", c.reg.Len()))

	c.stopCapture(ctx)
	if plan.diagnostics {
		c.collectDiagnostics(ctx)
	}
	c.deleteAll(ctx)
	report := c.harvest(ctx)

	c.mu.Lock()
	c.report = report
	c.mu.Unlock()

	c.publish(ctx, report)
	c.enter(TornDown)
	c.log.Info("teardown finished", zap.String("report", report.Path), zap.Bool("no_data", report.NoData))
}

// collectDiagnostics copies each client's log into <captureRoot>/logs.
// Failures are logged and never stop the teardown.
func (c *Controller) collectDiagnostics(ctx context.Context) {
	if c.opts.ClientLogPath == "" {
		return
	}
	dir := filepath.Join(c.opts.CaptureRoot, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Warn("cannot create diagnostics dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	d := c.drivers.Client
	if d == nil {
		return
	}
	for _, n := range c.reg.ByRole(api.RoleClient) {
		local := filepath.Join(dir, n.Name+".log")
		if err := d.CopyFromContainer(ctx, n, c.opts.ClientLogPath, local); err != nil {
			c.log.Warn("failed to collect client log", zap.String("node", n.Name), zap.Error(err))
		}
	}
}

// deleteAll deletes every registered node, newest first. A node whose delete
// fails stays registered; the rest are still attempted.
func (c *Controller) deleteAll(ctx context.Context) error {
	nodes := c.reg.Nodes()
	var failed error
	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		d, err := c.drivers.For(n.Role)
		if err == nil {
			err = d.Delete(ctx, n)
		}
		if err != nil {
			failed = multierr.Append(failed, &errs.TeardownError{Node: n.Name, Err: err})
			c.metrics.TeardownFailed()
			continue
		}
		c.reg.Remove(n.Name)
		c.metrics.NodeDeleted(n.Role.String())
	}
	if failed != nil {
		c.log.Warn("teardown left nodes behind",
			zap.Int("failed", len(multierr.Errors(failed))),
			zap.Strings("remaining", names(c.reg.Nodes())),
			zap.Error(failed))
	}
	return failed
}

func (c *Controller) harvest(ctx context.Context) harvest.Report {
	if c.harvester == nil {
		return harvest.Report{NoData: true}
	}
	report, err := c.harvester.Harvest(ctx, c.opts.CaptureRoot)
	if err != nil {
		c.log.Error("harvest failed", zap.Error(err))
	}
	return report
}

// publish writes the metrics textfile and uploads the session artifacts.
func (c *Controller) publish(ctx context.Context, report harvest.Report) {
	var files []string
	if report.Path != "" {
		files = append(files, report.Path)
	}
	if c.metrics != nil && c.opts.MetricsFile != "" {
		if err := c.metrics.WriteTextfile(c.opts.MetricsFile); err != nil {
			c.log.Warn("failed to write metrics", zap.String("path", c.opts.MetricsFile), zap.Error(err))
		} else {
			files = append(files, c.opts.MetricsFile)
		}
	}
	if c.archiver == nil || len(files) == 0 {
		return
	}
	if err := c.archiver.Upload(ctx, files...); err != nil {
		c.log.Warn("archive upload failed", zap.Error(err))
	}
}

func names(nodes []*api.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}
