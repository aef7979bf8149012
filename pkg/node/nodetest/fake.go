// Package nodetest provides in-memory drivers for tests.
package nodetest

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"Testbed/api"
)

// FakeDriver records every call and fails the ones listed in Fail, keyed
// "<op>:<node>" (e.g. "instantiate:c1", "copy:office1:/home/debian/printerip").
type FakeDriver struct {
	mu    sync.Mutex
	Fail  map[string]error
	Calls []string

	live    map[string]bool
	deletes map[string]int
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Fail:    make(map[string]error),
		live:    make(map[string]bool),
		deletes: make(map[string]int),
	}
}

func (f *FakeDriver) record(key, call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
	return f.Fail[key]
}

// CallsWithPrefix returns the recorded calls starting with prefix.
func (f *FakeDriver) CallsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Deletes returns how many times Delete was called for name.
func (f *FakeDriver) Deletes(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes[name]
}

// TotalDeletes counts every Delete call.
func (f *FakeDriver) TotalDeletes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.deletes {
		total += c
	}
	return total
}

// Live reports whether name was instantiated and not deleted since.
func (f *FakeDriver) Live(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[name]
}

func (f *FakeDriver) Instantiate(_ context.Context, n *api.Node, opts api.InstantiateOptions) error {
	if err := f.record("instantiate:"+n.Name, fmt.Sprintf("instantiate %s %s", n.Name, opts.Image)); err != nil {
		return err
	}
	f.mu.Lock()
	f.live[n.Name] = true
	f.mu.Unlock()
	n.Handle = n.Name
	return nil
}

func (f *FakeDriver) Connect(_ context.Context, n, peer *api.Node, localIf, peerIf string) error {
	if err := f.record("connect:"+n.Name, fmt.Sprintf("connect %s %s %s %s", n.Name, peer.Name, localIf, peerIf)); err != nil {
		return err
	}
	n.Interfaces = append(n.Interfaces, api.NodeInterface{Local: localIf, Peer: peerIf, PeerNode: peer.Name})
	peer.Interfaces = append(peer.Interfaces, api.NodeInterface{Local: peerIf, Peer: localIf, PeerNode: n.Name})
	return nil
}

func (f *FakeDriver) SetIP(_ context.Context, n *api.Node, addr netip.Addr, prefixLen int, ifName string) error {
	return f.record("setip:"+n.Name, fmt.Sprintf("setip %s %s/%d %s", n.Name, addr, prefixLen, ifName))
}

func (f *FakeDriver) AddRoute(_ context.Context, n *api.Node, dst netip.Prefix, ifName string) error {
	return f.record("route:"+n.Name, fmt.Sprintf("route %s %s %s", n.Name, dst, ifName))
}

func (f *FakeDriver) CopyToContainer(_ context.Context, n *api.Node, localPath, remotePath string) error {
	return f.record("copy:"+n.Name+":"+remotePath, fmt.Sprintf("copy %s %s %s", n.Name, localPath, remotePath))
}

// CopyFromContainer writes a small file at localPath so callers can observe
// the transfer.
func (f *FakeDriver) CopyFromContainer(_ context.Context, n *api.Node, remotePath, localPath string) error {
	if err := f.record("fetch:"+n.Name, fmt.Sprintf("fetch %s %s %s", n.Name, remotePath, localPath)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte(n.Name+"\n"), 0o644)
}

func (f *FakeDriver) Run(_ context.Context, n *api.Node, command string) error {
	return f.record("run:"+n.Name, fmt.Sprintf("run %s %s", n.Name, command))
}

// Delete is idempotent, as the real drivers are.
func (f *FakeDriver) Delete(_ context.Context, n *api.Node) error {
	f.mu.Lock()
	f.deletes[n.Name]++
	f.mu.Unlock()
	if err := f.record("delete:"+n.Name, "delete "+n.Name); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.live, n.Name)
	f.mu.Unlock()
	n.Handle = nil
	return nil
}

func (f *FakeDriver) SetController(_ context.Context, n *api.Node, address string, port int) error {
	return f.record("setcontroller:"+n.Name, fmt.Sprintf("setcontroller %s %s:%d", n.Name, address, port))
}

func (f *FakeDriver) StartCapture(_ context.Context, n *api.Node) error {
	return f.record("startcapture:"+n.Name, "startcapture "+n.Name)
}

func (f *FakeDriver) StopCapture(_ context.Context, n *api.Node) error {
	return f.record("stopcapture:"+n.Name, "stopcapture "+n.Name)
}

func (f *FakeDriver) Restart(_ context.Context, n *api.Node) error {
	return f.record("restart:"+n.Name, "restart "+n.Name)
}

func (f *FakeDriver) ActivateApplications(_ context.Context, n *api.Node, managementAddr string) error {
	return f.record("activate:"+n.Name, fmt.Sprintf("activate %s %s", n.Name, managementAddr))
}

func (f *FakeDriver) Shape(_ context.Context, n *api.Node, ifName string, p api.LinkProperties) error {
	return f.record("shape:"+n.Name, fmt.Sprintf("shape %s %s %dms", n.Name, ifName, p.Latency))
}

// FakeConverter writes Outputs["<bridge dir>/<capture>"], or else
// Outputs[<capture>], as the converted CSV, or fails with Fail[<capture>].
type FakeConverter struct {
	mu      sync.Mutex
	Outputs map[string]string
	Fail    map[string]error

	Instantiated int
	Analyzed     []string
	Deleted      int
}

func NewFakeConverter() *FakeConverter {
	return &FakeConverter{Outputs: make(map[string]string), Fail: make(map[string]error)}
}

func (c *FakeConverter) Instantiate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Instantiated++
	return nil
}

func (c *FakeConverter) Analyze(_ context.Context, inputPath, outputDir string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := filepath.Base(inputPath)
	c.Analyzed = append(c.Analyzed, base)
	if err := c.Fail[base]; err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base))+"_Flow.csv")
	content, ok := c.Outputs[filepath.Base(filepath.Dir(inputPath))+"/"+base]
	if !ok {
		content = c.Outputs[base]
	}
	return out, os.WriteFile(out, []byte(content), 0o644)
}

func (c *FakeConverter) Delete(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deleted++
	return nil
}

// Counts returns instantiate/analyze/delete call counts.
func (c *FakeConverter) Counts() (instantiated, analyzed, deleted int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Instantiated, len(c.Analyzed), c.Deleted
}
