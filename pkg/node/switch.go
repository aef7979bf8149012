package node

import (
	"context"
	"fmt"
	"path"

	"Testbed/api"

	"go.uber.org/zap"
)

// CaptureDir is where a bridge container writes its packet captures; the
// host side of the bind mount is the bridge's capture directory.
const CaptureDir = "/home/pcap"

// Switch is the BridgeDriver: a container running Open vSwitch with one
// bridge named after the node.
type Switch struct {
	*ContainerManager
}

func NewSwitch(cm *ContainerManager) *Switch {
	return &Switch{ContainerManager: cm}
}

func (s *Switch) Instantiate(ctx context.Context, n *api.Node, opts api.InstantiateOptions) error {
	opts.Privileged = true
	if opts.NetworkMode == "" {
		opts.NetworkMode = "bridge"
	}
	if err := s.ContainerManager.Instantiate(ctx, n, opts); err != nil {
		return err
	}
	h, err := handleOf(n)
	if err != nil {
		return err
	}
	return s.om.CreateBridge(ctx, h.ID, n.Name)
}

func (s *Switch) SetController(ctx context.Context, n *api.Node, address string, port int) error {
	h, err := handleOf(n)
	if err != nil {
		return err
	}
	return s.om.SetController(ctx, h.ID, n.Name, fmt.Sprintf("tcp:%s:%d", address, port))
}

// StartCapture runs tcpdump in the background, leaving OpenFlow control
// traffic out of the capture.
func (s *Switch) StartCapture(ctx context.Context, n *api.Node) error {
	file := path.Join(CaptureDir, n.Name+".pcap")
	cmd := fmt.Sprintf("nohup tcpdump -U -i any -w %s 'not tcp port 6653' >/dev/null 2>&1 &", file)
	if err := s.Run(ctx, n, cmd); err != nil {
		return fmt.Errorf("failed to start capture on %s: %w", n.Name, err)
	}
	s.log.Info("capture started", zap.String("bridge", n.Name), zap.String("file", file))
	return nil
}

// StopCapture interrupts tcpdump so the capture file is flushed.
func (s *Switch) StopCapture(ctx context.Context, n *api.Node) error {
	if err := s.Run(ctx, n, "pkill -INT tcpdump || true"); err != nil {
		return fmt.Errorf("failed to stop capture on %s: %w", n.Name, err)
	}
	return nil
}

// Delete removes the OVS bridge while the container is still reachable, then
// the container itself. Only the container removal decides success.
func (s *Switch) Delete(ctx context.Context, n *api.Node) error {
	if h, err := handleOf(n); err == nil {
		if err := s.om.DeleteBridge(ctx, h.ID, n.Name); err != nil {
			s.log.Debug("bridge not deleted before container removal", zap.String("bridge", n.Name), zap.Error(err))
		}
	}
	return s.ContainerManager.Delete(ctx, n)
}
