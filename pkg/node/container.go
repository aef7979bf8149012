package node

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"Testbed/api"
	"Testbed/pkg/link"
	"Testbed/pkg/ovs"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"
)

const (
	DefaultNetworkMode = "none"
)

// containerHandle is the Node.Handle of every container-backed node.
type containerHandle struct {
	ID      string
	Pid     int
	Address string // address on the docker management network
}

func (h *containerHandle) netNs() string {
	return fmt.Sprintf("/proc/%d/ns/net", h.Pid)
}

func handleOf(n *api.Node) (*containerHandle, error) {
	h, ok := n.Handle.(*containerHandle)
	if !ok || h == nil {
		return nil, fmt.Errorf("node %s is not instantiated", n.Name)
	}
	return h, nil
}

// ManagementAddress returns the docker-assigned address of an instantiated
// node, or "" when unknown.
func ManagementAddress(n *api.Node) string {
	if h, err := handleOf(n); err == nil {
		return h.Address
	}
	return ""
}

// ContainerManager is the docker-backed Driver for hosts and clients and the
// base of the bridge, controller and converter drivers.
type ContainerManager struct {
	dClient *client.Client
	om      *ovs.OvsManager
	lm      *link.LinkManager
	log     *zap.Logger
}

func NewContainerManager(log *zap.Logger) (*ContainerManager, error) {
	dClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	cm := &ContainerManager{
		dClient: dClient,
		lm:      link.NewLinkManager(log),
		log:     log.Named("docker"),
	}
	cm.om = ovs.NewOvsManager(cm.execOutput)
	return cm, nil
}

func (cm *ContainerManager) Close() error {
	return cm.dClient.Close()
}

// Instantiate creates and starts the container named after the node and
// records its pid for namespace work.
func (cm *ContainerManager) Instantiate(ctx context.Context, n *api.Node, opts api.InstantiateOptions) error {
	mode := opts.NetworkMode
	if mode == "" {
		mode = DefaultNetworkMode
	}
	exposed, bindings, err := portMapping(opts.Ports)
	if err != nil {
		return err
	}

	created, err := cm.dClient.ContainerCreate(ctx, &container.Config{
		Image:        opts.Image,
		Cmd:          opts.Cmd,
		Tty:          true,
		User:         "root",
		ExposedPorts: exposed,
	}, &container.HostConfig{
		Privileged:   opts.Privileged,
		NetworkMode:  container.NetworkMode(mode),
		PortBindings: bindings,
		Binds:        opts.Binds,
		Sysctls:      map[string]string{"net.ipv4.ip_forward": "1"},
	}, nil, nil, n.Name)
	if err != nil {
		if errdefs.IsConflict(err) {
			// the name belongs to a container this session did not create
			return fmt.Errorf("container %s already exists: %w", n.Name, err)
		}
		// the daemon may still have created it under our name
		n.Handle = &containerHandle{}
		return fmt.Errorf("failed to create container %s: %w", n.Name, err)
	}
	n.Handle = &containerHandle{ID: created.ID}

	if err = cm.dClient.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", n.Name, err)
	}
	if err = cm.inspect(ctx, n); err != nil {
		return err
	}
	cm.log.Debug("container started", zap.String("node", n.Name), zap.String("image", opts.Image))
	return nil
}

func (cm *ContainerManager) inspect(ctx context.Context, n *api.Node) error {
	res, err := cm.dClient.ContainerInspect(ctx, n.Name)
	if err != nil {
		return fmt.Errorf("failed to inspect container %s: %w", n.Name, err)
	}
	h := &containerHandle{ID: res.ID}
	if res.State != nil {
		h.Pid = res.State.Pid
	}
	if res.NetworkSettings != nil {
		h.Address = res.NetworkSettings.IPAddress
	}
	n.Handle = h
	return nil
}

// Restart restarts the container; its pid changes, so the handle is refreshed.
func (cm *ContainerManager) Restart(ctx context.Context, n *api.Node) error {
	if err := cm.dClient.ContainerRestart(ctx, n.Name, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", n.Name, err)
	}
	return cm.inspect(ctx, n)
}

// Run executes command with sh -c inside the node and waits for it.
func (cm *ContainerManager) Run(ctx context.Context, n *api.Node, command string) error {
	h, err := handleOf(n)
	if err != nil {
		return err
	}
	_, err = cm.execOutput(ctx, h.ID, "sh", "-c", command)
	return err
}

func (cm *ContainerManager) execOutput(ctx context.Context, id string, cmd ...string) ([]byte, error) {
	created, err := cm.dClient.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exec %q: %w", strings.Join(cmd, " "), err)
	}
	attached, err := cm.dClient.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach exec %q: %w", strings.Join(cmd, " "), err)
	}
	defer attached.Close()

	var stdout, stderr bytes.Buffer
	if _, err = stdcopy.StdCopy(&stdout, &stderr, attached.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}
	res, err := cm.dClient.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}
	if res.ExitCode != 0 {
		return stdout.Bytes(), fmt.Errorf("%q exited with %d: %s", strings.Join(cmd, " "), res.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// CopyToContainer copies a local file or directory to remotePath, the way
// `docker cp` does.
func (cm *ContainerManager) CopyToContainer(ctx context.Context, n *api.Node, localPath, remotePath string) error {
	h, err := handleOf(n)
	if err != nil {
		return err
	}
	srcInfo, err := archive.CopyInfoSourcePath(localPath, true)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	srcArchive, err := archive.TarResource(srcInfo)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", localPath, err)
	}
	defer srcArchive.Close()

	dstInfo := archive.CopyInfo{Path: remotePath}
	if stat, err := cm.dClient.ContainerStatPath(ctx, h.ID, remotePath); err == nil {
		dstInfo.Exists = true
		dstInfo.IsDir = stat.Mode.IsDir()
	}
	dstDir, content, err := archive.PrepareArchiveCopy(srcArchive, srcInfo, dstInfo)
	if err != nil {
		return fmt.Errorf("failed to prepare copy to %s:%s: %w", n.Name, remotePath, err)
	}
	defer content.Close()

	if err = cm.dClient.CopyToContainer(ctx, h.ID, dstDir, content, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy %s to %s:%s: %w", localPath, n.Name, remotePath, err)
	}
	return nil
}

func (cm *ContainerManager) CopyFromContainer(ctx context.Context, n *api.Node, remotePath, localPath string) error {
	h, err := handleOf(n)
	if err != nil {
		return err
	}
	content, stat, err := cm.dClient.CopyFromContainer(ctx, h.ID, remotePath)
	if err != nil {
		return fmt.Errorf("failed to copy %s:%s: %w", n.Name, remotePath, err)
	}
	defer content.Close()

	srcInfo := archive.CopyInfo{Path: remotePath, Exists: true, IsDir: stat.Mode.IsDir()}
	if err = archive.CopyTo(content, srcInfo, localPath); err != nil {
		return fmt.Errorf("failed to extract %s:%s to %s: %w", n.Name, remotePath, localPath, err)
	}
	return nil
}

// removeTarget names the container Delete removes: the recorded ID, the node
// name when creation failed ambiguously, nothing when it was never created.
func removeTarget(n *api.Node) (string, bool) {
	h, ok := n.Handle.(*containerHandle)
	if !ok || h == nil {
		return "", false
	}
	if h.ID != "" {
		return h.ID, true
	}
	return n.Name, true
}

// Delete force-removes the container. A container that does not exist, or
// was never created by this session, counts as deleted.
func (cm *ContainerManager) Delete(ctx context.Context, n *api.Node) error {
	target, ok := removeTarget(n)
	if !ok {
		return nil
	}
	err := cm.dClient.ContainerRemove(ctx, target, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return err
	}
	n.Handle = nil
	return nil
}

func portMapping(ports map[string]string) (nat.PortSet, nat.PortMap, error) {
	if len(ports) == 0 {
		return nil, nil, nil
	}
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range ports {
		proto := "tcp"
		if p, pr, ok := strings.Cut(containerPort, "/"); ok {
			containerPort, proto = p, pr
		}
		port, err := nat.NewPort(proto, containerPort)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid port %s: %w", containerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: hostPort}}
	}
	return exposed, bindings, nil
}
