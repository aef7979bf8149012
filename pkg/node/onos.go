package node

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"Testbed/api"

	"go.uber.org/zap"
)

// OnosConfig is how the ONOS REST API is reached.
type OnosConfig struct {
	User     string
	Password string
	Port     int
	Apps     []string
}

// Onos is the ControllerDriver for ONOS containers.
type Onos struct {
	*ContainerManager
	cfg  OnosConfig
	http *http.Client
}

func NewOnos(cm *ContainerManager, cfg OnosConfig) *Onos {
	return &Onos{
		ContainerManager: cm,
		cfg:              cfg,
		http:             &http.Client{Timeout: 30 * time.Second},
	}
}

func (o *Onos) Instantiate(ctx context.Context, n *api.Node, opts api.InstantiateOptions) error {
	if opts.NetworkMode == "" {
		opts.NetworkMode = "bridge"
	}
	return o.ContainerManager.Instantiate(ctx, n, opts)
}

// ActivateApplications activates every configured application with
//
//	POST http://<addr>:8181/onos/v1/applications/<app>/active
func (o *Onos) ActivateApplications(ctx context.Context, n *api.Node, managementAddr string) error {
	if managementAddr == "" {
		managementAddr = ManagementAddress(n)
	}
	if managementAddr == "" {
		return fmt.Errorf("controller %s has no management address", n.Name)
	}
	base := "http://" + net.JoinHostPort(managementAddr, strconv.Itoa(o.cfg.Port))
	for _, app := range o.cfg.Apps {
		if err := o.activate(ctx, base, app); err != nil {
			return fmt.Errorf("controller %s: %w", n.Name, err)
		}
		o.log.Info("controller application active", zap.String("node", n.Name), zap.String("app", app))
	}
	return nil
}

func (o *Onos) activate(ctx context.Context, base, app string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/onos/v1/applications/"+app+"/active", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(o.cfg.User, o.cfg.Password)
	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to activate %s: %w", app, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("failed to activate %s: %s: %s", app, resp.Status, body)
	}
	return nil
}
