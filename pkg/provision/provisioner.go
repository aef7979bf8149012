// Package provision pushes per-role configuration onto networked clients.
package provision

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"strings"

	"Testbed/api"
	"Testbed/pkg/errs"
	"Testbed/pkg/node"
	"Testbed/pkg/util"

	"go.uber.org/zap"
)

type Artifact string

const (
	Scripts       Artifact = "scripts"
	PrinterIP     Artifact = "printerIp"
	SSHList       Artifact = "sshList"
	Behavior      Artifact = "behavior"
	ServerConfig  Artifact = "serverConfig"
	Port80Targets Artifact = "port80Targets"
	AllTargets    Artifact = "allTargets"
	AddressRange  Artifact = "addressRange"
)

// Artifacts is the fixed set pushed to every client, in push order.
var Artifacts = []Artifact{
	Scripts, PrinterIP, SSHList, Behavior, ServerConfig, Port80Targets, AllTargets, AddressRange,
}

// Destinations maps every artifact to its path inside a client whose home
// directory is home.
func Destinations(home string) map[Artifact]string {
	return map[Artifact]string{
		Scripts:       path.Join(home, "automation"),
		PrinterIP:     path.Join(home, "printerip"),
		SSHList:       path.Join(home, "sshiplist.ini"),
		Behavior:      path.Join(home, "config.ini"),
		ServerConfig:  path.Join(home, "serverconfig.ini"),
		Port80Targets: path.Join(home, "ipListPort80.txt"),
		AllTargets:    path.Join(home, "ipList.txt"),
		AddressRange:  path.Join(home, "iprange.txt"),
	}
}

const (
	VariantInternal = "internal"
	VariantExternal = "external"
)

// Provisioner resolves artifacts from a configuration directory laid out as
//
//	automation/                      script bundle
//	printers/<third octet>           printer address per subnet
//	sshiplist.ini
//	profiles/<profile>.ini           behaviour profiles
//	serverconfig.ini
//	attack/{internal,external}/{ipListPort80.txt,ipList.txt,iprange.txt}
type Provisioner struct {
	configDir    string
	home         string
	external     netip.Prefix
	destinations map[Artifact]string
	drivers      node.Set
	log          *zap.Logger
}

func NewProvisioner(configDir, home string, external netip.Prefix, drivers node.Set, log *zap.Logger) *Provisioner {
	return &Provisioner{
		configDir:    configDir,
		home:         home,
		external:     external.Masked(),
		destinations: Destinations(home),
		drivers:      drivers,
		log:          log.Named("provision"),
	}
}

// Variant selects the target lists: external only for the external subnet.
func (p *Provisioner) Variant(subnet netip.Prefix) string {
	if subnet.Masked() == p.external {
		return VariantExternal
	}
	return VariantInternal
}

// Sources resolves the local file of every artifact for a client in subnet
// running profile.
func (p *Provisioner) Sources(subnet netip.Prefix, profile string) map[Artifact]string {
	attack := filepath.Join(p.configDir, "attack", p.Variant(subnet))
	return map[Artifact]string{
		Scripts:       filepath.Join(p.configDir, "automation"),
		PrinterIP:     filepath.Join(p.configDir, "printers", util.ThirdOctet(subnet)),
		SSHList:       filepath.Join(p.configDir, "sshiplist.ini"),
		Behavior:      filepath.Join(p.configDir, "profiles", profile+".ini"),
		ServerConfig:  filepath.Join(p.configDir, "serverconfig.ini"),
		Port80Targets: filepath.Join(attack, "ipListPort80.txt"),
		AllTargets:    filepath.Join(attack, "ipList.txt"),
		AddressRange:  filepath.Join(attack, "iprange.txt"),
	}
}

// ProvisionClient pushes every artifact onto n. The first failure stops the
// push and is returned as a ConfigPushError; nothing is retried.
func (p *Provisioner) ProvisionClient(ctx context.Context, n *api.Node, subnet netip.Prefix, profile string) error {
	if profile == "" || strings.ContainsAny(profile, `/\`) {
		return &errs.ConfigPushError{Node: n.Name, Artifact: string(Behavior), Err: fmt.Errorf("invalid behaviour profile %q", profile)}
	}
	d, err := p.drivers.For(n.Role)
	if err != nil {
		return &errs.ConfigPushError{Node: n.Name, Artifact: "driver", Err: err}
	}

	sources := p.Sources(subnet, profile)
	for _, a := range Artifacts {
		src, dst := sources[a], p.destinations[a]
		if _, err = os.Stat(src); err != nil {
			return &errs.ConfigPushError{Node: n.Name, Artifact: string(a), Err: err}
		}
		if err = d.CopyToContainer(ctx, n, src, dst); err != nil {
			return &errs.ConfigPushError{Node: n.Name, Artifact: string(a), Err: err}
		}
	}

	p.log.Info("client provisioned",
		zap.String("node", n.Name),
		zap.String("profile", profile),
		zap.String("variant", p.Variant(subnet)))
	return nil
}

// LogPath is where a client writes its diagnostic log.
func (p *Provisioner) LogPath() string {
	return path.Join(p.home, "log.txt")
}
