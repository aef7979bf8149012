package node

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"Testbed/api"

	"go.uber.org/zap"
)

const converterMount = "/data"

// FlowMeter runs CICFlowMeter in a throwaway container that sees the capture
// root at /data. Converted files are named <capture>_Flow.csv.
type FlowMeter struct {
	cm    *ContainerManager
	image string
	root  string
	node  *api.Node
}

func NewFlowMeter(cm *ContainerManager, image, captureRoot string) *FlowMeter {
	return &FlowMeter{cm: cm, image: image, root: captureRoot}
}

func (f *FlowMeter) Instantiate(ctx context.Context) error {
	root, err := filepath.Abs(f.root)
	if err != nil {
		return err
	}
	f.node = api.NewNode("flowmeter", api.RoleAuxiliary)
	return f.cm.Instantiate(ctx, f.node, api.InstantiateOptions{
		Image: f.image,
		Binds: []string{root + ":" + converterMount},
		Cmd:   []string{"sleep", "infinity"},
	})
}

// Analyze converts one capture file and returns the host path of the CSV.
func (f *FlowMeter) Analyze(ctx context.Context, inputPath, outputDir string) (string, error) {
	if f.node == nil {
		return "", fmt.Errorf("converter is not instantiated")
	}
	in, err := f.containerPath(inputPath)
	if err != nil {
		return "", err
	}
	out, err := f.containerPath(outputDir)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	if err = f.cm.Run(ctx, f.node, fmt.Sprintf("cfm %s %s", in, out)); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	produced := filepath.Join(outputDir, base+"_Flow.csv")
	if _, err = os.Stat(produced); err != nil {
		return "", fmt.Errorf("converter produced no output: %w", err)
	}
	f.cm.log.Debug("capture converted", zap.String("capture", inputPath), zap.String("csv", produced))
	return produced, nil
}

func (f *FlowMeter) Delete(ctx context.Context) error {
	if f.node == nil {
		return nil
	}
	if err := f.cm.Delete(ctx, f.node); err != nil {
		return err
	}
	f.node = nil
	return nil
}

func (f *FlowMeter) containerPath(hostPath string) (string, error) {
	root, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the capture root %s", hostPath, f.root)
	}
	return path.Join(converterMount, filepath.ToSlash(rel)), nil
}
