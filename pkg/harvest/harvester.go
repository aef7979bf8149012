// Package harvest turns the raw packet captures of a finished session into a
// single labeled flow report.
package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"Testbed/pkg/errs"
	"Testbed/pkg/metrics"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultReportName = "final_report.csv"
	convertedDir      = "csv"
)

// Converter turns capture files into flow CSVs. One session converts a whole
// batch: Instantiate once, Analyze per file, Delete once.
type Converter interface {
	Instantiate(ctx context.Context) error
	Analyze(ctx context.Context, inputPath, outputDir string) (string, error)
	Delete(ctx context.Context) error
}

type Options struct {
	// Bridges whose capture directories are harvested. Empty means every
	// directory under the capture root.
	Bridges      []string
	HeaderMarker string
	ReportName   string
}

// Report describes one harvest.
type Report struct {
	Path      string
	NoData    bool
	Captures  int
	Converted int
	Rows      int
	// Failures holds a ConversionError per capture that could not be
	// converted or read back.
	Failures []error
}

type Harvester struct {
	conv    Converter
	opts    Options
	metrics *metrics.Collector
	log     *zap.Logger
}

func NewHarvester(conv Converter, opts Options, m *metrics.Collector, log *zap.Logger) *Harvester {
	if opts.ReportName == "" {
		opts.ReportName = DefaultReportName
	}
	return &Harvester{conv: conv, opts: opts, metrics: m, log: log.Named("harvest")}
}

// Captures lists raw capture files under root, bridge by bridge, sorted by
// name within each bridge directory.
func (h *Harvester) Captures(root string) ([]string, error) {
	dirs := h.opts.Bridges
	if len(dirs) == 0 {
		entries, err := os.ReadDir(root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() && e.Name() != convertedDir && e.Name() != "logs" {
				dirs = append(dirs, e.Name())
			}
		}
	}

	var captures []string
	for _, d := range dirs {
		entries, err := os.ReadDir(filepath.Join(root, d))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		var found []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".pcap" || ext == ".pcapng") {
				found = append(found, filepath.Join(root, d, e.Name()))
			}
		}
		slices.Sort(found)
		captures = append(captures, found...)
	}
	return captures, nil
}

// Harvest converts every capture under root in one converter session, merges
// the outputs into root/<report name> and removes the per-file outputs.
// A capture that fails to convert is recorded in Report.Failures and the
// rest are still merged. The returned error is only set when nothing could be
// salvaged because of the converter or the filesystem.
func (h *Harvester) Harvest(ctx context.Context, root string) (Report, error) {
	captures, err := h.Captures(root)
	if err != nil {
		return Report{}, fmt.Errorf("list captures under %s: %w", root, err)
	}
	h.metrics.CapturesFound(len(captures))
	if len(captures) == 0 {
		h.log.Info("no capture files, nothing to harvest", zap.String("root", root))
		return Report{NoData: true}, nil
	}

	report := Report{Captures: len(captures)}
	outDir := filepath.Join(root, convertedDir)

	if err = h.conv.Instantiate(ctx); err != nil {
		// the converter may be half created
		if derr := h.conv.Delete(ctx); derr != nil {
			h.log.Warn("converter cleanup failed", zap.Error(derr))
		}
		return report, fmt.Errorf("start converter: %w", err)
	}
	var outputs []string
	for _, c := range captures {
		// captures of different bridges may share a base name
		out, err := h.conv.Analyze(ctx, c, filepath.Join(outDir, filepath.Base(filepath.Dir(c))))
		if err != nil {
			report.Failures = append(report.Failures, &errs.ConversionError{File: c, Err: err})
			h.metrics.ConversionFailed()
			continue
		}
		outputs = append(outputs, out)
	}
	if err = h.conv.Delete(ctx); err != nil {
		h.log.Warn("converter not deleted", zap.Error(err))
	}

	contents := make([]string, 0, len(outputs))
	for _, out := range outputs {
		data, err := os.ReadFile(out)
		if err != nil {
			report.Failures = append(report.Failures, &errs.ConversionError{File: out, Err: err})
			h.metrics.ConversionFailed()
			continue
		}
		contents = append(contents, string(data))
	}
	report.Converted = len(contents)

	if len(report.Failures) > 0 {
		h.log.Warn("some captures were not converted",
			zap.Int("failed", len(report.Failures)),
			zap.Int("captures", len(captures)),
			zap.Error(multierr.Combine(report.Failures...)))
	}
	if len(contents) == 0 {
		return report, nil
	}

	merged := Merge(h.opts.HeaderMarker, contents...)
	report.Rows = len(ParseRecord(merged).Rows)
	report.Path = filepath.Join(root, h.opts.ReportName)
	if err = os.WriteFile(report.Path, []byte(merged), 0o644); err != nil {
		return report, fmt.Errorf("write %s: %w", report.Path, err)
	}
	h.metrics.ReportWritten(report.Rows)

	if err = os.RemoveAll(outDir); err != nil {
		h.log.Debug("intermediate outputs not removed", zap.String("dir", outDir), zap.Error(err))
	}

	h.log.Info("flow report written",
		zap.String("path", report.Path),
		zap.Int("captures", report.Captures),
		zap.Int("rows", report.Rows))
	return report, nil
}
