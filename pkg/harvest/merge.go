package harvest

import "strings"

// DefaultHeaderMarker identifies the header row CICFlowMeter writes at the top
// of every converted file.
const DefaultHeaderMarker = "Flow ID"

// CaptureRecord is converted flow data: one header and its data rows.
type CaptureRecord struct {
	Header string
	Rows   []string
}

// Merge concatenates converted reports in order. The first line becomes the
// canonical header; later lines that are headers themselves are dropped.
// A line is a header when it equals the canonical header or contains marker.
// Blank lines are dropped.
//
//	Merge("FlowID", "FlowID,Dur\nA,1\n", "FlowID,Dur\nB,2\n") == "FlowID,Dur\nA,1\nB,2"
func Merge(marker string, reports ...string) string {
	var (
		out    []string
		header string
	)
	for _, report := range reports {
		for _, line := range strings.Split(report, "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}
			if out == nil {
				header = line
				out = append(out, line)
				continue
			}
			if isHeader(line, header, marker) {
				continue
			}
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func isHeader(line, header, marker string) bool {
	return line == header || (marker != "" && strings.Contains(line, marker))
}

// ParseRecord splits a merged report into its header and data rows.
func ParseRecord(merged string) CaptureRecord {
	var rec CaptureRecord
	for _, line := range strings.Split(merged, "\n") {
		if line == "" {
			continue
		}
		if rec.Header == "" {
			rec.Header = line
			continue
		}
		rec.Rows = append(rec.Rows, line)
	}
	return rec
}
