package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/jbweber/vdishrink/internal/compact"
)

// TableFormatter formats the run report as a human-readable table.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatReport formats the run report as a table plus a summary line.
func (f *TableFormatter) FormatReport(report *compact.Report) (string, error) {
	if len(report.Disks) == 0 {
		return "No disks found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "VM\tDISK\tSTATUS\tFREED\tDETAIL")
	}

	for _, d := range report.Disks {
		freed := "-"
		if d.Status == compact.StatusCompacted {
			freed = formatBytes(d.Freed())
		}
		detail := d.Reason
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.VM, d.Disk, d.Status, freed, detail)
	}

	_ = w.Flush()

	if report.DryRun {
		_, _ = fmt.Fprintf(&buf, "\nDry run: %d disk(s) would be compacted, nothing was changed\n",
			report.Planned)
		return buf.String(), nil
	}

	_, _ = fmt.Fprintf(&buf, "\n%d compacted, %d skipped, %d failed, %s freed\n",
		report.Compacted, report.Skipped, report.Failed, formatBytes(report.BytesFreed))
	return buf.String(), nil
}

// formatBytes formats a byte count with a binary unit.
// Examples: "512 B", "4.0 KiB", "1.5 GiB"
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
