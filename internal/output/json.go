package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/vdishrink/internal/compact"
)

// JSONFormatter formats the run report as JSON.
type JSONFormatter struct{}

// FormatReport formats the run report as indented JSON.
func (f *JSONFormatter) FormatReport(report *compact.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
