package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/vdishrink/internal/compact"
)

// YAMLFormatter formats the run report as YAML.
type YAMLFormatter struct{}

// FormatReport formats the run report as a YAML document.
func (f *YAMLFormatter) FormatReport(report *compact.Report) (string, error) {
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to YAML: %w", err)
	}

	return string(data), nil
}
