package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/safefeat/safefeat/pkg/audit"
)

// WriteReport writes an audit report as indented JSON.
func WriteReport(path string, report *audit.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode audit report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write audit report: %w", err)
	}
	return nil
}
