package optimizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/foodbank-alloc/fbdam/api/v1alpha1"
)

// ReportFile is the path WriteReport uses for r under dir.
func ReportFile(dir string, r *v1alpha1.RunReport) string {
	return filepath.Join(dir, r.Name+".json")
}

// WriteReport writes r as indented JSON under dir and returns the file path.
func WriteReport(dir string, r *v1alpha1.RunReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run %s: %w", r.Name, err)
	}
	path := ReportFile(dir, r)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write run %s: %w", r.Name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write run %s: %w", r.Name, err)
	}
	return path, nil
}
