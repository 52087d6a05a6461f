package ids

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
)

// Load builds a Resolver from <dataDir>/default and <dataDir>/custom, custom
// entries overriding defaults. Missing files are skipped; the built-in
// SmartClim characteristic names are always present.
func Load(dataDir, customDir string) (*Resolver, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	defaultDir := filepath.Join(dataDir, "default")
	if customDir == "" {
		customDir = filepath.Join(dataDir, "custom")
	} else if _, err := os.Stat(customDir); err != nil {
		return nil, fmt.Errorf("custom data dir not accessible: %w", err)
	}

	res := newResolver()
	for _, dir := range []string{defaultDir, customDir} {
		if m, err := LoadOUI(filepath.Join(dir, "oui.csv")); err == nil {
			maps.Copy(res.vendors, m)
		}
		if m, err := LoadUUIDYaml(filepath.Join(dir, "characteristic_uuids.yaml")); err == nil {
			maps.Copy(res.charNames, m)
		}
	}
	return res, nil
}
