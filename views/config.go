package views

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk bootstrap configuration: a column mapping per
// view. Views added or changed at runtime are persisted to the DB instead;
// the file only seeds a fresh deployment.
type FileConfig struct {
	Views map[string]Config `yaml:"views"`
}

// LoadConfigFile parses a YAML view-mapping file and validates every entry.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read view config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse view config: %w", err)
	}
	for viewID, cfg := range fc.Views {
		if err := cfg.Validate(); err != nil {
			return fc, fmt.Errorf("view %q: %w", viewID, err)
		}
	}
	return fc, nil
}
