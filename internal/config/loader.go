package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/muster-fabric/internal/obslog"
)

// LoadStatic reads the YAML file at path into a StaticConfig. A
// missing file is not an error: the fabric starts with an empty
// registry and no seed workflows.
func LoadStatic(path string) (StaticConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			obslog.Info("config", "no static config found at %s, starting empty", path)
			return StaticConfig{}, nil
		}
		return StaticConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg StaticConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return StaticConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
