package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig is the process-level configuration bound from the
// environment: where the static peer/workflow file and the sqlite
// database live, and a log level setting. LogLevel is parsed but not
// read by app.NewApplication, which takes the log level from the serve
// command's --debug flag.
type EnvConfig struct {
	ConfigPath string `env:"MUSTER_FABRIC_CONFIG_PATH" envDefault:"muster-fabric.yaml"`
	DBPath     string `env:"MUSTER_FABRIC_DB_PATH" envDefault:"muster-fabric.db"`
	LogLevel   string `env:"MUSTER_FABRIC_LOG_LEVEL" envDefault:"info"`
}

// LoadEnv binds EnvConfig from the process environment.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
