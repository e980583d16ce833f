package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dx-junkyard/plura/internal/pkg/utils"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

// Config holds process-level settings. Environment variables win over the
// optional YAML file named by PLURA_CONFIG; component-specific knobs
// (model names, cache TTLs, worker concurrency) stay env-only next to the
// component that reads them.
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`

	MetricsAddr string `yaml:"metrics_addr"`

	ReevaluateInterval time.Duration `yaml:"reevaluate_interval"`
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:               "8080",
		Environment:        "development",
		ReevaluateInterval: 24 * time.Hour,
	}

	if path := os.Getenv("PLURA_CONFIG"); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			log.Warn("config file load failed, continuing with env/defaults", "path", path, "error", err)
		} else {
			log.Info("config file loaded", "path", path)
		}
	}

	cfg.Port = utils.GetEnv("PORT", cfg.Port, log)
	cfg.Environment = utils.GetEnv("APP_ENV", cfg.Environment, log)
	cfg.Version = utils.GetEnv("APP_VERSION", cfg.Version, log)
	cfg.MetricsAddr = utils.GetEnv("METRICS_ADDR", cfg.MetricsAddr, log)
	cfg.ReevaluateInterval = utils.GetEnvAsDuration("REEVALUATE_INTERVAL", cfg.ReevaluateInterval, log)
	if cfg.ReevaluateInterval < time.Minute {
		cfg.ReevaluateInterval = time.Minute
	}
	return cfg
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}
