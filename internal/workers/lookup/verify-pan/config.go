package verifypan

import (
	"fmt"
	"time"

	"customer-manager/internal/common/config"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       15 * time.Second,
	}
}

// ConfigFrom builds the worker config from the application's workers section.
func ConfigFrom(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, TaskType)
	out := DefaultConfig()
	out.Enabled = wc.Enabled
	if wc.MaxJobsActive > 0 {
		out.MaxJobsActive = wc.MaxJobsActive
	}
	if wc.Timeout > 0 {
		out.Timeout = config.GetDuration(wc.Timeout)
	}
	return out
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}
