package daemon

import (
	"fmt"
	"slices"
	"time"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
)

// daemonConfig implements the Config interface
type daemonConfig struct {
	interval       time.Duration
	httpPort       int
	metricsEnabled bool
	serverless     bool
	region         string
	instances      []string
}

// NewDaemonConfig creates a new daemon configuration
func NewDaemonConfig(cfg *config.Config, daemonCfg *DaemonConfig) Config {
	return &daemonConfig{
		interval:       daemonCfg.Interval,
		httpPort:       daemonCfg.HTTPPort,
		metricsEnabled: daemonCfg.EnableMetrics,
		serverless:     daemonCfg.Serverless,
		region:         cfg.Region,
		instances:      slices.Clone(cfg.Instances),
	}
}

// GetInterval returns the time between advisory cycles
func (c *daemonConfig) GetInterval() time.Duration {
	return c.interval
}

// GetHTTPPort returns the HTTP server port
func (c *daemonConfig) GetHTTPPort() int {
	return c.httpPort
}

// IsMetricsEnabled returns whether metrics are enabled
func (c *daemonConfig) IsMetricsEnabled() bool {
	return c.metricsEnabled
}

// IsServerlessEnabled returns whether each cycle also runs serverless estimates
func (c *daemonConfig) IsServerlessEnabled() bool {
	return c.serverless
}

// GetRegion returns the AWS region of the evaluated instances
func (c *daemonConfig) GetRegion() string {
	return c.region
}

// GetInstances returns the instances evaluated each cycle
func (c *daemonConfig) GetInstances() []string {
	return slices.Clone(c.instances)
}

// validateConfig validates daemon configuration
func validateConfig(cfg *config.Config, daemonCfg *DaemonConfig) error {
	if cfg == nil || daemonCfg == nil {
		return NewDaemonError("validate", "config", ErrInvalidConfig)
	}

	if len(cfg.Instances) == 0 {
		return NewDaemonError("validate", "config", fmt.Errorf("%w: no instances configured", ErrInvalidConfig))
	}

	if daemonCfg.Interval <= 0 {
		return NewDaemonError("validate", "config", fmt.Errorf("%w: interval must be positive", ErrInvalidConfig))
	}

	if daemonCfg.HTTPPort < 1 || daemonCfg.HTTPPort > 65535 {
		return NewDaemonError("validate", "config", fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, daemonCfg.HTTPPort))
	}

	if err := cfg.Validate(); err != nil {
		return NewDaemonError("validate", "config", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	return nil
}
