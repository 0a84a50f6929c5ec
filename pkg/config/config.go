package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Basis selects which summary of a demand series is compared against capacity.
type Basis string

const (
	BasisMax      Basis = "max"
	BasisTwoSigma Basis = "2sd"
)

// Role is the replication role of a cluster member.
type Role string

const (
	RoleWriter Role = "writer"
	RoleReader Role = "reader"
)

// Config holds the configuration for an evaluation
type Config struct {
	Region    string   `yaml:"region"`
	Instances []string `yaml:"instances"`

	// Evaluation window
	Window time.Duration `yaml:"window"`
	End    time.Time     `yaml:"end"`    // Zero means now
	Period time.Duration `yaml:"period"` // Sample granularity

	// Sizing
	ReservePct    float64 `yaml:"reserve_pct"` // Headroom added to every demand figure
	Basis         Basis   `yaml:"basis"`
	TopCandidates int     `yaml:"top_candidates"`

	// Workload characterization
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	TopContributors      int     `yaml:"top_contributors"`

	// Serverless estimation
	OtherMemoryAllocationsPct float64 `yaml:"other_memory_allocations_pct"`
	EffectivePeriod           int     `yaml:"effective_period"`
	HysteresisLimit           int     `yaml:"hysteresis_limit"`
	MaxACU                    float64 `yaml:"max_acu"`

	// Collaborator limits
	MetricBatchSize     int `yaml:"metric_batch_size"`
	AggregatedBatchSize int `yaml:"aggregated_batch_size"`

	// Price cache
	PriceCacheDir string        `yaml:"price_cache_dir"`
	PriceMaxAge   time.Duration `yaml:"price_max_age"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Window:                    7 * 24 * time.Hour, // 7 days
		Period:                    time.Minute,        // 1 minute granularity
		ReservePct:                15,
		Basis:                     BasisMax,
		TopCandidates:             3,
		CorrelationThreshold:      0.9,
		TopContributors:           10,
		OtherMemoryAllocationsPct: 25,
		EffectivePeriod:           5,
		HysteresisLimit:           9,
		MaxACU:                    256,
		MetricBatchSize:           15,  // Performance Insights query limit
		AggregatedBatchSize:       500, // CloudWatch GetMetricData query limit
		PriceCacheDir:             defaultPriceCacheDir(),
		PriceMaxAge:               7 * 24 * time.Hour,
	}
}

func defaultPriceCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "aurora-advisor", "pricing")
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyProfile adjusts sizing behavior to a named profile
func (c *Config) ApplyProfile(profile string) error {
	switch profile {
	case "", "default":
		// Balanced: max basis with the default reserve
	case "conservative":
		// More headroom and a longer look-back
		c.ReservePct = 25
		c.Basis = BasisMax
		c.Window = 14 * 24 * time.Hour
	case "aggressive":
		// Tighter fit against the noise-tolerant upper bound
		c.ReservePct = 10
		c.Basis = BasisTwoSigma
		c.Window = 7 * 24 * time.Hour
	default:
		return fmt.Errorf("unknown profile: %s", profile)
	}
	return nil
}

// validPeriods are the sample granularities Performance Insights accepts.
var validPeriods = map[time.Duration]bool{
	time.Second:     true,
	time.Minute:     true,
	5 * time.Minute: true,
	time.Hour:       true,
	24 * time.Hour:  true,
}

// Validate rejects configurations no evaluation could run with
func (c *Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if !validPeriods[c.Period] {
		return fmt.Errorf("period %s not supported (use 1s, 1m, 5m, 1h or 24h)", c.Period)
	}
	if c.Window < c.Period {
		return fmt.Errorf("window %s is shorter than period %s", c.Window, c.Period)
	}
	if c.ReservePct < 0 || c.ReservePct >= 100 {
		return fmt.Errorf("reserve must be in [0, 100), got %.1f", c.ReservePct)
	}
	if c.Basis != BasisMax && c.Basis != BasisTwoSigma {
		return fmt.Errorf("basis must be %q or %q, got %q", BasisMax, BasisTwoSigma, c.Basis)
	}
	if c.TopCandidates < 1 {
		return fmt.Errorf("top candidates must be at least 1")
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation threshold must be in (0, 1], got %.2f", c.CorrelationThreshold)
	}
	if c.OtherMemoryAllocationsPct < 0 || c.OtherMemoryAllocationsPct >= 100 {
		return fmt.Errorf("other memory allocations must be in [0, 100), got %.1f", c.OtherMemoryAllocationsPct)
	}
	if c.EffectivePeriod < 1 {
		return fmt.Errorf("effective period must be at least 1")
	}
	if c.HysteresisLimit < 0 {
		return fmt.Errorf("hysteresis limit must not be negative")
	}
	if c.MaxACU < 0.5 || c.MaxACU > 256 {
		return fmt.Errorf("max ACU must be in [0.5, 256], got %.1f", c.MaxACU)
	}
	if c.MetricBatchSize < 1 || c.MetricBatchSize > 15 {
		return fmt.Errorf("metric batch size must be in [1, 15], got %d", c.MetricBatchSize)
	}
	if c.AggregatedBatchSize < 1 || c.AggregatedBatchSize > 500 {
		return fmt.Errorf("aggregated batch size must be in [1, 500], got %d", c.AggregatedBatchSize)
	}
	if c.TopContributors < 1 {
		return fmt.Errorf("top contributors must be at least 1")
	}
	if c.PriceMaxAge <= 0 {
		return fmt.Errorf("price max age must be positive")
	}
	return nil
}

// InflationFactor is the multiplier applied to demand figures for the configured reserve
func (c *Config) InflationFactor() float64 {
	return 1 + c.ReservePct/100
}

// TimeRange resolves the evaluation window against now
func (c *Config) TimeRange(now time.Time) (start, end time.Time) {
	end = c.End
	if end.IsZero() {
		end = now
	}
	end = end.Truncate(c.Period)
	return end.Add(-c.Window), end
}

// InstanceInfo holds information about an Aurora cluster member
type InstanceInfo struct {
	ID             string `json:"id"`
	ResourceID     string `json:"resource_id"` // dbi- resource id used by Performance Insights
	ClusterID      string `json:"cluster_id"`
	Class          string `json:"class"`
	Engine         string `json:"engine"`
	EngineVersion  string `json:"engine_version"`
	Region         string `json:"region"`
	Role           Role   `json:"role"`
	WriterID       string `json:"writer_id,omitempty"` // Writer of the cluster; equals ID for the writer itself
	OtherInstances int    `json:"other_instances"`     // Cluster members besides this one
	RemoteClusters int    `json:"remote_clusters"`     // Secondary clusters of the global database
	StorageType    string `json:"storage_type"`        // "aurora" or "aurora-iopt1"
	ParameterGroup string `json:"parameter_group"`
	Serverless     bool   `json:"serverless"`
	PIEnabled      bool   `json:"performance_insights"`
}

// IOOptimized reports whether the cluster uses I/O-optimized storage
func (i *InstanceInfo) IOOptimized() bool {
	return i.StorageType == "aurora-iopt1"
}
