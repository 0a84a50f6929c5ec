package envelope

import (
	"strconv"
	"strings"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// HardwareSpec holds the instance hardware attributes reported by the catalog.
type HardwareSpec struct {
	VCPUs    int
	MemoryGB float64
	// NetworkPerformance is the free-text tier, e.g. "Up to 12.5 Gigabit".
	NetworkPerformance    string
	BaselineBandwidthGbps float64
	PeakBandwidthGbps     float64
	EBSBaselineMBps       float64
	EBSMaxMBps            float64
	EBSBaselineIOPS       int
	EBSMaxIOPS            int
	// InstanceStorageGB is local NVMe capacity; zero for EBS-only classes.
	InstanceStorageGB float64
	CurrentGeneration bool
}

// Limits are the network and EBS ceilings of an instance class.
type Limits struct {
	NetworkMaxMBps      float64 `json:"network_max_mbps"`
	NetworkBaselineMBps float64 `json:"network_baseline_mbps"`
	NetworkBurstable    bool    `json:"network_burstable"`
	EBSMaxMBps          float64 `json:"ebs_max_mbps"`
	EBSBaselineMBps     float64 `json:"ebs_baseline_mbps"`
	EBSMaxIOPS          int     `json:"ebs_max_iops"`
	EBSBaselineIOPS     int     `json:"ebs_baseline_iops"`
	EBSBurstable        bool    `json:"ebs_burstable"`
}

// ParseNetworkPerformance reads a network tier string into Gbps and whether it is a burst ceiling.
func ParseNetworkPerformance(s string) (gbps float64, burstable bool) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "Up to "); ok {
		burstable = true
		s = rest
	}

	switch strings.ToLower(s) {
	case "very low":
		return 0.05, burstable
	case "low":
		return 0.3, burstable
	case "low to moderate":
		return 0.5, burstable
	case "moderate":
		return 0.75, burstable
	case "high":
		return 1, burstable
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, burstable
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, burstable
	}
	if len(fields) > 1 && strings.HasPrefix(strings.ToLower(fields[1]), "megabit") {
		v /= 1000
	}
	return v, burstable
}

// gbpsToMBps converts gigabits per second to megabytes per second.
func gbpsToMBps(gbps float64) float64 {
	return gbps * 1000 / 8
}

// LimitsFor derives network and EBS limits from hardware attributes. Explicit
// baseline/peak bandwidth wins over the network tier string.
func LimitsFor(spec HardwareSpec) Limits {
	tierGbps, tierBurst := ParseNetworkPerformance(spec.NetworkPerformance)

	peak := spec.PeakBandwidthGbps
	if peak == 0 {
		peak = tierGbps
	}
	baseline := spec.BaselineBandwidthGbps
	if baseline == 0 {
		baseline = peak
	}

	limits := Limits{
		NetworkMaxMBps:      stats.Round(gbpsToMBps(peak), 2),
		NetworkBaselineMBps: stats.Round(gbpsToMBps(baseline), 2),
		NetworkBurstable:    tierBurst || baseline < peak,
		EBSMaxMBps:          spec.EBSMaxMBps,
		EBSBaselineMBps:     spec.EBSBaselineMBps,
		EBSMaxIOPS:          spec.EBSMaxIOPS,
		EBSBaselineIOPS:     spec.EBSBaselineIOPS,
	}
	if limits.EBSBaselineMBps == 0 {
		limits.EBSBaselineMBps = limits.EBSMaxMBps
	}
	if limits.EBSBaselineIOPS == 0 {
		limits.EBSBaselineIOPS = limits.EBSMaxIOPS
	}
	limits.EBSBurstable = limits.EBSBaselineMBps < limits.EBSMaxMBps || limits.EBSBaselineIOPS < limits.EBSMaxIOPS
	return limits
}

// CeilingCheck compares actual network traffic with instance limits.
type CeilingCheck struct {
	ActualMBps    float64  `json:"actual_mbps"`
	CeilingMBps   float64  `json:"ceiling_mbps"`
	PctOfCeiling  float64  `json:"pct_of_ceiling"`
	BaselineMBps  *float64 `json:"baseline_mbps,omitempty"`
	PctOfBaseline *float64 `json:"pct_of_baseline,omitempty"`
	HeadroomMBps  float64  `json:"headroom_mbps"`
}

// CheckCeiling reports traffic as a share of the ceiling and, for burstable
// classes, of the sustained baseline.
func CheckCeiling(actualMBps float64, limits Limits) CeilingCheck {
	check := CeilingCheck{
		ActualMBps:   stats.Round(actualMBps, 2),
		CeilingMBps:  limits.NetworkMaxMBps,
		HeadroomMBps: stats.Round(limits.NetworkMaxMBps-actualMBps, 2),
	}
	if limits.NetworkMaxMBps > 0 {
		check.PctOfCeiling = stats.Round(actualMBps*100/limits.NetworkMaxMBps, 2)
	}
	if limits.NetworkBurstable && limits.NetworkBaselineMBps > 0 {
		baseline := limits.NetworkBaselineMBps
		pct := stats.Round(actualMBps*100/baseline, 2)
		check.BaselineMBps = &baseline
		check.PctOfBaseline = &pct
	}
	return check
}
