package sizing

import (
	"fmt"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
)

// Rejection records why a candidate was filtered out
type Rejection struct {
	Class   string   `json:"class"`
	Reasons []string `json:"reasons"`
}

// Check returns the constraints a candidate violates. An empty result means
// the candidate is eligible. raw is the observed envelope, demand the inflated one.
func Check(c Candidate, raw, demand Envelope) []string {
	var reasons []string

	if raw.UnderMemoryPressure() && raw.TotalMemoryGB > c.MemoryGB {
		reasons = append(reasons,
			fmt.Sprintf("memory pressure requires at least %.1f GB, has %.1f GB", raw.TotalMemoryGB, c.MemoryGB))
	}
	if demand.MemoryGB > c.MemoryGB {
		reasons = append(reasons,
			fmt.Sprintf("memory %.1f GB exceeds %.1f GB", demand.MemoryGB, c.MemoryGB))
	}
	if !c.CurrentGeneration {
		reasons = append(reasons, "previous generation class")
	}
	if demand.LocalStorageMBps > c.EBSMaxMBps {
		reasons = append(reasons,
			fmt.Sprintf("local storage throughput %.1f MB/s exceeds %.1f MB/s", demand.LocalStorageMBps, c.EBSMaxMBps))
	}
	if demand.VCPUs > float64(c.VCPUs) {
		reasons = append(reasons,
			fmt.Sprintf("vCPU demand %.2f exceeds %d", demand.VCPUs, c.VCPUs))
	}
	if demand.FilesystemGB > c.LocalStorageGB {
		reasons = append(reasons,
			fmt.Sprintf("filesystem %.1f GB exceeds %.1f GB", demand.FilesystemGB, c.LocalStorageGB))
	}
	if demand.Connections > float64(c.MaxConnections) {
		reasons = append(reasons,
			fmt.Sprintf("connections %.0f exceed max_connections %d", demand.Connections, c.MaxConnections))
	}
	if limit := c.NetworkLimitMBps(); demand.NetworkMBps > limit {
		kind := "maximum"
		if c.NetworkBurstable {
			kind = "baseline"
		}
		reasons = append(reasons,
			fmt.Sprintf("network %.1f MB/s exceeds %s %.1f MB/s", demand.NetworkMBps, kind, limit))
	}

	return reasons
}

// Warnings flags conditions the operator should weigh before acting on a recommendation
func Warnings(current string, raw Envelope, rec *Recommendation) []string {
	var warnings []string

	if raw.UnderMemoryPressure() {
		warnings = append(warnings,
			fmt.Sprintf("Current instance shows memory pressure (cache hit %.1f%%, swap %.2f GB). Candidates smaller than %.1f GB were excluded.",
				raw.CacheHitPct, raw.SwapGB, raw.TotalMemoryGB))
	}

	if config.IsBurstable(current) {
		warnings = append(warnings,
			"Current class is burstable. Sustained CPU above baseline consumes credits and is not visible in utilization alone.")
	}

	if top := rec.Top(); top != nil && top.Class != current {
		if top.NetworkBurstable {
			warnings = append(warnings,
				fmt.Sprintf("%s has burstable networking. Sizing used its %.1f MB/s baseline.", top.Class, top.NetworkBaselineMBps))
		}
		if top.Direction == config.ScaleDown {
			warnings = append(warnings,
				"Scaling down shrinks the buffer cache. Validate read latency after the change.")
		}
	}

	return warnings
}
