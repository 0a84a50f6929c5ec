package serverless

import (
	"encoding/json"
	"fmt"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// Inputs are the raw series the estimator consumes, aligned on one grid.
type Inputs struct {
	// VCPUs of the currently provisioned class.
	VCPUs float64
	// CPUUtilization in percent.
	CPUUtilization []float64
	// LogicalReads is the buffer-cache block read rate.
	LogicalReads []float64
	// ReadIOPS is the OS-level read I/O rate.
	ReadIOPS []float64
}

// Bounds are the capacity settings suggested from a smoothed ACU series.
type Bounds struct {
	Average            float64 `json:"average_acus"`
	StdDev             float64 `json:"stddev_acus"`
	SuggestedMinACUs   float64 `json:"suggested_min_acus"`
	SuggestedMaxAvgStd float64 `json:"suggested_max_acus_avg_std"`
	SuggestedMaxACUs   float64 `json:"suggested_max_acus"`
}

// Estimate is the output of the ACU pipeline.
type Estimate struct {
	CPU           []float64 `json:"-"`
	MemoryLogical []float64 `json:"-"`
	MemoryIOPS    []float64 `json:"-"`
	Merged        []float64 `json:"-"`
	Smoothed      []float64 `json:"-"`
	Bounds
}

// MarshalJSON writes the smoothed series as "acus" with null for missing steps.
func (e *Estimate) MarshalJSON() ([]byte, error) {
	acus := make([]*float64, len(e.Smoothed))
	for i, v := range e.Smoothed {
		if !stats.IsMissing(v) {
			acus[i] = &v
		}
	}
	return json.Marshal(struct {
		ACUs []*float64 `json:"acus"`
		Bounds
	}{acus, e.Bounds})
}

// Estimate runs the full pipeline over in.
func (c Config) Estimate(in Inputs) (*Estimate, error) {
	vcpusUsed := make([]float64, len(in.CPUUtilization))
	for i, pct := range in.CPUUtilization {
		vcpusUsed[i] = pct / 100 * in.VCPUs
	}

	est := &Estimate{
		CPU:           CPUACUs(vcpusUsed),
		MemoryLogical: MemoryACUs(MemoryMB(in.LogicalReads, c.OtherMemoryAllocationsPct)),
		MemoryIOPS:    MemoryACUs(MemoryMB(Accumulate(in.ReadIOPS, c.EffectivePeriod), c.OtherMemoryAllocationsPct)),
	}

	merged, err := Merge(c.MaxACU, est.CPU, est.MemoryLogical, est.MemoryIOPS)
	if err != nil {
		return nil, fmt.Errorf("merge ACU series: %w", err)
	}
	if len(merged) == 0 {
		return nil, ErrNoSamples
	}
	est.Merged = merged
	est.Smoothed = Smooth(merged, c.HysteresisLimit)

	bounds, ok := c.Suggest(est.Smoothed)
	if !ok {
		return nil, ErrNoSamples
	}
	est.Bounds = bounds
	return est, nil
}

// Suggest derives min/max capacity settings from a smoothed series.
func (c Config) Suggest(smoothed []float64) (Bounds, bool) {
	avg, ok := stats.Average(smoothed)
	if !ok {
		return Bounds{}, false
	}
	std := stats.StdDev(smoothed, avg)
	peak, _ := stats.Max(smoothed)

	return Bounds{
		Average:            stats.Round(avg, 2),
		StdDev:             stats.Round(std, 2),
		SuggestedMinACUs:   max(RoundACUs(avg-std), MinACU),
		SuggestedMaxAvgStd: min(RoundACUs(avg+std), c.MaxACU),
		SuggestedMaxACUs:   max(peak, MinACU),
	}, true
}
