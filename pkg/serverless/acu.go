// Package serverless estimates Aurora Serverless v2 capacity (ACU) demand from
// provisioned-instance telemetry.
//
// The pipeline is strictly ordered: CPU-based demand, two memory-pressure
// signals derived from I/O rates, a per-step maximum clamped to the platform
// ceiling, then hysteresis smoothing so transient dips are not reported.
package serverless

import (
	"errors"
	"math"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

const (
	// ACUPerVCPU is the fixed platform ratio between ACUs and vCPUs.
	ACUPerVCPU = 4
	// MinACU is the smallest capacity a serverless instance can be configured with.
	MinACU = 0.5
	// DefaultMaxACU is the platform-wide capacity ceiling.
	DefaultMaxACU = 256
	// DefaultEffectivePeriod is the number of samples folded into one read-IOPS burst.
	DefaultEffectivePeriod = 5
	// DefaultHysteresisLimit is the number of consecutive lower samples held at the current level.
	DefaultHysteresisLimit = 9
	// DefaultOtherMemoryAllocationsPct is the share of instance memory not available to the buffer cache.
	DefaultOtherMemoryAllocationsPct = 25

	// pageKB is the database block size.
	pageKB = 8
	// memoryStepMB is the granularity memory demand is rounded up to.
	memoryStepMB = 1000
	// mbPerACU is the memory one ACU provides.
	mbPerACU = 2000
)

// ErrNoSamples is returned when the merged ACU series has no values.
var ErrNoSamples = errors.New("no capacity samples")

// Config tunes the estimator.
type Config struct {
	MaxACU                    float64
	EffectivePeriod           int
	HysteresisLimit           int
	OtherMemoryAllocationsPct float64
}

// DefaultConfig returns the platform defaults.
func DefaultConfig() Config {
	return Config{
		MaxACU:                    DefaultMaxACU,
		EffectivePeriod:           DefaultEffectivePeriod,
		HysteresisLimit:           DefaultHysteresisLimit,
		OtherMemoryAllocationsPct: DefaultOtherMemoryAllocationsPct,
	}
}

// RoundACUs rounds up to the next half ACU. Multiples of 0.5 are returned unchanged.
func RoundACUs(x float64) float64 {
	return math.Ceil(x*2) / 2
}

// CPUACUs converts vCPUs in use per sample into ACU demand.
func CPUACUs(vcpusUsed []float64) []float64 {
	out := make([]float64, len(vcpusUsed))
	for i, v := range vcpusUsed {
		if stats.IsMissing(v) {
			out[i] = stats.Missing
			continue
		}
		out[i] = RoundACUs(v * ACUPerVCPU)
	}
	return out
}

// Accumulate folds every n consecutive samples into their sum at the first
// position of the window followed by n-1 zeros. A trailing partial window is
// folded the same way. A window without any sample stays missing.
func Accumulate(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	if n <= 1 {
		copy(out, values)
		return out
	}
	for start := 0; start < len(values); start += n {
		end := start + n
		if end > len(values) {
			end = len(values)
		}
		sum, ok := stats.Sum(values[start:end])
		if !ok {
			for i := start; i < end; i++ {
				out[i] = stats.Missing
			}
			continue
		}
		out[start] = sum
	}
	return out
}

// MemoryMB converts a block-rate series into the buffer memory in MB needed
// to hold it, grossed up for memory the engine allocates elsewhere.
func MemoryMB(blocksPerSecond []float64, otherAllocationsPct float64) []float64 {
	grossUp := 100 / (100 - otherAllocationsPct)
	out := make([]float64, len(blocksPerSecond))
	for i, v := range blocksPerSecond {
		if stats.IsMissing(v) {
			out[i] = stats.Missing
			continue
		}
		out[i] = v * pageKB / 1024 * grossUp
	}
	return out
}

// MemoryACUs rounds memory demand up to the next 1000 MB and converts it to ACUs.
func MemoryACUs(mb []float64) []float64 {
	out := make([]float64, len(mb))
	for i, v := range mb {
		if stats.IsMissing(v) {
			out[i] = stats.Missing
			continue
		}
		out[i] = math.Ceil(v/memoryStepMB) * memoryStepMB / mbPerACU
	}
	return out
}

// Merge takes the per-step maximum of the sub-series and clamps it to the
// ceiling. Steps missing from every sub-series stay missing.
func Merge(ceiling float64, series ...[]float64) ([]float64, error) {
	merged, err := stats.MaxAcross(series...)
	if err != nil {
		return nil, err
	}
	for i, v := range merged {
		switch {
		case stats.IsMissing(v):
		case v < 0:
			merged[i] = 0
		case v > ceiling:
			merged[i] = ceiling
		}
	}
	return merged, nil
}

// Smooth applies hysteresis: a value at or above the current level is adopted
// at once, while lower values keep reporting the level until limit of them
// have been held in a row, after which the next lower value becomes the level.
// Missing steps stay missing and neither lower the level nor count as held.
func Smooth(values []float64, limit int) []float64 {
	out := make([]float64, len(values))
	level, held, started := 0.0, 0, false
	for i, v := range values {
		switch {
		case stats.IsMissing(v):
			out[i] = stats.Missing
			continue
		case !started || v >= level:
			level, held, started = v, 0, true
		case held < limit:
			held++
		default:
			level, held = v, 0
		}
		out[i] = level
	}
	return out
}
