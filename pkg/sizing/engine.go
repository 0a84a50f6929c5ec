// Package sizing ranks instance classes against a workload envelope.
package sizing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

const (
	// maxScore is awarded when a candidate has no aggregate headroom left.
	maxScore = 1000
	// minCacheHitPct and maxSwapPct trigger the memory-pressure rule.
	minCacheHitPct = 95
	maxSwapPct     = 5
)

// Verdict is the outcome of a sizing evaluation.
type Verdict string

const (
	VerdictNoChange             Verdict = "no_change"
	VerdictResize               Verdict = "resize"
	VerdictInsufficientCapacity Verdict = "insufficient_capacity"
)

// InsufficientCapacityNote is reported when no candidate fits the envelope.
const InsufficientCapacityNote = "no instance class satisfies the workload envelope: reduce workload or split cluster"

// Candidate is one instance class considered for the workload.
type Candidate struct {
	Class               string  `json:"class"`
	CurrentGeneration   bool    `json:"current_generation"`
	MemoryGB            float64 `json:"memory_gb"`
	VCPUs               int     `json:"vcpus"`
	NetworkMaxMBps      float64 `json:"network_max_mbps"`
	NetworkBurstable    bool    `json:"network_burstable"`
	NetworkBaselineMBps float64 `json:"network_baseline_mbps"`
	LocalStorageGB      float64 `json:"local_storage_gb"`
	MaxConnections      int     `json:"max_connections"`
	EBSMaxMBps          float64 `json:"ebs_max_mbps"`

	// HourlyPrice is the on-demand price; zero when unknown.
	HourlyPrice decimal.Decimal `json:"hourly_price"`

	Score         float64               `json:"score,omitempty"`
	PriceDeltaPct *float64              `json:"price_delta_pct,omitempty"`
	Direction     config.ScaleDirection `json:"direction,omitempty"`
}

// NetworkLimitMBps is the sustained network rate the candidate can serve.
func (c *Candidate) NetworkLimitMBps() float64 {
	if c.NetworkBurstable {
		return c.NetworkBaselineMBps
	}
	return c.NetworkMaxMBps
}

// Envelope is the workload demand compared against candidate capacity.
type Envelope struct {
	VCPUs            float64 `json:"vcpus"`
	NetworkMBps      float64 `json:"network_mbps"`
	FilesystemGB     float64 `json:"filesystem_gb"`
	Connections      float64 `json:"connections"`
	MemoryGB         float64 `json:"memory_gb"`
	LocalStorageMBps float64 `json:"local_storage_mbps"`

	// Memory-pressure signals of the current instance.
	CacheHitPct   float64 `json:"cache_hit_pct"`
	SwapGB        float64 `json:"swap_gb"`
	TotalMemoryGB float64 `json:"total_memory_gb"`
}

// Inflate returns the envelope with every demand figure scaled by factor.
// Memory-pressure signals are observations and stay as they are.
func (e Envelope) Inflate(factor float64) Envelope {
	e.VCPUs *= factor
	e.NetworkMBps *= factor
	e.FilesystemGB *= factor
	e.Connections *= factor
	e.MemoryGB *= factor
	e.LocalStorageMBps *= factor
	return e
}

// UnderMemoryPressure reports whether the cache-hit ratio or swap usage says
// the current instance is already short of memory.
func (e Envelope) UnderMemoryPressure() bool {
	if e.CacheHitPct < minCacheHitPct {
		return true
	}
	return e.TotalMemoryGB > 0 && e.SwapGB*100/e.TotalMemoryGB > maxSwapPct
}

// Recommendation is the result of ranking candidates.
type Recommendation struct {
	Verdict      Verdict     `json:"verdict"`
	Note         string      `json:"note,omitempty"`
	CurrentClass string      `json:"current_class"`
	Demand       Envelope    `json:"inflated_demand"`
	Candidates   []Candidate `json:"candidates"`
	Rejected     []Rejection `json:"rejected,omitempty"`
	Warnings     []string    `json:"warnings,omitempty"`
}

// Top returns the first ranked candidate, if any.
func (r *Recommendation) Top() *Candidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// Engine is the sizing engine
type Engine struct {
	config *config.Config
}

// NewEngine creates a new sizing engine
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		config: cfg,
	}
}

// Recommend filters, scores and ranks candidates for the envelope
func (e *Engine) Recommend(current string, envelope Envelope, candidates []Candidate) *Recommendation {
	demand := envelope.Inflate(e.config.InflationFactor())
	rec := &Recommendation{
		CurrentClass: current,
		Demand:       demand,
	}

	currentPrice := decimal.Zero
	for _, c := range candidates {
		if c.Class == current {
			currentPrice = c.HourlyPrice
			break
		}
	}

	var eligible []Candidate
	for _, c := range candidates {
		if reasons := Check(c, envelope, demand); len(reasons) > 0 {
			rec.Rejected = append(rec.Rejected, Rejection{Class: c.Class, Reasons: reasons})
			continue
		}
		c.Score = stats.Round(score(c, demand), 4)
		if !c.HourlyPrice.IsZero() && !currentPrice.IsZero() {
			delta := cost.PctDelta(c.HourlyPrice, currentPrice)
			c.PriceDeltaPct = &delta
		}
		c.Direction = config.Direction(current, c.Class)
		eligible = append(eligible, c)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Score != eligible[j].Score {
			return eligible[i].Score > eligible[j].Score
		}
		return priceKey(eligible[i]) < priceKey(eligible[j])
	})
	if len(eligible) > e.config.TopCandidates {
		eligible = eligible[:e.config.TopCandidates]
	}
	rec.Candidates = eligible

	switch {
	case len(eligible) == 0:
		rec.Verdict = VerdictInsufficientCapacity
		rec.Note = InsufficientCapacityNote
	case eligible[0].Class == current:
		rec.Verdict = VerdictNoChange
		rec.Note = fmt.Sprintf("%s is the best fit for the workload", current)
	default:
		rec.Verdict = VerdictResize
		rec.Note = fmt.Sprintf("%s fits the workload better than %s", eligible[0].Class, current)
	}

	rec.Warnings = Warnings(current, envelope, rec)
	return rec
}

// score is 1000 over the summed headroom, so tighter fits score higher.
func score(c Candidate, demand Envelope) float64 {
	headroom := (float64(c.VCPUs) - demand.VCPUs) +
		(c.NetworkLimitMBps() - demand.NetworkMBps) +
		(c.LocalStorageGB - demand.FilesystemGB) +
		(float64(c.MaxConnections) - demand.Connections) +
		(c.EBSMaxMBps - demand.LocalStorageMBps)
	if headroom <= 0 {
		return maxScore
	}
	return maxScore / headroom
}

// priceKey orders unknown prices after every known one.
func priceKey(c Candidate) float64 {
	if c.PriceDeltaPct == nil {
		return 1e18
	}
	return *c.PriceDeltaPct
}
