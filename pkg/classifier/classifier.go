// Package classifier turns a flat catalog of dotted metric identifiers and their
// raw statistic series into per-metric summaries grouped by semantic category.
package classifier

import (
	"sort"
	"strings"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// Statistic is the suffix variant a metric series is reported under.
type Statistic string

const (
	StatAvg Statistic = "avg"
	StatMax Statistic = "max"
	StatMin Statistic = "min"
	StatSum Statistic = "sum"
)

// Statistics lists every known suffix.
var Statistics = []Statistic{StatAvg, StatMax, StatMin, StatSum}

// MetricMetadata describes one catalog entry.
type MetricMetadata struct {
	Metric      string `json:"metric"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

// MetricSummary is the statistical summary of one metric over the window.
// Which fields are set depends on the variants the metric is reported under.
type MetricSummary struct {
	Metric      string   `json:"metric"`
	Description string   `json:"description"`
	Unit        string   `json:"unit"`
	Avg         *float64 `json:"avg,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Sum         *float64 `json:"sum,omitempty"`
	TwoSigma    *float64 `json:"two_sigma,omitempty"`
}

// Category groups the summaries of one semantic area.
type Category struct {
	Name    string          `json:"name"`
	Metrics []MetricSummary `json:"metrics"`
}

// Result is the classifier output for one evaluation.
type Result struct {
	Categories []Category `json:"categories"`
	// Series holds the avg (or sum, for sum-only metrics) series of every
	// classified metric keyed by base name, for correlation.
	Series map[string][]float64 `json:"-"`
}

// Category returns the named category, or nil.
func (r *Result) Category(name string) *Category {
	for i := range r.Categories {
		if r.Categories[i].Name == name {
			return &r.Categories[i]
		}
	}
	return nil
}

// Summary returns the summary of a base metric name, or nil.
func (r *Result) Summary(base string) *MetricSummary {
	for i := range r.Categories {
		for j := range r.Categories[i].Metrics {
			if r.Categories[i].Metrics[j].Metric == base {
				return &r.Categories[i].Metrics[j]
			}
		}
	}
	return nil
}

// BaseName strips a known statistic suffix from a metric identifier.
// stat is empty when the identifier carries no known suffix.
func BaseName(id string) (base string, stat Statistic) {
	idx := strings.LastIndexByte(id, '.')
	if idx < 0 {
		return id, ""
	}
	suffix := Statistic(id[idx+1:])
	for _, s := range Statistics {
		if s == suffix {
			return id[:idx], s
		}
	}
	return id, ""
}

// SeriesID joins a base name and a statistic into a full series identifier.
func SeriesID(base string, stat Statistic) string {
	return base + "." + string(stat)
}

// Classify summarizes every catalog entry found in the series collections and
// groups the summaries into categories. Entries whose variants are neither a
// full avg/max/min triplet nor a lone sum are dropped, as are excluded and
// uncategorized metrics.
func Classify(catalog []MetricMetadata, collections ...map[string][]float64) *Result {
	series := make(map[string][]float64)
	for _, c := range collections {
		for id, values := range c {
			series[id] = values
		}
	}

	result := &Result{Series: make(map[string][]float64)}
	byCategory := make(map[string][]MetricSummary)
	seen := make(map[string]bool)

	for _, meta := range catalog {
		base, _ := BaseName(meta.Metric)
		if seen[base] || IsExcluded(base) {
			continue
		}
		seen[base] = true

		category := CategoryOf(base)
		if category == "" {
			continue
		}

		summary, primary, ok := Summarize(base, meta, series)
		if !ok {
			continue
		}
		byCategory[category] = append(byCategory[category], summary)
		result.Series[base] = primary
	}

	for _, name := range Categories {
		metrics := byCategory[name]
		if len(metrics) == 0 {
			continue
		}
		sort.Slice(metrics, func(i, j int) bool { return metrics[i].Metric < metrics[j].Metric })
		result.Categories = append(result.Categories, Category{Name: name, Metrics: metrics})
	}
	return result
}

// Summarize computes the summary of one base metric from its variant series.
// primary is the series used for correlation: avg for triplets, sum for sum-only metrics.
func Summarize(base string, meta MetricMetadata, series map[string][]float64) (summary MetricSummary, primary []float64, ok bool) {
	variants := make(map[Statistic][]float64)
	for _, s := range Statistics {
		if values, found := series[SeriesID(base, s)]; found {
			variants[s] = values
		}
	}

	summary = MetricSummary{Metric: base, Description: meta.Description, Unit: meta.Unit}

	switch {
	case len(variants) == 3 && variants[StatAvg] != nil && variants[StatMax] != nil && variants[StatMin] != nil:
		avg, okAvg := stats.Average(variants[StatAvg])
		max, okMax := stats.Max(variants[StatMax])
		min, okMin := stats.Min(variants[StatMin])
		if !okAvg || !okMax || !okMin {
			return summary, nil, false
		}
		twoSigma, _ := stats.TwoSigma(variants[StatAvg])
		summary.Avg = rounded(avg)
		summary.Max = rounded(max)
		summary.Min = rounded(min)
		summary.TwoSigma = rounded(twoSigma)
		return summary, variants[StatAvg], true

	case len(variants) == 1 && variants[StatSum] != nil:
		sum, okSum := stats.Sum(variants[StatSum])
		if !okSum {
			return summary, nil, false
		}
		summary.Sum = rounded(sum)
		return summary, variants[StatSum], true
	}

	return summary, nil, false
}

func rounded(v float64) *float64 {
	r := stats.Round(v, 2)
	return &r
}
