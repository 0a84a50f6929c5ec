package waits

import (
	"sort"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// Contributor is one dimension member's share of total load.
type Contributor struct {
	// Key is the dimension id, e.g. a SQL digest id.
	Key string `json:"key"`
	// Name is the human-readable value: statement text, database, user or event.
	Name string `json:"name"`
	// Load is the member's average active sessions over the window.
	Load float64 `json:"aas"`
	// Ratio is the member's share of the group's total load in percent.
	Ratio float64 `json:"pct_of_load"`
}

// Breakdown groups the top contributors per load dimension.
type Breakdown struct {
	SQL       []Contributor `json:"top_sql"`
	Databases []Contributor `json:"databases"`
	Users     []Contributor `json:"users"`
	Waits     []Contributor `json:"waits"`
}

// Rank fills in load ratios, orders contributors by load and keeps the first
// limit of them. Ratios are computed against the total of all inputs, so they
// need not sum to 100 after truncation. A limit <= 0 keeps everything.
func Rank(in []Contributor, limit int) []Contributor {
	var total float64
	for _, c := range in {
		total += c.Load
	}

	out := make([]Contributor, len(in))
	copy(out, in)
	for i := range out {
		if total > 0 {
			out[i].Ratio = stats.Round(out[i].Load*100/total, 2)
		}
		out[i].Load = stats.Round(out[i].Load, 2)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Load > out[j].Load
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ActiveOnly drops idle and timeout wait events from a wait-event grouping.
func ActiveOnly(in []Contributor) []Contributor {
	out := make([]Contributor, 0, len(in))
	for _, c := range in {
		if !IsIdle(c.Name) {
			out = append(out, c)
		}
	}
	return out
}
