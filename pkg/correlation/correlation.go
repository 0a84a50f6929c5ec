// Package correlation groups metrics whose series move together.
package correlation

import (
	"sort"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// DefaultThreshold is the directional agreement ratio at which two metrics are linked.
const DefaultThreshold = 0.9

// Pair is one linked pair of metrics and its agreement ratio.
type Pair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Ratio float64 `json:"ratio"`
}

// Result lists the correlation clusters found for one evaluation.
type Result struct {
	Threshold float64 `json:"threshold"`
	// Clusters maps a cluster id, starting at 1, to its sorted member metrics.
	Clusters map[int][]string `json:"clusters"`
	Pairs    []Pair           `json:"pairs,omitempty"`
}

// Detect compares every unordered pair of series and merges pairs whose
// directional correlation meets threshold into disjoint clusters. A pair
// linking two existing clusters unions them, so membership is transitive.
// Series must share period and alignment.
func Detect(series map[string][]float64, threshold float64) *Result {
	names := make([]string, 0, len(series))
	for name, values := range series {
		if len(values) < 2 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	d := newDisjointSet()
	var pairs []Pair
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			ratio := stats.DirectionalCorrelation(series[names[i]], series[names[j]])
			if ratio < threshold {
				continue
			}
			d.union(names[i], names[j])
			pairs = append(pairs, Pair{A: names[i], B: names[j], Ratio: stats.Round(ratio, 4)})
		}
	}

	return &Result{
		Threshold: threshold,
		Clusters:  d.clusters(),
		Pairs:     pairs,
	}
}

// disjointSet tracks cluster membership. Clusters keep the id of the first
// pair that created them; absorbing a cluster keeps the lower id.
type disjointSet struct {
	clusterOf map[string]int
	members   map[int][]string
	nextID    int
}

func newDisjointSet() *disjointSet {
	return &disjointSet{
		clusterOf: make(map[string]int),
		members:   make(map[int][]string),
		nextID:    1,
	}
}

func (d *disjointSet) union(a, b string) {
	ca, cb := d.clusterOf[a], d.clusterOf[b]
	switch {
	case ca == 0 && cb == 0:
		id := d.nextID
		d.nextID++
		d.add(id, a)
		d.add(id, b)
	case ca == 0:
		d.add(cb, a)
	case cb == 0:
		d.add(ca, b)
	case ca != cb:
		keep, absorb := ca, cb
		if absorb < keep {
			keep, absorb = absorb, keep
		}
		for _, m := range d.members[absorb] {
			d.add(keep, m)
		}
		delete(d.members, absorb)
	}
}

func (d *disjointSet) add(id int, metric string) {
	d.clusterOf[metric] = id
	d.members[id] = append(d.members[id], metric)
}

// clusters renumbers surviving clusters from 1 in order of their lowest original id.
func (d *disjointSet) clusters() map[int][]string {
	ids := make([]int, 0, len(d.members))
	for id := range d.members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make(map[int][]string)
	next := 1
	for _, id := range ids {
		members := dedupe(d.members[id])
		if len(members) < 2 {
			continue
		}
		out[next] = members
		next++
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, m := range in {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
