// Package stats holds the numeric helpers shared by every analysis stage.
//
// All functions operate on ordered sample values. A NaN entry marks a missing
// sample and is skipped by aggregations; it is never treated as zero.
package stats

import (
	"errors"
	"math"
	"sort"
)

// ErrLengthMismatch is returned by elementwise operations on series of unequal length.
var ErrLengthMismatch = errors.New("series lengths differ")

// Missing is the value used to mark an absent sample.
var Missing = math.NaN()

// IsMissing reports whether v marks an absent sample.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Average returns the mean of the present values. ok is false when there are none.
func Average(values []float64) (avg float64, ok bool) {
	sum, n := 0.0, 0
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Max returns the largest present value.
func Max(values []float64) (max float64, ok bool) {
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		if !ok || v > max {
			max = v
			ok = true
		}
	}
	return max, ok
}

// Min returns the smallest present value.
func Min(values []float64) (min float64, ok bool) {
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		if !ok || v < min {
			min = v
			ok = true
		}
	}
	return min, ok
}

// Sum returns the total of the present values.
func Sum(values []float64) (sum float64, ok bool) {
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		sum += v
		ok = true
	}
	return sum, ok
}

// StdDev returns the population standard deviation around a precomputed mean.
func StdDev(values []float64, mean float64) float64 {
	acc, n := 0.0, 0
	for _, v := range values {
		if IsMissing(v) {
			continue
		}
		d := v - mean
		acc += d * d
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(acc / float64(n))
}

// TwoSigma returns mean + 2*stddev, a noise tolerant near-max estimate.
func TwoSigma(values []float64) (float64, bool) {
	mean, ok := Average(values)
	if !ok {
		return 0, false
	}
	return mean + 2*StdDev(values, mean), true
}

// Percentile returns the linearly interpolated percentile (0-100) of the present values.
func Percentile(values []float64, percentile float64) (float64, bool) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !IsMissing(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return 0, false
	}
	sort.Float64s(sorted)

	index := (percentile / 100) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1], true
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight, true
}

// Add sums two parallel series elementwise. A missing entry on either side yields a missing entry.
func Add(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, ErrLengthMismatch
	}
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out, nil
}

// Scale multiplies every entry of a series by factor.
func Scale(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out
}

// MaxAcross returns the per-index maximum of equal-length series, skipping missing entries.
func MaxAcross(series ...[]float64) ([]float64, error) {
	if len(series) == 0 {
		return nil, nil
	}
	n := len(series[0])
	for _, s := range series[1:] {
		if len(s) != n {
			return nil, ErrLengthMismatch
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = Missing
		for _, s := range series {
			v := s[i]
			if IsMissing(v) {
				continue
			}
			if IsMissing(out[i]) || v > out[i] {
				out[i] = v
			}
		}
	}
	return out, nil
}

// DirectionalCorrelation returns the share of adjacent steps in which both
// series move the same way (both up, both down or both flat). It is a
// sign-of-delta agreement ratio in [0,1], not a Pearson coefficient. A step
// touching a missing sample in either series is not compared. With no
// comparable steps the result is 0.
func DirectionalCorrelation(a, b []float64) float64 {
	n := min(len(a), len(b))

	matches, compared := 0, 0
	for i := 1; i < n; i++ {
		if IsMissing(a[i-1]) || IsMissing(a[i]) || IsMissing(b[i-1]) || IsMissing(b[i]) {
			continue
		}
		compared++
		if direction(a[i]-a[i-1]) == direction(b[i]-b[i-1]) {
			matches++
		}
	}
	if compared == 0 {
		return 0
	}
	return float64(matches) / float64(compared)
}

func direction(delta float64) int {
	switch {
	case delta > 0:
		return 1
	case delta < 0:
		return -1
	default:
		return 0
	}
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
