package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatesSkipMissing(t *testing.T) {
	values := []float64{4, Missing, 1, 7, Missing}

	avg, ok := Average(values)
	require.True(t, ok)
	assert.InDelta(t, 4.0, avg, 1e-9)

	max, ok := Max(values)
	require.True(t, ok)
	assert.Equal(t, 7.0, max)

	min, ok := Min(values)
	require.True(t, ok)
	assert.Equal(t, 1.0, min)

	sum, ok := Sum(values)
	require.True(t, ok)
	assert.Equal(t, 12.0, sum)
}

func TestAggregatesEmpty(t *testing.T) {
	for name, values := range map[string][]float64{
		"nil":         nil,
		"empty":       {},
		"all missing": {Missing, Missing},
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := Average(values)
			assert.False(t, ok)
			_, ok = Max(values)
			assert.False(t, ok)
			_, ok = Min(values)
			assert.False(t, ok)
			_, ok = Sum(values)
			assert.False(t, ok)
			_, ok = TwoSigma(values)
			assert.False(t, ok)
		})
	}
}

func TestMinAverageMaxOrdering(t *testing.T) {
	cases := [][]float64{
		{1},
		{-5, 3, 2.5},
		{10, 10, 10},
		{0.1, 99, 42, Missing, 7},
	}
	for _, values := range cases {
		min, _ := Min(values)
		avg, _ := Average(values)
		max, _ := Max(values)
		assert.LessOrEqual(t, min, avg)
		assert.LessOrEqual(t, avg, max)
	}
}

func TestTwoSigma(t *testing.T) {
	// mean 50, population stddev 10
	values := []float64{40, 60, 40, 60}
	mean, _ := Average(values)
	assert.InDelta(t, 10.0, StdDev(values, mean), 1e-9)

	bound, ok := TwoSigma(values)
	require.True(t, ok)
	assert.InDelta(t, 70.0, bound, 1e-9)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	p95, ok := Percentile(values, 95)
	require.True(t, ok)
	assert.InDelta(t, 9.55, p95, 1e-9)

	p100, _ := Percentile(values, 100)
	assert.Equal(t, 10.0, p100)
}

func TestAddAndScale(t *testing.T) {
	sum, err := Add([]float64{1, 2, 3}, []float64{10, 20, 30})
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, sum)

	_, err = Add([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	assert.Equal(t, []float64{2, 4, 6}, Scale([]float64{1, 2, 3}, 2))
}

func TestMaxAcross(t *testing.T) {
	out, err := MaxAcross([]float64{1, 5, Missing}, []float64{3, 2, Missing}, []float64{0, 9, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 9, 4}, out)

	_, err = MaxAcross([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDirectionalCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 2, 2, 5}
	b := []float64{10, 20, 15, 5, 5, 6}
	c := []float64{3, 1, 4, 1, 5, 9}

	t.Run("self", func(t *testing.T) {
		for _, s := range [][]float64{a, b, c, {1, 1}} {
			assert.Equal(t, 1.0, DirectionalCorrelation(s, s))
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t, DirectionalCorrelation(a, b), DirectionalCorrelation(b, a))
		assert.Equal(t, DirectionalCorrelation(a, c), DirectionalCorrelation(c, a))
	})

	t.Run("ratio", func(t *testing.T) {
		// steps: up/up, up/down, down/down, flat/flat, up/up
		assert.InDelta(t, 0.8, DirectionalCorrelation(a, b), 1e-9)
	})

	t.Run("short", func(t *testing.T) {
		assert.Equal(t, 0.0, DirectionalCorrelation([]float64{1}, []float64{1}))
	})

	t.Run("gaps are not compared", func(t *testing.T) {
		m := Missing
		rising := []float64{1, 2, 3, m, m, m, m, m, m, 4, 5}
		falling := []float64{9, 8, 7, m, m, m, m, m, m, 6, 5}
		assert.Equal(t, 0.0, DirectionalCorrelation(rising, falling))
		assert.Equal(t, 1.0, DirectionalCorrelation(rising, rising))
	})

	t.Run("only gaps", func(t *testing.T) {
		m := Missing
		assert.Equal(t, 0.0, DirectionalCorrelation([]float64{m, 1, m}, []float64{1, m, 1}))
	})

	t.Run("not pearson", func(t *testing.T) {
		// same direction every step, wildly different magnitudes
		x := []float64{1, 2, 3, 4}
		y := []float64{1, 100, 101, 5000}
		assert.Equal(t, 1.0, DirectionalCorrelation(x, y))
	})
}

func TestRound(t *testing.T) {
	assert.Equal(t, 50.0, Round(49.999, 2))
	assert.Equal(t, 3.0, Round(2.5, 0))
	assert.Equal(t, -3.0, Round(-2.5, 0))
	assert.True(t, math.IsNaN(Round(math.NaN(), 2)))
}
