package aurora

import (
	"time"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// Window is the time range and sample period every collaborator query of one evaluation shares.
type Window struct {
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Period time.Duration `json:"period"`
}

// Steps is the number of samples on the window grid
func (w Window) Steps() int {
	if w.Period <= 0 || !w.End.After(w.Start) {
		return 0
	}
	return int(w.End.Sub(w.Start) / w.Period)
}

// PeriodSeconds is the sample period in whole seconds
func (w Window) PeriodSeconds() int {
	return int(w.Period / time.Second)
}

// Hours is the window length in hours
func (w Window) Hours() float64 {
	return w.End.Sub(w.Start).Hours()
}

// index maps a timestamp onto the grid. ok is false outside the window.
func (w Window) index(ts time.Time) (int, bool) {
	if ts.Before(w.Start) || w.Period <= 0 {
		return 0, false
	}
	i := int(ts.Sub(w.Start) / w.Period)
	return i, i < w.Steps()
}

// Empty returns a series of Steps missing samples
func (w Window) Empty() []float64 {
	out := make([]float64, w.Steps())
	for i := range out {
		out[i] = stats.Missing
	}
	return out
}

// Align places timestamped values on the window grid. Grid points without a
// value stay missing; values outside the window are dropped.
func (w Window) Align(timestamps []time.Time, values []float64) []float64 {
	out := w.Empty()
	for i, ts := range timestamps {
		if i >= len(values) {
			break
		}
		if idx, ok := w.index(ts); ok {
			out[idx] = values[i]
		}
	}
	return out
}
