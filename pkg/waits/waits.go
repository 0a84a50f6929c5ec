// Package waits turns database load grouped by wait event, SQL statement,
// database or user into average-active-session and DB-time figures.
package waits

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// ErrNoSamples is returned when no non-idle wait event carries a sample.
var ErrNoSamples = errors.New("no wait event samples")

// idleTypes are wait-event types that do not represent contention.
var idleTypes = map[string]bool{
	"timeout": true,
	"idle":    true,
}

// EventSeries is the load series of one wait event.
type EventSeries struct {
	// Event is the full event name, e.g. "IO:DataFileRead" or "CPU".
	Event  string
	Values []float64
}

// EventType returns the type portion of an event name, the part before ':'.
func EventType(event string) string {
	if typ, _, ok := strings.Cut(event, ":"); ok {
		return typ
	}
	return event
}

// IsIdle reports whether event is an idle or timeout wait.
func IsIdle(event string) bool {
	return idleTypes[strings.ToLower(EventType(event))]
}

// EventLoad is the DB time attributed to one wait event.
type EventLoad struct {
	Event     string  `json:"event"`
	Type      string  `json:"type"`
	Seconds   float64 `json:"seconds"`
	PctDBTime float64 `json:"pct_db_time"`
}

// Summary is the wait profile of one window.
type Summary struct {
	AAS           float64     `json:"aas"`
	DBTimeSeconds float64     `json:"db_time_seconds"`
	Events        []EventLoad `json:"events"`
}

// Analyze computes AAS, DB time and per-event shares. Idle and timeout events
// are excluded from every figure. Events are returned by time, largest first.
func Analyze(series []EventSeries, periodSeconds int) (*Summary, error) {
	var (
		total   float64
		samples int
		events  []EventLoad
	)
	for _, s := range series {
		if IsIdle(s.Event) {
			continue
		}
		sum, ok := stats.Sum(s.Values)
		if !ok {
			continue
		}
		if samples == 0 {
			samples = len(s.Values)
		}
		total += sum
		events = append(events, EventLoad{
			Event:   s.Event,
			Type:    EventType(s.Event),
			Seconds: sum * float64(periodSeconds),
		})
	}
	if samples == 0 {
		return nil, ErrNoSamples
	}

	summary := &Summary{
		AAS:           stats.Round(total/float64(samples), 2),
		DBTimeSeconds: math.Round(total * float64(periodSeconds)),
	}
	for i := range events {
		if summary.DBTimeSeconds > 0 {
			events[i].PctDBTime = stats.Round(events[i].Seconds*100/summary.DBTimeSeconds, 2)
		}
		events[i].Seconds = stats.Round(events[i].Seconds, 2)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Seconds > events[j].Seconds
	})
	summary.Events = events
	return summary, nil
}
