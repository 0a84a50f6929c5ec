// Package envelope synthesizes the network and local-storage demand of an
// instance from raw throughput series and checks it against instance limits.
package envelope

import (
	"errors"
	"fmt"

	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// ErrNoSamples is returned when a required input series has no present values.
var ErrNoSamples = errors.New("series has no samples")

// BytesPerMB converts byte rates to MB rates.
const BytesPerMB = 1024 * 1024

// Topology is the cluster position of the evaluated instance.
type Topology struct {
	Writer bool `json:"writer"`
	// OtherInstances counts the other instances of the same cluster.
	OtherInstances int `json:"other_instances"`
	// RemoteClusters counts secondary clusters of a global database.
	RemoteClusters int `json:"remote_clusters"`
}

// Estimate summarizes a synthesized throughput series in MB/s.
type Estimate struct {
	Max      float64 `json:"max_mbps"`
	Avg      float64 `json:"avg_mbps"`
	TwoSigma float64 `json:"two_sigma_mbps"`
}

// NetworkInputs are the raw network series of one instance, all in MB/s and
// aligned on the same window grid.
type NetworkInputs struct {
	Topology Topology
	// WriteThroughput is the instance's own write throughput.
	WriteThroughput []float64
	// WriterWriteThroughput is the cluster writer's write throughput; only read for readers.
	WriterWriteThroughput []float64
	ClientThroughput      []float64
	StorageThroughput     []float64
}

// NetworkEstimate is the synthesized network envelope.
type NetworkEstimate struct {
	Estimate
	Total []float64 `json:"-"`
	WAL   []float64 `json:"-"`
}

// WALPropagation returns the intra-cluster WAL traffic series. A writer ships
// its writes to every other instance and every remote cluster; a reader
// receives the writer's writes once.
func WALPropagation(in NetworkInputs) ([]float64, error) {
	if !in.Topology.Writer {
		if len(in.WriterWriteThroughput) == 0 {
			return nil, fmt.Errorf("writer write throughput: %w", ErrNoSamples)
		}
		return in.WriterWriteThroughput, nil
	}
	if len(in.WriteThroughput) == 0 {
		return nil, fmt.Errorf("write throughput: %w", ErrNoSamples)
	}
	fanout := float64(in.Topology.OtherInstances + in.Topology.RemoteClusters)
	return stats.Scale(in.WriteThroughput, fanout), nil
}

// EstimateNetwork sums WAL, client and storage traffic into a total series.
// Max and TwoSigma come from the summed series while Avg is the sum of the
// three component averages.
func EstimateNetwork(in NetworkInputs) (*NetworkEstimate, error) {
	wal, err := WALPropagation(in)
	if err != nil {
		return nil, err
	}

	partial, err := stats.Add(wal, in.ClientThroughput)
	if err != nil {
		return nil, fmt.Errorf("wal + client: %w", err)
	}
	total, err := stats.Add(partial, in.StorageThroughput)
	if err != nil {
		return nil, fmt.Errorf("wal + client + storage: %w", err)
	}

	max, ok := stats.Max(total)
	if !ok {
		return nil, fmt.Errorf("total network throughput: %w", ErrNoSamples)
	}
	twoSigma, _ := stats.TwoSigma(total)

	avg := 0.0
	components := []struct {
		name   string
		series []float64
	}{
		{"storage", in.StorageThroughput},
		{"wal", wal},
		{"client", in.ClientThroughput},
	}
	for _, c := range components {
		a, ok := stats.Average(c.series)
		if !ok {
			return nil, fmt.Errorf("%s throughput: %w", c.name, ErrNoSamples)
		}
		avg += a
	}

	return &NetworkEstimate{
		Estimate: Estimate{
			Max:      stats.Round(max, 2),
			Avg:      stats.Round(avg, 2),
			TwoSigma: stats.Round(twoSigma, 2),
		},
		Total: total,
		WAL:   wal,
	}, nil
}

// BytesToMB converts a bytes/s series to MB/s.
func BytesToMB(values []float64) []float64 {
	return stats.Scale(values, 1.0/BytesPerMB)
}

// LocalStorage sums read and write KB/s series into a local-storage throughput
// estimate in MB/s, computed the same way as the network estimate.
func LocalStorage(writeKBps, readKBps []float64) (*Estimate, error) {
	total, err := stats.Add(writeKBps, readKBps)
	if err != nil {
		return nil, fmt.Errorf("local storage: %w", err)
	}
	total = stats.Scale(total, 1.0/1024)

	max, ok := stats.Max(total)
	if !ok {
		return nil, fmt.Errorf("local storage throughput: %w", ErrNoSamples)
	}
	twoSigma, _ := stats.TwoSigma(total)

	avgWrite, okWrite := stats.Average(writeKBps)
	avgRead, okRead := stats.Average(readKBps)
	if !okWrite || !okRead {
		return nil, fmt.Errorf("local storage throughput: %w", ErrNoSamples)
	}

	return &Estimate{
		Max:      stats.Round(max, 2),
		Avg:      stats.Round((avgWrite+avgRead)/1024, 2),
		TwoSigma: stats.Round(twoSigma, 2),
	}, nil
}
