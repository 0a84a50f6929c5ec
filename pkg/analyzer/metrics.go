package analyzer

import (
	"fmt"

	"github.com/fraser-isbester/aurora-advisor/pkg/aurora"
	"github.com/fraser-isbester/aurora-advisor/pkg/classifier"
	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// Enhanced Monitoring metrics read through Performance Insights. Values are
// percent for CPU and KB for memory, swap and filesystem.
const (
	metricCPU          = "os.cpuUtilization.total"
	metricMemoryActive = "os.memory.active"
	metricMemoryTotal  = "os.memory.total"
	metricSwapTotal    = "os.swap.total"
	metricSwapFree     = "os.swap.free"
	metricFileSysUsed  = "os.fileSys.used"
	metricLocalWrite   = "os.diskIO.rdstemp.writeKbPS"
	metricLocalRead    = "os.diskIO.rdstemp.readKbPS"
	metricReadIOPS     = "os.diskIO.auroraStorage.readIOsPS"

	// Buffer cache logical reads per second, by engine
	metricLogicalReadsPostgres = "db.Cache.blks_hit"
	metricLogicalReadsMySQL    = "db.Cache.Innodb_buffer_pool_read_requests"
)

// envelopeMetrics are fetched for every snapshot, listed by the catalog or not
var envelopeMetrics = []string{
	metricCPU, metricMemoryActive, metricMemoryTotal, metricSwapTotal, metricSwapFree,
	metricFileSysUsed, metricLocalWrite, metricLocalRead,
}

// metricTypes are the Performance Insights catalogs classified in a snapshot
var metricTypes = []string{"os", "db"}

// CloudWatch query ids
const (
	queryNetwork        = "network"
	queryStorageNetwork = "storage_network"
	queryWrite          = "write"
	queryWriterWrite    = "writer_write"
	queryConnections    = "connections"
	queryCacheHit       = "cache_hit"
	queryCPU            = "cpu"
	queryVolume         = "volume"
	queryVolumeReads    = "volume_reads"
	queryVolumeWrites   = "volume_writes"
)

// instanceQueries are the CloudWatch series of a snapshot. A reader also needs its writer's write throughput.
func instanceQueries(instance *config.InstanceInfo) []aurora.AggregatedQuery {
	queries := []aurora.AggregatedQuery{
		aurora.InstanceQuery(queryNetwork, "NetworkThroughput", instance.ID),
		aurora.InstanceQuery(queryStorageNetwork, "StorageNetworkThroughput", instance.ID),
		aurora.InstanceQuery(queryWrite, "WriteThroughput", instance.ID),
		aurora.InstanceQuery(queryConnections, "DatabaseConnections", instance.ID),
		aurora.InstanceQuery(queryCacheHit, "BufferCacheHitRatio", instance.ID),
	}
	if instance.Role == config.RoleReader && instance.WriterID != "" {
		queries = append(queries, aurora.InstanceQuery(queryWriterWrite, "WriteThroughput", instance.WriterID))
	}
	return queries
}

// clusterQueries are the volume series of the storage comparison
func clusterQueries(clusterID string) []aurora.AggregatedQuery {
	return []aurora.AggregatedQuery{
		aurora.ClusterQuery(queryVolume, "VolumeBytesUsed", clusterID, "Maximum"),
		aurora.ClusterQuery(queryVolumeReads, "VolumeReadIOPs", clusterID, "Sum"),
		aurora.ClusterQuery(queryVolumeWrites, "VolumeWriteIOPs", clusterID, "Sum"),
	}
}

// capacityQueryID names the serverless capacity query of the i-th cluster member
func capacityQueryID(i int) string {
	return fmt.Sprintf("capacity_%d", i)
}

// logicalReadsMetric returns the buffer-cache read metric of an engine
func logicalReadsMetric(engine string) string {
	if engine == "aurora-postgresql" {
		return metricLogicalReadsPostgres
	}
	return metricLogicalReadsMySQL
}

// seriesIDs expands catalog entries into fetchable series ids. Entries without
// a statistic suffix are fetched as their avg/max/min triplet.
func seriesIDs(catalog []classifier.MetricMetadata, extra ...string) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, meta := range catalog {
		if _, stat := classifier.BaseName(meta.Metric); stat != "" {
			add(meta.Metric)
			continue
		}
		for _, stat := range []classifier.Statistic{classifier.StatAvg, classifier.StatMax, classifier.StatMin} {
			add(classifier.SeriesID(meta.Metric, stat))
		}
	}
	for _, base := range extra {
		for _, stat := range []classifier.Statistic{classifier.StatAvg, classifier.StatMax, classifier.StatMin} {
			add(classifier.SeriesID(base, stat))
		}
	}
	return ids
}

// avgSeries returns the avg variant of a base metric, or nil
func avgSeries(series map[string][]float64, base string) []float64 {
	return series[classifier.SeriesID(base, classifier.StatAvg)]
}

// kbToGB converts a KB series to GB
func kbToGB(values []float64) []float64 {
	return stats.Scale(values, 1.0/(1024*1024))
}

// demand picks the basis figure of a demand series. ok is false when the series has no samples.
func demand(values []float64, basis config.Basis) (float64, bool) {
	if basis == config.BasisTwoSigma {
		return stats.TwoSigma(values)
	}
	return stats.Max(values)
}

// UtilizationSummary holds headline utilization figures for reports
type UtilizationSummary struct {
	CPUAvg         float64 `json:"cpu_avg_pct"`
	CPUP95         float64 `json:"cpu_p95_pct"`
	CPUMax         float64 `json:"cpu_max_pct"`
	ConnectionsAvg float64 `json:"connections_avg"`
	ConnectionsMax float64 `json:"connections_max"`
	CacheHitAvg    float64 `json:"cache_hit_avg_pct"`
	DataPoints     int     `json:"data_points"`
}

// summarizeUtilization computes the report summary from CPU, connection and cache-hit series
func summarizeUtilization(cpu, connections, cacheHit []float64) UtilizationSummary {
	var s UtilizationSummary
	for _, v := range cpu {
		if !stats.IsMissing(v) {
			s.DataPoints++
		}
	}
	if avg, ok := stats.Average(cpu); ok {
		s.CPUAvg = stats.Round(avg, 2)
	}
	if p95, ok := stats.Percentile(cpu, 95); ok {
		s.CPUP95 = stats.Round(p95, 2)
	}
	if max, ok := stats.Max(cpu); ok {
		s.CPUMax = stats.Round(max, 2)
	}
	if avg, ok := stats.Average(connections); ok {
		s.ConnectionsAvg = stats.Round(avg, 2)
	}
	if max, ok := stats.Max(connections); ok {
		s.ConnectionsMax = max
	}
	if avg, ok := stats.Average(cacheHit); ok {
		s.CacheHitAvg = stats.Round(avg, 2)
	}
	return s
}
