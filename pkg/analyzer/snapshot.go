package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/aurora"
	"github.com/fraser-isbester/aurora-advisor/pkg/classifier"
	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/correlation"
	"github.com/fraser-isbester/aurora-advisor/pkg/envelope"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
	"github.com/fraser-isbester/aurora-advisor/pkg/sizing"
	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
	"github.com/fraser-isbester/aurora-advisor/pkg/waits"
)

// maxDimensionLimit is the largest group size Performance Insights returns
const maxDimensionLimit = 25

// SnapshotResult contains the complete workload snapshot of one instance
type SnapshotResult struct {
	Evaluation     Evaluation                `json:"evaluation"`
	Instance       *config.InstanceInfo      `json:"instance"`
	Utilization    UtilizationSummary        `json:"utilization"`
	Categories     []classifier.Category     `json:"categories"`
	Correlation    *correlation.Result       `json:"correlation"`
	Network        *envelope.NetworkEstimate `json:"network"`
	NetworkCeiling envelope.CeilingCheck     `json:"network_ceiling"`
	Limits         envelope.Limits           `json:"limits"`
	LocalStorage   *envelope.Estimate        `json:"local_storage,omitempty"`
	Waits          *waits.Summary            `json:"waits"`
	Breakdown      waits.Breakdown           `json:"breakdown"`
	Envelope       sizing.Envelope           `json:"envelope"`
	Recommendation *sizing.Recommendation    `json:"recommendation"`
	Warnings       []string                  `json:"warnings,omitempty"`
	AnalyzedAt     time.Time                 `json:"analyzed_at"`
}

// Snapshot characterizes the workload of one provisioned instance over the
// evaluation window and recommends an instance class for it. Any collaborator
// failure aborts the evaluation.
func (a *Advisor) Snapshot(ctx context.Context, eval Evaluation) (*SnapshotResult, error) {
	log := a.logFor(eval)
	w := eval.Window

	log.Info("Fetching instance information")
	instance, err := a.catalog.GetInstance(ctx, eval.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance info: %w", err)
	}
	if instance.Serverless {
		return nil, fmt.Errorf("instance %s is serverless; snapshot sizes provisioned classes", instance.ID)
	}
	if !instance.PIEnabled {
		return nil, fmt.Errorf("performance insights is not enabled on %s", instance.ID)
	}

	log.Info("Collecting database load")
	load, err := a.waitProfile(ctx, instance, w)
	if err != nil {
		return nil, err
	}

	log.Info("Collecting metrics")
	metricCatalog, err := a.metrics.ListAvailableMetrics(ctx, instance.ResourceID, metricTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	series, err := a.metrics.FetchBatched(ctx, instance.ResourceID, seriesIDs(metricCatalog, envelopeMetrics...), w, a.config.MetricBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	aggregated, err := a.aggregated.GetAggregatedSeries(ctx, instanceQueries(instance), w, a.config.AggregatedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get cloudwatch metrics: %w", err)
	}
	log.WithFields(logrus.Fields{
		"series":     len(series),
		"cloudwatch": len(aggregated),
	}).Debug("Fetched metric series")

	classified := classifier.Classify(metricCatalog, series)
	correlated := correlation.Detect(classified.Series, a.config.CorrelationThreshold)

	network, err := envelope.EstimateNetwork(envelope.NetworkInputs{
		Topology: envelope.Topology{
			Writer:         instance.Role == config.RoleWriter,
			OtherInstances: instance.OtherInstances,
			RemoteClusters: instance.RemoteClusters,
		},
		WriteThroughput:       envelope.BytesToMB(aggregated[queryWrite]),
		WriterWriteThroughput: envelope.BytesToMB(aggregated[queryWriterWrite]),
		ClientThroughput:      envelope.BytesToMB(aggregated[queryNetwork]),
		StorageThroughput:     envelope.BytesToMB(aggregated[queryStorageNetwork]),
	})
	if errors.Is(err, envelope.ErrNoSamples) {
		return nil, evalerr.New("EstimateNetwork", "envelope", evalerr.ErrNoWorkloadData, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to estimate network: %w", err)
	}

	var warnings []string
	local, err := envelope.LocalStorage(avgSeries(series, metricLocalWrite), avgSeries(series, metricLocalRead))
	if errors.Is(err, envelope.ErrNoSamples) {
		warnings = append(warnings, "local storage throughput unavailable")
		local = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to estimate local storage: %w", err)
	}

	log.Info("Collecting load breakdown")
	breakdown, err := a.breakdown(ctx, instance, w)
	if err != nil {
		return nil, err
	}

	log.Info("Building candidate catalog")
	cat, err := a.buildCatalog(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to build candidate catalog: %w", err)
	}

	env, missing, err := a.workloadEnvelope(series, aggregated, network, local, cat.Current)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, missing...)

	log.Info("Ranking instance classes")
	rec := a.sizing.Recommend(instance.Class, env, cat.Candidates)
	limits := envelope.LimitsFor(cat.Current)

	result := &SnapshotResult{
		Evaluation:     eval,
		Instance:       instance,
		Utilization:    summarizeUtilization(avgSeries(series, metricCPU), aggregated[queryConnections], aggregated[queryCacheHit]),
		Categories:     classified.Categories,
		Correlation:    correlated,
		Network:        network,
		NetworkCeiling: envelope.CheckCeiling(network.Max, limits),
		Limits:         limits,
		LocalStorage:   local,
		Waits:          load,
		Breakdown:      breakdown,
		Envelope:       env,
		Recommendation: rec,
		Warnings:       warnings,
		AnalyzedAt:     time.Now(),
	}

	log.WithFields(logrus.Fields{
		"verdict":    rec.Verdict,
		"candidates": len(rec.Candidates),
		"rejected":   len(rec.Rejected),
	}).Info("Snapshot complete")
	return result, nil
}

// waitProfile analyzes database load by wait event. A window without load
// samples has no workload to characterize.
func (a *Advisor) waitProfile(ctx context.Context, instance *config.InstanceInfo, w aurora.Window) (*waits.Summary, error) {
	load, err := a.metrics.WaitEventLoad(ctx, instance.ResourceID, w, maxDimensionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get wait events: %w", err)
	}

	names := make([]string, 0, len(load))
	for name := range load {
		names = append(names, name)
	}
	sort.Strings(names)

	events := make([]waits.EventSeries, 0, len(names))
	for _, name := range names {
		events = append(events, waits.EventSeries{Event: name, Values: load[name]})
	}

	summary, err := waits.Analyze(events, w.PeriodSeconds())
	if errors.Is(err, waits.ErrNoSamples) {
		return nil, evalerr.New("WaitEventLoad", "load", evalerr.ErrNoWorkloadData, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to analyze wait events: %w", err)
	}
	return summary, nil
}

// breakdown ranks the top SQL, databases, users and wait events by load
func (a *Advisor) breakdown(ctx context.Context, instance *config.InstanceInfo, w aurora.Window) (waits.Breakdown, error) {
	limit := a.config.TopContributors
	piLimit := int32(min(limit, maxDimensionLimit))

	group := func(name, keyDim, nameDim string) ([]waits.Contributor, error) {
		loads, err := a.metrics.TopDimensions(ctx, instance.ResourceID, name, w, piLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s load: %w", name, err)
		}
		out := make([]waits.Contributor, 0, len(loads))
		for _, l := range loads {
			c := waits.Contributor{
				Key:  l.Dimensions[keyDim],
				Name: l.Dimensions[nameDim],
				Load: l.Total,
			}
			if name == aurora.GroupWaitEvent {
				c.Key = aurora.EventName(l.Dimensions[aurora.DimWaitEventType], c.Key)
				c.Name = c.Key
			}
			out = append(out, c)
		}
		return out, nil
	}

	var b waits.Breakdown
	sqls, err := group(aurora.GroupSQL, aurora.DimSQLID, aurora.DimSQLStatement)
	if err != nil {
		return b, err
	}
	b.SQL = waits.Rank(sqls, limit)
	for i := range b.SQL {
		text, err := a.metrics.SQLText(ctx, instance.ResourceID, b.SQL[i].Key)
		if err != nil {
			return b, fmt.Errorf("failed to get sql text: %w", err)
		}
		if text != "" {
			b.SQL[i].Name = text
		}
	}

	dbs, err := group(aurora.GroupDatabase, aurora.DimDatabaseName, aurora.DimDatabaseName)
	if err != nil {
		return b, err
	}
	b.Databases = waits.Rank(dbs, limit)

	users, err := group(aurora.GroupUser, aurora.DimUserName, aurora.DimUserName)
	if err != nil {
		return b, err
	}
	b.Users = waits.Rank(users, limit)

	events, err := group(aurora.GroupWaitEvent, aurora.DimWaitEventName, aurora.DimWaitEventName)
	if err != nil {
		return b, err
	}
	b.Waits = waits.Rank(waits.ActiveOnly(events), limit)
	return b, nil
}

// workloadEnvelope reduces the demand series to the sizing envelope under the
// configured basis. CPU is required; other dimensions fall back to zero and
// are reported as missing.
func (a *Advisor) workloadEnvelope(series, aggregated map[string][]float64, network *envelope.NetworkEstimate, local *envelope.Estimate, current envelope.HardwareSpec) (sizing.Envelope, []string, error) {
	basis := a.config.Basis
	var missing []string
	pick := func(name string, values []float64) float64 {
		v, ok := demand(values, basis)
		if !ok {
			missing = append(missing, name+" demand unavailable")
			return 0
		}
		return stats.Round(v, 4)
	}
	pickEstimate := func(e envelope.Estimate) float64 {
		if basis == config.BasisTwoSigma {
			return stats.Round(e.TwoSigma, 4)
		}
		return stats.Round(e.Max, 4)
	}

	env := sizing.Envelope{TotalMemoryGB: current.MemoryGB, CacheHitPct: 100}

	vcpus, ok := demand(stats.Scale(avgSeries(series, metricCPU), float64(current.VCPUs)/100), basis)
	if !ok {
		return env, nil, evalerr.New("Snapshot", "envelope", evalerr.ErrNoWorkloadData,
			fmt.Errorf("no %s samples", metricCPU))
	}
	env.VCPUs = stats.Round(vcpus, 4)
	env.NetworkMBps = pickEstimate(network.Estimate)
	if local != nil {
		env.LocalStorageMBps = pickEstimate(*local)
	}
	env.FilesystemGB = pick("filesystem", kbToGB(avgSeries(series, metricFileSysUsed)))
	env.Connections = pick("connections", aggregated[queryConnections])
	env.MemoryGB = pick("memory", kbToGB(avgSeries(series, metricMemoryActive)))

	if hit, ok := stats.Average(aggregated[queryCacheHit]); ok {
		env.CacheHitPct = stats.Round(hit, 2)
	} else {
		missing = append(missing, "buffer cache hit ratio unavailable")
	}

	used, err := stats.Add(avgSeries(series, metricSwapTotal), stats.Scale(avgSeries(series, metricSwapFree), -1))
	if err != nil {
		return env, nil, fmt.Errorf("failed to compute swap usage: %w", err)
	}
	if swap, ok := stats.Max(kbToGB(used)); ok {
		env.SwapGB = stats.Round(swap, 4)
	}
	return env, missing, nil
}
