package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/aurora"
	"github.com/fraser-isbester/aurora-advisor/pkg/classifier"
	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
	"github.com/fraser-isbester/aurora-advisor/pkg/serverless"
	"github.com/fraser-isbester/aurora-advisor/pkg/stats"
)

// ServerlessResult is the serverless capacity and cost estimate of one instance
type ServerlessResult struct {
	Evaluation Evaluation                `json:"evaluation"`
	Instance   *config.InstanceInfo      `json:"instance"`
	Estimate   *serverless.Estimate      `json:"estimate"`
	Quote      cost.PriceQuote           `json:"quote"`
	Cost       cost.ServerlessComparison `json:"cost"`
	Storage    []cost.StorageTier        `json:"storage"`
	AnalyzedAt time.Time                 `json:"analyzed_at"`
}

// ServerlessEstimate replays the window's CPU and buffer-cache activity through
// the ACU model and prices the result against the instance's provisioned class.
// It also compares standard and I/O-optimized storage for the whole cluster.
func (a *Advisor) ServerlessEstimate(ctx context.Context, eval Evaluation) (*ServerlessResult, error) {
	log := a.logFor(eval)
	w := eval.Window

	log.Info("Fetching instance information")
	instance, err := a.catalog.GetInstance(ctx, eval.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance info: %w", err)
	}
	if instance.Serverless {
		return nil, fmt.Errorf("instance %s is already serverless", instance.ID)
	}

	specs, err := a.catalog.InstanceHardware(ctx, []string{instance.Class})
	if err != nil {
		return nil, fmt.Errorf("failed to get instance hardware: %w", err)
	}
	spec, ok := specs[instance.Class]
	if !ok {
		return nil, evalerr.Malformed("InstanceHardware", "catalog", "no hardware description for %s", instance.Class)
	}

	quote, err := a.prices.Quote(ctx, instance.Engine, instance.Region, instance.Class)
	if err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}

	log.Info("Collecting capacity metrics")
	cpu, err := a.aggregated.GetAggregatedSeries(ctx, []aurora.AggregatedQuery{
		aurora.InstanceQuery(queryCPU, "CPUUtilization", instance.ID),
	}, w, a.config.AggregatedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get cloudwatch metrics: %w", err)
	}
	if _, ok := stats.Max(cpu[queryCPU]); !ok {
		return nil, evalerr.New("ServerlessEstimate", "capacity", evalerr.ErrNoWorkloadData,
			errors.New("no CPUUtilization samples"))
	}

	logical := classifier.SeriesID(logicalReadsMetric(instance.Engine), classifier.StatAvg)
	readIOPS := classifier.SeriesID(metricReadIOPS, classifier.StatAvg)
	series, err := a.metrics.FetchBatched(ctx, instance.ResourceID, []string{logical, readIOPS}, w, a.config.MetricBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}

	est, err := a.serverlessConfig().Estimate(serverless.Inputs{
		VCPUs:          float64(spec.VCPUs),
		CPUUtilization: cpu[queryCPU],
		LogicalReads:   series[logical],
		ReadIOPS:       series[readIOPS],
	})
	if errors.Is(err, serverless.ErrNoSamples) {
		return nil, evalerr.New("ServerlessEstimate", "capacity", evalerr.ErrNoWorkloadData, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to estimate capacity: %w", err)
	}

	comparison := cost.CompareServerless(est.Smoothed, w.PeriodSeconds(), quote, instance.IOOptimized())

	log.Info("Comparing cluster storage configurations")
	storage, err := a.storageComparison(ctx, instance, quote, w)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"average_acus": est.Average,
		"max_acus":     est.SuggestedMaxACUs,
	}).Info("Serverless estimate complete")

	return &ServerlessResult{
		Evaluation: eval,
		Instance:   instance,
		Estimate:   est,
		Quote:      quote,
		Cost:       comparison,
		Storage:    storage,
		AnalyzedAt: time.Now(),
	}, nil
}

// storageComparison prices every cluster member plus the cluster volume under
// both storage configurations. Serverless members are billed on their recorded
// capacity; provisioned members on their class for the whole window.
func (a *Advisor) storageComparison(ctx context.Context, instance *config.InstanceInfo, quote cost.PriceQuote, w aurora.Window) ([]cost.StorageTier, error) {
	if instance.ClusterID == "" {
		return nil, evalerr.Malformed("DescribeDBInstances", "catalog", "instance %s has no cluster", instance.ID)
	}
	members, err := a.catalog.ClusterMembers(ctx, instance.ClusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster members: %w", err)
	}

	queries := clusterQueries(instance.ClusterID)
	for i, m := range members {
		if m.Serverless {
			queries = append(queries, aurora.InstanceQuery(capacityQueryID(i), "ServerlessDatabaseCapacity", m.ID))
		}
	}
	series, err := a.aggregated.GetAggregatedSeries(ctx, queries, w, a.config.AggregatedBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster metrics: %w", err)
	}

	usages := make([]cost.InstanceUsage, 0, len(members))
	for i, m := range members {
		if m.Serverless {
			usages = append(usages, cost.InstanceUsage{
				ID:         m.ID,
				Serverless: true,
				ACUHours:   cost.ACUHours(series[capacityQueryID(i)], w.PeriodSeconds()),
				Quote:      quote,
			})
			continue
		}

		q := quote
		if m.Class != instance.Class {
			q, err = a.prices.Quote(ctx, m.Engine, m.Region, m.Class)
			if err != nil {
				return nil, fmt.Errorf("failed to get prices for %s: %w", m.ID, err)
			}
		}
		usages = append(usages, cost.InstanceUsage{ID: m.ID, Hours: w.Hours(), Quote: q})
	}

	volume, _ := stats.Max(series[queryVolume])
	reads, _ := stats.Sum(series[queryVolumeReads])
	writes, _ := stats.Sum(series[queryVolumeWrites])

	return cost.CompareStorage(usages, cost.StorageUsage{
		StorageGB: volume / bytesPerGB,
		IOs:       reads + writes,
		Hours:     w.Hours(),
		Quote:     quote,
	}), nil
}
