package aurora

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RDSNamespace is the CloudWatch namespace of RDS and Aurora metrics
const RDSNamespace = "AWS/RDS"

// CloudWatchAPI is the subset of the CloudWatch client the aggregated client uses
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, in *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// AggregatedClient handles CloudWatch metric retrieval
type AggregatedClient struct {
	api CloudWatchAPI
	log *logrus.Entry
}

// NewAggregatedClient creates a new CloudWatch client
func NewAggregatedClient(api CloudWatchAPI, log *logrus.Entry) *AggregatedClient {
	return &AggregatedClient{
		api: api,
		log: log.WithField("component", "cloudwatch"),
	}
}

// AggregatedQuery is one CloudWatch metric to retrieve
type AggregatedQuery struct {
	ID         string // Must start with a lowercase letter
	Namespace  string // Defaults to AWS/RDS
	Metric     string
	Dimensions map[string]string
	Stat       string // Defaults to Average
}

// InstanceQuery builds a query for a per-instance RDS metric
func InstanceQuery(id, metric, instanceID string) AggregatedQuery {
	return AggregatedQuery{
		ID:         id,
		Metric:     metric,
		Dimensions: map[string]string{"DBInstanceIdentifier": instanceID},
	}
}

// ClusterQuery builds a query for a per-cluster RDS metric
func ClusterQuery(id, metric, clusterID, stat string) AggregatedQuery {
	return AggregatedQuery{
		ID:         id,
		Metric:     metric,
		Dimensions: map[string]string{"DBClusterIdentifier": clusterID},
		Stat:       stat,
	}
}

// GetAggregatedSeries retrieves queries in batches of at most batchSize and
// returns each result aligned on the window grid, keyed by query id.
func (a *AggregatedClient) GetAggregatedSeries(ctx context.Context, queries []AggregatedQuery, w Window, batchSize int) (map[string][]float64, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	var batches [][]AggregatedQuery
	for start := 0; start < len(queries); start += batchSize {
		batches = append(batches, queries[start:min(start+batchSize, len(queries))])
	}

	results := make([]map[string][]float64, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			res, err := a.fetch(gctx, batch, w)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(queries))
	for _, res := range results {
		for id, values := range res {
			out[id] = values
		}
	}
	for _, q := range queries {
		if _, ok := out[q.ID]; !ok {
			out[q.ID] = w.Empty()
		}
	}

	a.log.WithFields(logrus.Fields{
		"queries": len(queries),
		"batches": len(batches),
	}).Debug("Fetched CloudWatch metrics")
	return out, nil
}

// fetch runs one GetMetricData batch, following pagination
func (a *AggregatedClient) fetch(ctx context.Context, batch []AggregatedQuery, w Window) (map[string][]float64, error) {
	period := aws.Int32(int32(w.PeriodSeconds()))
	dataQueries := make([]cwtypes.MetricDataQuery, 0, len(batch))
	for _, q := range batch {
		namespace := q.Namespace
		if namespace == "" {
			namespace = RDSNamespace
		}
		stat := q.Stat
		if stat == "" {
			stat = "Average"
		}

		dims := make([]cwtypes.Dimension, 0, len(q.Dimensions))
		for name, value := range q.Dimensions {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)})
		}

		dataQueries = append(dataQueries, cwtypes.MetricDataQuery{
			Id: aws.String(q.ID),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String(namespace),
					MetricName: aws.String(q.Metric),
					Dimensions: dims,
				},
				Period: period,
				Stat:   aws.String(stat),
			},
			ReturnData: aws.Bool(true),
		})
	}

	input := &cloudwatch.GetMetricDataInput{
		MetricDataQueries: dataQueries,
		StartTime:         aws.Time(w.Start),
		EndTime:           aws.Time(w.End),
		ScanBy:            cwtypes.ScanByTimestampAscending,
	}

	timestamps := make(map[string][]time.Time)
	values := make(map[string][]float64)
	for {
		out, err := a.api.GetMetricData(ctx, input)
		if err != nil {
			return nil, wrap("GetMetricData", "metrics", err)
		}
		for _, r := range out.MetricDataResults {
			id := aws.ToString(r.Id)
			timestamps[id] = append(timestamps[id], r.Timestamps...)
			values[id] = append(values[id], r.Values...)
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	res := make(map[string][]float64, len(values))
	for id := range values {
		res[id] = w.Align(timestamps[id], values[id])
	}
	return res, nil
}
