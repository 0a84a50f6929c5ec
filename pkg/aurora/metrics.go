package aurora

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pi"
	pitypes "github.com/aws/aws-sdk-go-v2/service/pi/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/fraser-isbester/aurora-advisor/pkg/classifier"
)

// Performance Insights dimension groups and keys
const (
	GroupWaitEvent = "db.wait_event"
	GroupSQL       = "db.sql"
	GroupDatabase  = "db"
	GroupUser      = "db.user"

	DimWaitEventName = "db.wait_event.name"
	DimWaitEventType = "db.wait_event.type"
	DimSQLID         = "db.sql.id"
	DimSQLStatement  = "db.sql.statement"
	DimDatabaseName  = "db.name"
	DimUserName      = "db.user.name"

	// LoadMetric is database load in average active sessions.
	LoadMetric = "db.load.avg"
)

// PerformanceInsightsAPI is the subset of the Performance Insights client the metrics client uses
type PerformanceInsightsAPI interface {
	GetResourceMetrics(ctx context.Context, in *pi.GetResourceMetricsInput, optFns ...func(*pi.Options)) (*pi.GetResourceMetricsOutput, error)
	ListAvailableResourceMetrics(ctx context.Context, in *pi.ListAvailableResourceMetricsInput, optFns ...func(*pi.Options)) (*pi.ListAvailableResourceMetricsOutput, error)
	DescribeDimensionKeys(ctx context.Context, in *pi.DescribeDimensionKeysInput, optFns ...func(*pi.Options)) (*pi.DescribeDimensionKeysOutput, error)
	GetDimensionKeyDetails(ctx context.Context, in *pi.GetDimensionKeyDetailsInput, optFns ...func(*pi.Options)) (*pi.GetDimensionKeyDetailsOutput, error)
}

// MetricsClient handles Performance Insights metrics retrieval
type MetricsClient struct {
	api PerformanceInsightsAPI
	log *logrus.Entry
}

// NewMetricsClient creates a new metrics client
func NewMetricsClient(api PerformanceInsightsAPI, log *logrus.Entry) *MetricsClient {
	return &MetricsClient{
		api: api,
		log: log.WithField("component", "pi"),
	}
}

// Grouping splits a metric by a dimension group
type Grouping struct {
	Group      string
	Dimensions []string
	Limit      int32
}

// SeriesQuery describes one GetResourceMetrics call
type SeriesQuery struct {
	ResourceID string
	Metrics    []string
	Window     Window
	GroupBy    *Grouping
	Filter     map[string]string
}

// Series is one returned metric, or one member of a grouped metric, aligned on the window grid
type Series struct {
	Metric     string
	Dimensions map[string]string
	Values     []float64
}

// GetSeries retrieves the metrics of q, following pagination
func (m *MetricsClient) GetSeries(ctx context.Context, q SeriesQuery) ([]Series, error) {
	queries := make([]pitypes.MetricQuery, 0, len(q.Metrics))
	for _, metric := range q.Metrics {
		mq := pitypes.MetricQuery{
			Metric: aws.String(metric),
			Filter: q.Filter,
		}
		if q.GroupBy != nil {
			mq.GroupBy = &pitypes.DimensionGroup{
				Group:      aws.String(q.GroupBy.Group),
				Dimensions: q.GroupBy.Dimensions,
			}
			if q.GroupBy.Limit > 0 {
				mq.GroupBy.Limit = aws.Int32(q.GroupBy.Limit)
			}
		}
		queries = append(queries, mq)
	}

	input := &pi.GetResourceMetricsInput{
		ServiceType:     pitypes.ServiceTypeRds,
		Identifier:      aws.String(q.ResourceID),
		MetricQueries:   queries,
		StartTime:       aws.Time(q.Window.Start),
		EndTime:         aws.Time(q.Window.End),
		PeriodInSeconds: aws.Int32(int32(q.Window.PeriodSeconds())),
	}

	var series []Series
	for {
		out, err := m.api.GetResourceMetrics(ctx, input)
		if err != nil {
			return nil, wrap("GetResourceMetrics", "metrics", err)
		}

		for _, kd := range out.MetricList {
			if kd.Key == nil || kd.Key.Metric == nil {
				continue
			}
			timestamps := make([]time.Time, 0, len(kd.DataPoints))
			values := make([]float64, 0, len(kd.DataPoints))
			for _, dp := range kd.DataPoints {
				if dp.Timestamp == nil || dp.Value == nil {
					continue
				}
				timestamps = append(timestamps, *dp.Timestamp)
				values = append(values, *dp.Value)
			}
			series = append(series, Series{
				Metric:     *kd.Key.Metric,
				Dimensions: kd.Key.Dimensions,
				Values:     q.Window.Align(timestamps, values),
			})
		}

		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	return series, nil
}

// FetchBatched retrieves ungrouped metrics in batches of at most batchSize,
// issued concurrently. Any failing batch aborts the whole fetch. Metrics the
// API does not return come back as fully missing series.
func (m *MetricsClient) FetchBatched(ctx context.Context, resourceID string, metrics []string, w Window, batchSize int) (map[string][]float64, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}

	var batches [][]string
	for start := 0; start < len(metrics); start += batchSize {
		end := min(start+batchSize, len(metrics))
		batches = append(batches, metrics[start:end])
	}

	results := make([][]Series, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			series, err := m.GetSeries(gctx, SeriesQuery{ResourceID: resourceID, Metrics: batch, Window: w})
			if err != nil {
				return err
			}
			results[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(metrics))
	for _, series := range results {
		for _, s := range series {
			out[s.Metric] = s.Values
		}
	}
	for _, metric := range metrics {
		if _, ok := out[metric]; !ok {
			out[metric] = w.Empty()
		}
	}

	m.log.WithFields(logrus.Fields{
		"resource": resourceID,
		"metrics":  len(metrics),
		"batches":  len(batches),
	}).Debug("Fetched metric batches")
	return out, nil
}

// ListAvailableMetrics returns the catalog of metrics of the given types, e.g. "os" and "db"
func (m *MetricsClient) ListAvailableMetrics(ctx context.Context, resourceID string, metricTypes []string) ([]classifier.MetricMetadata, error) {
	input := &pi.ListAvailableResourceMetricsInput{
		ServiceType: pitypes.ServiceTypeRds,
		Identifier:  aws.String(resourceID),
		MetricTypes: metricTypes,
	}

	var catalog []classifier.MetricMetadata
	for {
		out, err := m.api.ListAvailableResourceMetrics(ctx, input)
		if err != nil {
			return nil, wrap("ListAvailableResourceMetrics", "metrics", err)
		}
		for _, rm := range out.Metrics {
			catalog = append(catalog, classifier.MetricMetadata{
				Metric:      aws.ToString(rm.Metric),
				Description: aws.ToString(rm.Description),
				Unit:        aws.ToString(rm.Unit),
			})
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}

	sort.Slice(catalog, func(i, j int) bool {
		return catalog[i].Metric < catalog[j].Metric
	})
	return catalog, nil
}

// WaitEventLoad returns database load per wait event. Event names are
// normalized to "type:name".
func (m *MetricsClient) WaitEventLoad(ctx context.Context, resourceID string, w Window, limit int32) (map[string][]float64, error) {
	series, err := m.GetSeries(ctx, SeriesQuery{
		ResourceID: resourceID,
		Metrics:    []string{LoadMetric},
		Window:     w,
		GroupBy:    &Grouping{Group: GroupWaitEvent, Limit: limit},
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(series))
	for _, s := range series {
		name := s.Dimensions[DimWaitEventName]
		if name == "" {
			// ungrouped total
			continue
		}
		out[EventName(s.Dimensions[DimWaitEventType], name)] = s.Values
	}
	return out, nil
}

// EventName qualifies a wait event name with its type, e.g. "IO:XactSync"
func EventName(typ, name string) string {
	if typ == "" || strings.HasPrefix(name, typ+":") {
		return name
	}
	return typ + ":" + name
}

// DimensionLoad is one dimension member's average load over the window
type DimensionLoad struct {
	Dimensions map[string]string
	Total      float64
}

// TopDimensions returns the members of group with the highest database load
func (m *MetricsClient) TopDimensions(ctx context.Context, resourceID, group string, w Window, limit int32) ([]DimensionLoad, error) {
	input := &pi.DescribeDimensionKeysInput{
		ServiceType:     pitypes.ServiceTypeRds,
		Identifier:      aws.String(resourceID),
		Metric:          aws.String(LoadMetric),
		StartTime:       aws.Time(w.Start),
		EndTime:         aws.Time(w.End),
		PeriodInSeconds: aws.Int32(int32(w.PeriodSeconds())),
		GroupBy: &pitypes.DimensionGroup{
			Group: aws.String(group),
			Limit: aws.Int32(limit),
		},
	}

	out, err := m.api.DescribeDimensionKeys(ctx, input)
	if err != nil {
		return nil, wrap("DescribeDimensionKeys", "load", err)
	}

	loads := make([]DimensionLoad, 0, len(out.Keys))
	for _, k := range out.Keys {
		loads = append(loads, DimensionLoad{
			Dimensions: k.Dimensions,
			Total:      aws.ToFloat64(k.Total),
		})
	}
	return loads, nil
}

// SQLText resolves the full statement text of a SQL id. Performance Insights
// truncates statements in grouped results.
func (m *MetricsClient) SQLText(ctx context.Context, resourceID, sqlID string) (string, error) {
	out, err := m.api.GetDimensionKeyDetails(ctx, &pi.GetDimensionKeyDetailsInput{
		ServiceType:         pitypes.ServiceTypeRds,
		Identifier:          aws.String(resourceID),
		Group:               aws.String(GroupSQL),
		GroupIdentifier:     aws.String(sqlID),
		RequestedDimensions: []string{DimSQLStatement},
	})
	if err != nil {
		return "", wrap("GetDimensionKeyDetails", "load", err)
	}

	for _, d := range out.Dimensions {
		if aws.ToString(d.Dimension) == DimSQLStatement && d.Status == pitypes.DetailStatusAvailable {
			return aws.ToString(d.Value), nil
		}
	}
	return "", nil
}
