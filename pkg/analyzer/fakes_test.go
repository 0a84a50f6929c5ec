package analyzer

import (
	"context"
	"io"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/aurora"
	"github.com/fraser-isbester/aurora-advisor/pkg/classifier"
	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/envelope"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

const steps = 10

var t0 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func constant(v float64) []float64 {
	out := make([]float64, steps)
	for i := range out {
		out[i] = v
	}
	return out
}

func testEvaluation(instanceID string) Evaluation {
	return Evaluation{
		ID:         "eval-1",
		InstanceID: instanceID,
		Window:     aurora.Window{Start: t0, End: t0.Add(steps * time.Minute), Period: time.Minute},
	}
}

// fakeMetrics serves constant Performance Insights series
type fakeMetrics struct {
	mu        sync.Mutex
	catalog   []classifier.MetricMetadata
	values    map[string]float64 // by series id; unlisted series are 1
	load      map[string][]float64
	dims      map[string][]aurora.DimensionLoad
	sqlText   map[string]string
	requested []string
	err       error
}

func (f *fakeMetrics) FetchBatched(_ context.Context, _ string, metrics []string, _ aurora.Window, _ int) (map[string][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requested = append(f.requested, metrics...)
	out := make(map[string][]float64, len(metrics))
	for _, m := range metrics {
		v, ok := f.values[m]
		if !ok {
			v = 1
		}
		out[m] = constant(v)
	}
	return out, nil
}

func (f *fakeMetrics) ListAvailableMetrics(_ context.Context, _ string, _ []string) ([]classifier.MetricMetadata, error) {
	return f.catalog, nil
}

func (f *fakeMetrics) WaitEventLoad(_ context.Context, _ string, _ aurora.Window, _ int32) (map[string][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.load, nil
}

func (f *fakeMetrics) TopDimensions(_ context.Context, _, group string, _ aurora.Window, _ int32) ([]aurora.DimensionLoad, error) {
	return f.dims[group], nil
}

func (f *fakeMetrics) SQLText(_ context.Context, _, sqlID string) (string, error) {
	return f.sqlText[sqlID], nil
}

// fakeAggregated serves constant CloudWatch series by query id
type fakeAggregated struct {
	mu      sync.Mutex
	values  map[string]float64 // unlisted queries are 1
	missing map[string]bool
	queries []aurora.AggregatedQuery
	err     error
}

func (f *fakeAggregated) GetAggregatedSeries(_ context.Context, queries []aurora.AggregatedQuery, _ aurora.Window, _ int) (map[string][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, queries...)
	out := make(map[string][]float64, len(queries))
	for _, q := range queries {
		if f.missing[q.ID] {
			out[q.ID] = constant(math.NaN())
			continue
		}
		v, ok := f.values[q.ID]
		if !ok {
			v = 1
		}
		out[q.ID] = constant(v)
	}
	return out, nil
}

func (f *fakeAggregated) query(id string) (aurora.AggregatedQuery, bool) {
	for _, q := range f.queries {
		if q.ID == id {
			return q, true
		}
	}
	return aurora.AggregatedQuery{}, false
}

// fakeCatalog serves instances, classes and parameters from maps
type fakeCatalog struct {
	instances map[string]*config.InstanceInfo
	members   []string
	classes   []string
	hardware  map[string]envelope.HardwareSpec
	params    map[string]string
	err       error
}

func (f *fakeCatalog) GetInstance(_ context.Context, id string) (*config.InstanceInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	inst, ok := f.instances[id]
	if !ok {
		return nil, evalerr.Malformed("DescribeDBInstances", "catalog", "instance %s not found", id)
	}
	copied := *inst
	return &copied, nil
}

func (f *fakeCatalog) ClusterMembers(_ context.Context, _ string) ([]*config.InstanceInfo, error) {
	out := make([]*config.InstanceInfo, 0, len(f.members))
	for _, id := range f.members {
		if inst, ok := f.instances[id]; ok {
			out = append(out, inst)
			continue
		}
		out = append(out, &config.InstanceInfo{ID: id, Class: "db.r6g.large"})
	}
	return out, nil
}

func (f *fakeCatalog) ListInstanceClasses(_ context.Context, _, _ string) ([]string, error) {
	return f.classes, nil
}

func (f *fakeCatalog) InstanceHardware(_ context.Context, classes []string) (map[string]envelope.HardwareSpec, error) {
	out := make(map[string]envelope.HardwareSpec)
	for _, c := range classes {
		if spec, ok := f.hardware[c]; ok {
			out[c] = spec
		}
	}
	return out, nil
}

func (f *fakeCatalog) ParameterValue(_ context.Context, _, name string) (string, error) {
	return f.params[name], nil
}

// fakePrices quotes the classes it knows and reports the rest as missing
type fakePrices struct {
	quotes map[string]cost.PriceQuote
	calls  int
}

func (f *fakePrices) Quote(_ context.Context, _, _, class string) (cost.PriceQuote, error) {
	f.calls++
	q, ok := f.quotes[class]
	if !ok {
		return cost.PriceQuote{}, evalerr.Malformed("GetProducts", "pricing", "no on-demand price for %s", class)
	}
	return q, nil
}

func quote(class, hourly string) cost.PriceQuote {
	return cost.PriceQuote{
		InstanceClass:         class,
		OnDemandHourly:        decimal.RequireFromString(hourly),
		IOOptimizedHourly:     decimal.RequireFromString(hourly).Mul(decimal.RequireFromString("1.3")),
		PerACUHour:            decimal.RequireFromString("0.12"),
		PerACUHourIOOptimized: decimal.RequireFromString("0.156"),
		PerGBMonth:            decimal.RequireFromString("0.10"),
		PerGBMonthIOOptimized: decimal.RequireFromString("0.225"),
		PerMillionIO:          decimal.RequireFromString("0.20"),
	}
}

// fixture is a two-member r6g cluster with a steady, light workload
type fixture struct {
	metrics    *fakeMetrics
	aggregated *fakeAggregated
	catalog    *fakeCatalog
	prices     *fakePrices
	config     *config.Config
}

func newFixture() *fixture {
	writer := &config.InstanceInfo{
		ID:             "orders-1",
		ResourceID:     "db-ORDERS1",
		ClusterID:      "orders",
		Class:          "db.r6g.large",
		Engine:         "aurora-postgresql",
		EngineVersion:  "15.4",
		Region:         "us-east-1",
		Role:           config.RoleWriter,
		WriterID:       "orders-1",
		OtherInstances: 1,
		StorageType:    "aurora",
		ParameterGroup: "default.aurora-postgresql15",
		PIEnabled:      true,
	}
	reader := *writer
	reader.ID = "orders-2"
	reader.ResourceID = "db-ORDERS2"
	reader.Role = config.RoleReader

	cfg := config.DefaultConfig()
	cfg.PriceCacheDir = ""

	return &fixture{
		metrics: &fakeMetrics{
			catalog: []classifier.MetricMetadata{
				{Metric: metricCPU, Description: "CPU total", Unit: "Percent"},
				{Metric: "db.Transactions.xact_commit", Description: "Commits", Unit: "Transactions per second"},
			},
			values: map[string]float64{
				classifier.SeriesID(metricCPU, classifier.StatAvg):          50,
				classifier.SeriesID(metricMemoryActive, classifier.StatAvg): 4 * 1024 * 1024,
			},
			load: map[string][]float64{
				"IO:XactSync": constant(1),
				"CPU":         constant(0.5),
			},
			dims: map[string][]aurora.DimensionLoad{
				aurora.GroupSQL: {
					{Dimensions: map[string]string{aurora.DimSQLID: "q1", aurora.DimSQLStatement: "SELECT * FROM ord..."}, Total: 1.2},
					{Dimensions: map[string]string{aurora.DimSQLID: "q2", aurora.DimSQLStatement: "UPDATE stock"}, Total: 0.3},
				},
				aurora.GroupDatabase: {
					{Dimensions: map[string]string{aurora.DimDatabaseName: "orders"}, Total: 1.5},
				},
				aurora.GroupUser: {
					{Dimensions: map[string]string{aurora.DimUserName: "app"}, Total: 1.4},
					{Dimensions: map[string]string{aurora.DimUserName: "etl"}, Total: 0.1},
				},
				aurora.GroupWaitEvent: {
					{Dimensions: map[string]string{aurora.DimWaitEventName: "XactSync", aurora.DimWaitEventType: "IO"}, Total: 1},
					{Dimensions: map[string]string{aurora.DimWaitEventName: "PgSleep", aurora.DimWaitEventType: "Timeout"}, Total: 2},
				},
			},
			sqlText: map[string]string{"q1": "SELECT * FROM orders WHERE id = $1"},
		},
		aggregated: &fakeAggregated{
			values: map[string]float64{
				queryNetwork:        10 * envelope.BytesPerMB,
				queryStorageNetwork: 5 * envelope.BytesPerMB,
				queryWrite:          1 * envelope.BytesPerMB,
				queryWriterWrite:    2 * envelope.BytesPerMB,
				queryConnections:    100,
				queryCacheHit:       99,
				queryCPU:            50,
				queryVolume:         100 * bytesPerGB,
				queryVolumeReads:    1000,
				queryVolumeWrites:   500,
			},
		},
		catalog: &fakeCatalog{
			instances: map[string]*config.InstanceInfo{writer.ID: writer, reader.ID: &reader},
			members:   []string{writer.ID, reader.ID},
			classes:   []string{"db.r6g.large", "db.r6g.xlarge", "db.t4g.medium"},
			hardware: map[string]envelope.HardwareSpec{
				"db.r6g.large": {
					VCPUs: 2, MemoryGB: 16, NetworkPerformance: "Up to 10 Gigabit",
					BaselineBandwidthGbps: 0.75, PeakBandwidthGbps: 10, EBSMaxMBps: 593.75, CurrentGeneration: true,
					EBSBaselineMBps: 78.75, EBSBaselineIOPS: 3600, EBSMaxIOPS: 20000,
				},
				"db.r6g.xlarge": {
					VCPUs: 4, MemoryGB: 32, NetworkPerformance: "Up to 10 Gigabit",
					BaselineBandwidthGbps: 1.25, PeakBandwidthGbps: 10, EBSMaxMBps: 593.75, CurrentGeneration: true,
				},
				"db.t4g.medium": {
					VCPUs: 2, MemoryGB: 4, NetworkPerformance: "Up to 5 Gigabit",
					BaselineBandwidthGbps: 0.256, PeakBandwidthGbps: 5, EBSMaxMBps: 260.62, CurrentGeneration: true,
				},
			},
			params: map[string]string{maxConnectionsParam: "LEAST({DBInstanceClassMemory/9531392},5000)"},
		},
		prices: &fakePrices{quotes: map[string]cost.PriceQuote{
			"db.r6g.large":  quote("db.r6g.large", "0.26"),
			"db.r6g.xlarge": quote("db.r6g.xlarge", "0.52"),
			"db.t4g.medium": quote("db.t4g.medium", "0.073"),
		}},
		config: cfg,
	}
}

func (f *fixture) advisor() *Advisor {
	return NewAdvisor(f.metrics, f.aggregated, f.catalog, f.prices, f.config, quietLog())
}
