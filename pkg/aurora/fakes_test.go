package aurora

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pi"
	pitypes "github.com/aws/aws-sdk-go-v2/service/pi/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/sirupsen/logrus"
)

var t0 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func testWindow(steps int) Window {
	return Window{Start: t0, End: t0.Add(time.Duration(steps) * time.Minute), Period: time.Minute}
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakePI serves every requested metric as a constant series, except those in missing.
type fakePI struct {
	mu       sync.Mutex
	calls    int
	steps    int
	value    float64
	missing  map[string]bool
	failOn   string
	err      error
	catalog  []pitypes.ResponseResourceMetric
	grouped  []pitypes.MetricKeyDataPoints
	keys     []pitypes.DimensionKeyDescription
	details  []pitypes.DimensionKeyDetail
	lastKeys *pi.DescribeDimensionKeysInput
}

func (f *fakePI) GetResourceMetrics(_ context.Context, in *pi.GetResourceMetricsInput, _ ...func(*pi.Options)) (*pi.GetResourceMetricsOutput, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := &pi.GetResourceMetricsOutput{}
	for _, q := range in.MetricQueries {
		metric := aws.ToString(q.Metric)
		if metric == f.failOn {
			return nil, f.err
		}
		if q.GroupBy != nil {
			out.MetricList = append(out.MetricList, f.grouped...)
			continue
		}
		if f.missing[metric] {
			continue
		}
		var points []pitypes.DataPoint
		for i := 0; i < f.steps; i++ {
			points = append(points, pitypes.DataPoint{
				Timestamp: aws.Time(in.StartTime.Add(time.Duration(i) * time.Minute)),
				Value:     aws.Float64(f.value),
			})
		}
		out.MetricList = append(out.MetricList, pitypes.MetricKeyDataPoints{
			Key:        &pitypes.ResponseResourceMetricKey{Metric: aws.String(metric)},
			DataPoints: points,
		})
	}
	return out, nil
}

func (f *fakePI) ListAvailableResourceMetrics(_ context.Context, in *pi.ListAvailableResourceMetricsInput, _ ...func(*pi.Options)) (*pi.ListAvailableResourceMetricsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if in.NextToken == nil && len(f.catalog) > 1 {
		return &pi.ListAvailableResourceMetricsOutput{Metrics: f.catalog[:1], NextToken: aws.String("page2")}, nil
	}
	if in.NextToken != nil {
		return &pi.ListAvailableResourceMetricsOutput{Metrics: f.catalog[1:]}, nil
	}
	return &pi.ListAvailableResourceMetricsOutput{Metrics: f.catalog}, nil
}

func (f *fakePI) DescribeDimensionKeys(_ context.Context, in *pi.DescribeDimensionKeysInput, _ ...func(*pi.Options)) (*pi.DescribeDimensionKeysOutput, error) {
	f.lastKeys = in
	return &pi.DescribeDimensionKeysOutput{Keys: f.keys}, nil
}

func (f *fakePI) GetDimensionKeyDetails(_ context.Context, _ *pi.GetDimensionKeyDetailsInput, _ ...func(*pi.Options)) (*pi.GetDimensionKeyDetailsOutput, error) {
	return &pi.GetDimensionKeyDetailsOutput{Dimensions: f.details}, nil
}

// fakeCloudWatch answers every query with the values 1 and 2 on the first two grid points.
type fakeCloudWatch struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCloudWatch) GetMetricData(_ context.Context, in *cloudwatch.GetMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	out := &cloudwatch.GetMetricDataOutput{}
	for _, q := range in.MetricDataQueries {
		out.MetricDataResults = append(out.MetricDataResults, cwResult(aws.ToString(q.Id), *in.StartTime))
	}
	return out, nil
}

type fakeRDS struct {
	instances map[string]*rds.DescribeDBInstancesOutput
	clusters  map[string]*rds.DescribeDBClustersOutput
	globals   *rds.DescribeGlobalClustersOutput
	orderable *rds.DescribeOrderableDBInstanceOptionsOutput
	params    *rds.DescribeDBParametersOutput
	err       error
}

func (f *fakeRDS) DescribeDBInstances(_ context.Context, in *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if out, ok := f.instances[aws.ToString(in.DBInstanceIdentifier)]; ok {
		return out, nil
	}
	return &rds.DescribeDBInstancesOutput{}, nil
}

func (f *fakeRDS) DescribeDBClusters(_ context.Context, in *rds.DescribeDBClustersInput, _ ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error) {
	if out, ok := f.clusters[aws.ToString(in.DBClusterIdentifier)]; ok {
		return out, nil
	}
	return &rds.DescribeDBClustersOutput{}, nil
}

func (f *fakeRDS) DescribeGlobalClusters(_ context.Context, _ *rds.DescribeGlobalClustersInput, _ ...func(*rds.Options)) (*rds.DescribeGlobalClustersOutput, error) {
	if f.globals == nil {
		return &rds.DescribeGlobalClustersOutput{}, nil
	}
	return f.globals, nil
}

func (f *fakeRDS) DescribeOrderableDBInstanceOptions(_ context.Context, _ *rds.DescribeOrderableDBInstanceOptionsInput, _ ...func(*rds.Options)) (*rds.DescribeOrderableDBInstanceOptionsOutput, error) {
	return f.orderable, nil
}

func (f *fakeRDS) DescribeDBParameters(_ context.Context, _ *rds.DescribeDBParametersInput, _ ...func(*rds.Options)) (*rds.DescribeDBParametersOutput, error) {
	return f.params, nil
}

type fakeEC2 struct {
	out   *ec2.DescribeInstanceTypesOutput
	calls int
}

func (f *fakeEC2) DescribeInstanceTypes(_ context.Context, _ *ec2.DescribeInstanceTypesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error) {
	f.calls++
	return f.out, nil
}

func cwResult(id string, start time.Time) cwtypes.MetricDataResult {
	return cwtypes.MetricDataResult{
		Id:         aws.String(id),
		Timestamps: []time.Time{start, start.Add(time.Minute)},
		Values:     []float64{1, 2},
	}
}
