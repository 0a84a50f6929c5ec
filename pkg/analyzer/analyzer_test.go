package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/envelope"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
	"github.com/fraser-isbester/aurora-advisor/pkg/sizing"
)

func TestNewEvaluation(t *testing.T) {
	f := newFixture()
	f.config.Window = time.Hour
	a := f.advisor()

	eval := a.NewEvaluation("orders-1", t0.Add(90*time.Second))
	assert.NotEmpty(t, eval.ID)
	assert.Equal(t, "orders-1", eval.InstanceID)
	assert.Equal(t, t0.Add(time.Minute), eval.Window.End)
	assert.Equal(t, t0.Add(time.Minute-time.Hour), eval.Window.Start)
	assert.Equal(t, time.Minute, eval.Window.Period)

	other := a.NewEvaluation("orders-1", t0)
	assert.NotEqual(t, eval.ID, other.ID)
}

func TestSnapshot(t *testing.T) {
	f := newFixture()
	result, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)

	assert.Equal(t, "eval-1", result.Evaluation.ID)
	assert.Equal(t, "db.r6g.large", result.Instance.Class)
	assert.NotEmpty(t, result.Categories)

	// Load
	assert.Equal(t, 1.5, result.Waits.AAS)
	assert.Equal(t, 900.0, result.Waits.DBTimeSeconds)
	require.Len(t, result.Breakdown.SQL, 2)
	assert.Equal(t, "SELECT * FROM orders WHERE id = $1", result.Breakdown.SQL[0].Name)
	assert.Equal(t, "UPDATE stock", result.Breakdown.SQL[1].Name)
	assert.Equal(t, 80.0, result.Breakdown.SQL[0].Ratio)
	require.Len(t, result.Breakdown.Waits, 1)
	assert.Equal(t, "IO:XactSync", result.Breakdown.Waits[0].Name)
	assert.Equal(t, 100.0, result.Breakdown.Waits[0].Ratio)
	assert.Equal(t, "app", result.Breakdown.Users[0].Key)

	// Writer ships its writes to the one other member
	assert.Equal(t, 16.0, result.Network.Max)
	assert.Equal(t, 16.0, result.Network.Avg)
	assert.Equal(t, 1250.0, result.NetworkCeiling.CeilingMBps)
	require.NotNil(t, result.NetworkCeiling.BaselineMBps)
	assert.Equal(t, 93.75, *result.NetworkCeiling.BaselineMBps)
	assert.Equal(t, 20000, result.Limits.EBSMaxIOPS)
	assert.Equal(t, 3600, result.Limits.EBSBaselineIOPS)
	assert.True(t, result.Limits.EBSBurstable)
	_, ok := f.aggregated.query(queryWriterWrite)
	assert.False(t, ok)

	assert.Equal(t, 1.0, result.Envelope.VCPUs)
	assert.Equal(t, 4.0, result.Envelope.MemoryGB)
	assert.Equal(t, 100.0, result.Envelope.Connections)
	assert.Equal(t, 99.0, result.Envelope.CacheHitPct)
	assert.Equal(t, 16.0, result.Envelope.TotalMemoryGB)
	assert.Zero(t, result.Envelope.SwapGB)

	rec := result.Recommendation
	assert.Equal(t, sizing.VerdictNoChange, rec.Verdict)
	require.NotNil(t, rec.Top())
	assert.Equal(t, "db.r6g.large", rec.Top().Class)
	require.Len(t, rec.Rejected, 1)
	assert.Equal(t, "db.t4g.medium", rec.Rejected[0].Class)

	_, err = json.Marshal(result)
	assert.NoError(t, err)
}

func TestSnapshotFetchesEnvelopeMetrics(t *testing.T) {
	f := newFixture()
	_, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)

	assert.Contains(t, f.metrics.requested, "os.cpuUtilization.total.avg")
	assert.Contains(t, f.metrics.requested, "os.memory.active.max")
	assert.Contains(t, f.metrics.requested, "db.Transactions.xact_commit.min")
}

func TestSnapshotReader(t *testing.T) {
	f := newFixture()
	result, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-2"))
	require.NoError(t, err)

	q, ok := f.aggregated.query(queryWriterWrite)
	require.True(t, ok)
	assert.Equal(t, "orders-1", q.Dimensions["DBInstanceIdentifier"])

	// A reader receives the writer's writes once
	assert.Equal(t, 17.0, result.Network.Max)
}

func TestSnapshotBasis(t *testing.T) {
	f := newFixture()
	f.config.Basis = config.BasisTwoSigma
	result, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)

	// Constant series have no spread
	assert.Equal(t, result.Network.TwoSigma, result.Envelope.NetworkMBps)
	assert.Equal(t, 1.0, result.Envelope.VCPUs)
}

func TestSnapshotMemoryPressure(t *testing.T) {
	f := newFixture()
	f.aggregated.values[queryCacheHit] = 80
	f.catalog.hardware["db.r6g.medium"] = envelope.HardwareSpec{
		VCPUs: 1, MemoryGB: 8, NetworkPerformance: "Up to 10 Gigabit",
		BaselineBandwidthGbps: 0.5, PeakBandwidthGbps: 10, EBSMaxMBps: 593.75, CurrentGeneration: true,
	}
	f.catalog.classes = append(f.catalog.classes, "db.r6g.medium")
	f.metrics.values["os.cpuUtilization.total.avg"] = 10

	result, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)

	var rejected []string
	for _, r := range result.Recommendation.Rejected {
		rejected = append(rejected, r.Class)
	}
	assert.Contains(t, rejected, "db.r6g.medium")
	assert.NotEmpty(t, result.Recommendation.Warnings)
}

func TestSnapshotUnpricedCandidate(t *testing.T) {
	f := newFixture()
	delete(f.prices.quotes, "db.r6g.xlarge")

	result, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)

	var found bool
	for _, c := range result.Recommendation.Candidates {
		if c.Class == "db.r6g.xlarge" {
			found = true
			assert.True(t, c.HourlyPrice.IsZero())
			assert.Nil(t, c.PriceDeltaPct)
		}
	}
	assert.True(t, found)
}

func TestSnapshotErrors(t *testing.T) {
	t.Run("current class unpriced", func(t *testing.T) {
		f := newFixture()
		delete(f.prices.quotes, "db.r6g.large")
		_, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
		assert.True(t, errors.Is(err, evalerr.ErrMalformedCatalogEntry))
	})

	t.Run("no load", func(t *testing.T) {
		f := newFixture()
		f.metrics.load = map[string][]float64{"Timeout:PgSleep": constant(1)}
		_, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
		assert.True(t, errors.Is(err, evalerr.ErrNoWorkloadData))
	})

	t.Run("no network samples", func(t *testing.T) {
		f := newFixture()
		f.aggregated.missing = map[string]bool{queryNetwork: true}
		_, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
		assert.True(t, errors.Is(err, evalerr.ErrNoWorkloadData))
	})

	t.Run("collaborator unavailable", func(t *testing.T) {
		f := newFixture()
		f.metrics.err = evalerr.Collaborator("GetResourceMetrics", "metrics", &smithy.GenericAPIError{Code: "ThrottlingException"})
		_, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
		assert.True(t, errors.Is(err, evalerr.ErrCollaboratorUnavailable))
	})

	t.Run("unknown instance", func(t *testing.T) {
		f := newFixture()
		_, err := f.advisor().Snapshot(context.Background(), testEvaluation("missing"))
		assert.True(t, errors.Is(err, evalerr.ErrMalformedCatalogEntry))
	})

	t.Run("serverless", func(t *testing.T) {
		f := newFixture()
		f.catalog.instances["orders-1"].Serverless = true
		_, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
		assert.Error(t, err)
	})

	t.Run("performance insights disabled", func(t *testing.T) {
		f := newFixture()
		f.catalog.instances["orders-1"].PIEnabled = false
		_, err := f.advisor().Snapshot(context.Background(), testEvaluation("orders-1"))
		assert.Error(t, err)
	})
}

func TestServerlessEstimate(t *testing.T) {
	f := newFixture()
	f.catalog.instances["orders-3"] = &config.InstanceInfo{ID: "orders-3", Class: "db.serverless", Serverless: true}
	f.catalog.members = []string{"orders-1", "orders-2", "orders-3"}

	result, err := f.advisor().ServerlessEstimate(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)

	assert.Len(t, result.Estimate.Smoothed, steps)
	assert.GreaterOrEqual(t, result.Estimate.SuggestedMaxACUs, result.Estimate.SuggestedMinACUs)
	assert.InDelta(t, float64(steps)/60, result.Cost.Hours, 1e-9)
	require.Len(t, result.Cost.Tiers, 1)
	assert.Equal(t, cost.OnDemand, result.Cost.Tiers[0].Term)

	q, ok := f.aggregated.query(capacityQueryID(2))
	require.True(t, ok)
	assert.Equal(t, "ServerlessDatabaseCapacity", q.Metric)
	_, ok = f.aggregated.query(capacityQueryID(1))
	assert.False(t, ok)

	require.Len(t, result.Storage, 1)
	tier := result.Storage[0]
	assert.False(t, tier.ServerlessStandard.IsZero())
	assert.False(t, tier.ProvisionedStandard.IsZero())
	assert.True(t, tier.StorageIOOpt.IsPositive())

	assert.Contains(t, f.metrics.requested, "db.Cache.blks_hit.avg")
	assert.Contains(t, f.metrics.requested, "os.diskIO.auroraStorage.readIOsPS.avg")

	_, err = json.Marshal(result)
	assert.NoError(t, err)
}

func TestServerlessEstimateErrors(t *testing.T) {
	t.Run("no cpu samples", func(t *testing.T) {
		f := newFixture()
		f.aggregated.missing = map[string]bool{queryCPU: true}
		_, err := f.advisor().ServerlessEstimate(context.Background(), testEvaluation("orders-1"))
		assert.True(t, errors.Is(err, evalerr.ErrNoWorkloadData))
	})

	t.Run("already serverless", func(t *testing.T) {
		f := newFixture()
		f.catalog.instances["orders-1"].Serverless = true
		_, err := f.advisor().ServerlessEstimate(context.Background(), testEvaluation("orders-1"))
		assert.Error(t, err)
	})

	t.Run("unpriced class", func(t *testing.T) {
		f := newFixture()
		delete(f.prices.quotes, "db.r6g.large")
		_, err := f.advisor().ServerlessEstimate(context.Background(), testEvaluation("orders-1"))
		assert.True(t, errors.Is(err, evalerr.ErrMalformedCatalogEntry))
	})
}

func TestSnapshotCluster(t *testing.T) {
	f := newFixture()
	f.catalog.instances["orders-3"] = &config.InstanceInfo{ID: "orders-3", Class: "db.serverless", Serverless: true}
	f.catalog.members = []string{"orders-1", "orders-2", "orders-3", "orders-9"}

	result, err := f.advisor().SnapshotCluster(context.Background(), "orders", t0.Add(steps*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalInstances)
	assert.Equal(t, 2, result.AnalyzedInstances)
	assert.Contains(t, result.Failures, "orders-9")
	assert.NotEqual(t, result.Results[0].Evaluation.ID, result.Results[1].Evaluation.ID)
	assert.Empty(t, result.Resizable())

	var buf bytes.Buffer
	result.PrintSummary(&buf)
	assert.Contains(t, buf.String(), "No instances require resizing")
	assert.Contains(t, buf.String(), "orders-9")
}

func TestResizePlan(t *testing.T) {
	snapshot := func(id string, role config.Role, verdict sizing.Verdict, dir config.ScaleDirection, cpuP95 float64) *SnapshotResult {
		rec := &sizing.Recommendation{Verdict: verdict, CurrentClass: "db.r6g.large"}
		if verdict != sizing.VerdictInsufficientCapacity {
			rec.Candidates = []sizing.Candidate{{Class: "db.r6g.xlarge", Direction: dir}}
		}
		return &SnapshotResult{
			Instance:       &config.InstanceInfo{ID: id, Role: role, Class: "db.r6g.large"},
			Utilization:    UtilizationSummary{CPUP95: cpuP95},
			Recommendation: rec,
		}
	}

	result := &ClusterResult{Results: []*SnapshotResult{
		snapshot("writer", config.RoleWriter, sizing.VerdictResize, config.ScaleUp, 85),
		snapshot("reader-a", config.RoleReader, sizing.VerdictResize, config.ScaleDown, 20),
		snapshot("reader-b", config.RoleReader, sizing.VerdictInsufficientCapacity, "", 95),
		snapshot("reader-c", config.RoleReader, sizing.VerdictNoChange, "", 50),
	}}

	plan := result.ResizePlan()
	require.Len(t, plan.Operations, 3)
	assert.Equal(t, "reader-b", plan.Operations[0].Instance)
	assert.Equal(t, 90, plan.Operations[0].Priority)
	assert.Empty(t, plan.Operations[0].TargetClass)
	assert.Equal(t, "writer", plan.Operations[1].Instance)
	assert.Equal(t, 40, plan.Operations[1].Priority)
	assert.Equal(t, "db.r6g.xlarge", plan.Operations[1].TargetClass)
	assert.Equal(t, "reader-a", plan.Operations[2].Instance)
	assert.Equal(t, 10, plan.Operations[2].Priority)
}

func TestPrintReports(t *testing.T) {
	f := newFixture()
	a := f.advisor()

	snap, err := a.Snapshot(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)
	var buf bytes.Buffer
	snap.PrintReport(&buf)
	out := buf.String()
	assert.Contains(t, out, "Aurora Instance Snapshot")
	assert.Contains(t, out, "orders-1")
	assert.Contains(t, out, "SELECT * FROM orders WHERE id = $1")
	assert.Contains(t, out, "Action: NONE")
	assert.Contains(t, out, "EBS: 593.75 MB/s, 20000 IOPS max (baseline 78.75 MB/s, 3600 IOPS)")

	est, err := a.ServerlessEstimate(context.Background(), testEvaluation("orders-1"))
	require.NoError(t, err)
	buf.Reset()
	est.PrintReport(&buf)
	assert.Contains(t, buf.String(), "Aurora Serverless Estimate")
	assert.Contains(t, buf.String(), "on_demand")
}

func TestSeriesIDs(t *testing.T) {
	ids := seriesIDs(nil, metricCPU)
	assert.Equal(t, []string{"os.cpuUtilization.total.avg", "os.cpuUtilization.total.max", "os.cpuUtilization.total.min"}, ids)
}

func TestSummarizeUtilization(t *testing.T) {
	s := summarizeUtilization([]float64{10, 20, 30}, []float64{5, 15}, nil)
	assert.Equal(t, 3, s.DataPoints)
	assert.Equal(t, 20.0, s.CPUAvg)
	assert.Equal(t, 30.0, s.CPUMax)
	assert.Equal(t, 10.0, s.ConnectionsAvg)
	assert.Equal(t, 15.0, s.ConnectionsMax)
	assert.Zero(t, s.CacheHitAvg)
}
