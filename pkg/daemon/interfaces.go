package daemon

import (
	"context"
	"time"

	"github.com/fraser-isbester/aurora-advisor/pkg/analyzer"
)

// Advisor defines the evaluations the daemon runs each cycle
type Advisor interface {
	NewEvaluation(instanceID string, now time.Time) analyzer.Evaluation
	Snapshot(ctx context.Context, eval analyzer.Evaluation) (*analyzer.SnapshotResult, error)
	ServerlessEstimate(ctx context.Context, eval analyzer.Evaluation) (*analyzer.ServerlessResult, error)
}

// HTTPServerInterface defines the interface for HTTP health/metrics server
type HTTPServerInterface interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// MetricsReporter defines the interface for metrics reporting
type MetricsReporter interface {
	RecordCycleDuration(duration time.Duration)
	RecordCycleCompletion()
	RecordError(errorType string)
	RecordSnapshot(result *analyzer.SnapshotResult)
	RecordServerless(result *analyzer.ServerlessResult)
}

// SignalHandler defines the interface for handling OS signals
type SignalHandler interface {
	WaitForShutdown() <-chan struct{}
}

// CycleRunner runs advisory cycles and reports on the last one
type CycleRunner interface {
	RunCycle(ctx context.Context) error
	Status() CycleStatus
}

// Config provides read-only access to daemon configuration
type Config interface {
	GetInterval() time.Duration
	GetHTTPPort() int
	IsMetricsEnabled() bool
	IsServerlessEnabled() bool
	GetRegion() string
	GetInstances() []string
}
