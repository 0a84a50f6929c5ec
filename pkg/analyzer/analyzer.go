package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/aurora"
	"github.com/fraser-isbester/aurora-advisor/pkg/classifier"
	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/envelope"
	"github.com/fraser-isbester/aurora-advisor/pkg/pricing"
	"github.com/fraser-isbester/aurora-advisor/pkg/serverless"
	"github.com/fraser-isbester/aurora-advisor/pkg/sizing"
)

// MetricsSource reads Performance Insights series
type MetricsSource interface {
	FetchBatched(ctx context.Context, resourceID string, metrics []string, w aurora.Window, batchSize int) (map[string][]float64, error)
	ListAvailableMetrics(ctx context.Context, resourceID string, metricTypes []string) ([]classifier.MetricMetadata, error)
	WaitEventLoad(ctx context.Context, resourceID string, w aurora.Window, limit int32) (map[string][]float64, error)
	TopDimensions(ctx context.Context, resourceID, group string, w aurora.Window, limit int32) ([]aurora.DimensionLoad, error)
	SQLText(ctx context.Context, resourceID, sqlID string) (string, error)
}

// AggregatedSource reads CloudWatch series
type AggregatedSource interface {
	GetAggregatedSeries(ctx context.Context, queries []aurora.AggregatedQuery, w aurora.Window, batchSize int) (map[string][]float64, error)
}

// CatalogSource reads instance, class and parameter metadata
type CatalogSource interface {
	GetInstance(ctx context.Context, instanceID string) (*config.InstanceInfo, error)
	ClusterMembers(ctx context.Context, clusterID string) ([]*config.InstanceInfo, error)
	ListInstanceClasses(ctx context.Context, engine, version string) ([]string, error)
	InstanceHardware(ctx context.Context, classes []string) (map[string]envelope.HardwareSpec, error)
	ParameterValue(ctx context.Context, group, name string) (string, error)
}

// PriceSource quotes instance, serverless and storage prices
type PriceSource interface {
	Quote(ctx context.Context, engine, region, class string) (cost.PriceQuote, error)
}

// Advisor performs instance evaluations and generates recommendations
type Advisor struct {
	metrics    MetricsSource
	aggregated AggregatedSource
	catalog    CatalogSource
	prices     PriceSource
	sizing     *sizing.Engine
	config     *config.Config
	log        *logrus.Entry
}

// NewAdvisor creates an advisor over the given collaborators
func NewAdvisor(metrics MetricsSource, aggregated AggregatedSource, catalog CatalogSource, prices PriceSource, cfg *config.Config, log *logrus.Entry) *Advisor {
	return &Advisor{
		metrics:    metrics,
		aggregated: aggregated,
		catalog:    catalog,
		prices:     prices,
		sizing:     sizing.NewEngine(cfg),
		config:     cfg,
		log:        log.WithField("component", "advisor"),
	}
}

// NewAWSAdvisor creates an advisor backed by the AWS APIs of cfg.Region
func NewAWSAdvisor(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Advisor, error) {
	clients, err := aurora.NewClients(ctx, cfg.Region, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS clients: %w", err)
	}
	prices := pricing.NewFromConfig(clients.AWS, cfg.PriceCacheDir, cfg.PriceMaxAge, log)
	return NewAdvisor(clients.Metrics, clients.Aggregated, clients.Catalog, prices, cfg, log), nil
}

// Config returns the configuration the advisor evaluates with
func (a *Advisor) Config() *config.Config {
	return a.config
}

// Evaluation identifies one evaluation of one instance over one window
type Evaluation struct {
	ID         string        `json:"id"`
	InstanceID string        `json:"instance_id"`
	Window     aurora.Window `json:"window"`
}

// NewEvaluation creates an evaluation of instanceID over the configured window ending at now
func (a *Advisor) NewEvaluation(instanceID string, now time.Time) Evaluation {
	start, end := a.config.TimeRange(now)
	return Evaluation{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Window:     aurora.Window{Start: start, End: end, Period: a.config.Period},
	}
}

func (a *Advisor) logFor(eval Evaluation) *logrus.Entry {
	return a.log.WithFields(logrus.Fields{
		"instance":      eval.InstanceID,
		"evaluation_id": eval.ID,
	})
}

// serverlessConfig maps the configuration onto the ACU estimator
func (a *Advisor) serverlessConfig() serverless.Config {
	return serverless.Config{
		MaxACU:                    a.config.MaxACU,
		EffectivePeriod:           a.config.EffectivePeriod,
		HysteresisLimit:           a.config.HysteresisLimit,
		OtherMemoryAllocationsPct: a.config.OtherMemoryAllocationsPct,
	}
}
