// Package aurora holds the thin clients for the AWS APIs an evaluation reads:
// Performance Insights, CloudWatch, RDS and EC2.
package aurora

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pi"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

// Clients bundles the collaborator clients of one region
type Clients struct {
	Metrics    *MetricsClient
	Aggregated *AggregatedClient
	Catalog    *CatalogClient
	AWS        aws.Config // Exported for clients built elsewhere, e.g. pricing
}

// NewClients loads AWS credentials and creates every collaborator client for region
func NewClients(ctx context.Context, region string, log *logrus.Entry) (*Clients, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("no AWS region configured")
	}

	return &Clients{
		Metrics:    NewMetricsClient(pi.NewFromConfig(cfg), log),
		Aggregated: NewAggregatedClient(cloudwatch.NewFromConfig(cfg), log),
		Catalog:    NewCatalogClient(rds.NewFromConfig(cfg), ec2.NewFromConfig(cfg), cfg.Region, log),
		AWS:        cfg,
	}, nil
}

// throttlingCodes are API error codes that clear on their own
var throttlingCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"ServiceUnavailable":                     true,
	"InternalFailure":                        true,
}

// ErrorCode returns the AWS API error code wrapped by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsTransient reports whether err is an API failure worth retrying on a later cycle
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return throttlingCodes[ErrorCode(err)]
}

// wrap classifies an SDK failure as a collaborator outage
func wrap(op, phase string, err error) error {
	return evalerr.Collaborator(op, phase, err)
}
