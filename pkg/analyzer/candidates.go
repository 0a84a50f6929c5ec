package analyzer

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fraser-isbester/aurora-advisor/pkg/config"
	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/envelope"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
	"github.com/fraser-isbester/aurora-advisor/pkg/paramexpr"
	"github.com/fraser-isbester/aurora-advisor/pkg/sizing"
)

const (
	maxConnectionsParam = "max_connections"
	bytesPerGB          = 1024 * 1024 * 1024
	// localStoragePerMemoryGB sizes the temporary local volume of EBS-only classes
	localStoragePerMemoryGB = 2
)

// catalog is the candidate set of one evaluation together with the current class
type catalog struct {
	Candidates []sizing.Candidate
	Current    envelope.HardwareSpec
	Quote      cost.PriceQuote
}

// buildCatalog lists every orderable class of the instance's engine version with
// hardware, connection limit and on-demand price. A class the price list does not
// carry keeps an unknown price; the current class must be priced.
func (a *Advisor) buildCatalog(ctx context.Context, instance *config.InstanceInfo) (*catalog, error) {
	classes, err := a.catalog.ListInstanceClasses(ctx, instance.Engine, instance.EngineVersion)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(classes, instance.Class) {
		classes = append(classes, instance.Class)
		sort.Strings(classes)
	}

	specs, err := a.catalog.InstanceHardware(ctx, classes)
	if err != nil {
		return nil, err
	}
	current, ok := specs[instance.Class]
	if !ok {
		return nil, evalerr.Malformed("InstanceHardware", "catalog", "no hardware description for %s", instance.Class)
	}

	if instance.ParameterGroup == "" {
		return nil, evalerr.Malformed("DescribeDBInstances", "catalog", "instance %s has no parameter group", instance.ID)
	}
	maxConnections, err := a.catalog.ParameterValue(ctx, instance.ParameterGroup, maxConnectionsParam)
	if err != nil {
		return nil, err
	}

	quote, err := a.prices.Quote(ctx, instance.Engine, instance.Region, instance.Class)
	if err != nil {
		return nil, err
	}

	cat := &catalog{Current: current, Quote: quote}
	for _, class := range classes {
		spec, ok := specs[class]
		if !ok {
			continue
		}

		c, err := newCandidate(class, spec, maxConnections)
		if err != nil {
			return nil, err
		}

		q := quote
		if class != instance.Class {
			q, err = a.prices.Quote(ctx, instance.Engine, instance.Region, class)
			if errors.Is(err, evalerr.ErrMalformedCatalogEntry) {
				a.log.WithField("class", class).Debug("No price for instance class")
				cat.Candidates = append(cat.Candidates, c)
				continue
			}
			if err != nil {
				return nil, err
			}
		}
		if price, ok := q.Hourly(cost.OnDemand, instance.IOOptimized()); ok {
			c.HourlyPrice = price
		}
		cat.Candidates = append(cat.Candidates, c)
	}
	return cat, nil
}

// newCandidate derives the sizing capacities of a class from its hardware
func newCandidate(class string, spec envelope.HardwareSpec, maxConnections string) (sizing.Candidate, error) {
	limits := envelope.LimitsFor(spec)

	conns, err := paramexpr.Resolve(maxConnections, spec.MemoryGB*bytesPerGB)
	if err != nil {
		return sizing.Candidate{}, evalerr.Malformed("DescribeDBParameters", "catalog",
			"cannot evaluate %s for %s: %v", maxConnectionsParam, class, err)
	}

	localGB := spec.InstanceStorageGB
	if localGB == 0 {
		localGB = spec.MemoryGB * localStoragePerMemoryGB
	}

	current := spec.CurrentGeneration
	if parsed, err := config.ParseInstanceClass(class); err == nil {
		current = current && parsed.Family.CurrentGeneration
	}

	return sizing.Candidate{
		Class:               class,
		CurrentGeneration:   current,
		MemoryGB:            spec.MemoryGB,
		VCPUs:               spec.VCPUs,
		NetworkMaxMBps:      limits.NetworkMaxMBps,
		NetworkBurstable:    limits.NetworkBurstable,
		NetworkBaselineMBps: limits.NetworkBaselineMBps,
		LocalStorageGB:      localGB,
		MaxConnections:      int(math.Floor(conns)),
		EBSMaxMBps:          limits.EBSMaxMBps,
		HourlyPrice:         decimal.Zero,
	}, nil
}
