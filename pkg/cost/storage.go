package cost

import (
	"github.com/shopspring/decimal"
)

// InstanceUsage is the compute usage of one cluster member over the window.
type InstanceUsage struct {
	ID         string
	Serverless bool
	// ACUHours is read for serverless members, Hours for provisioned ones.
	ACUHours decimal.Decimal
	Hours    float64
	Quote    PriceQuote
}

// StorageUsage is the cluster volume usage over the window.
type StorageUsage struct {
	StorageGB float64
	IOs       float64
	Hours     float64
	Quote     PriceQuote
}

// StorageTier compares standard and I/O-optimized cluster cost under one tier.
type StorageTier struct {
	Term                Term            `json:"term"`
	ServerlessStandard  decimal.Decimal `json:"serverless_standard"`
	ServerlessIOOpt     decimal.Decimal `json:"serverless_io_optimized"`
	ProvisionedStandard decimal.Decimal `json:"provisioned_standard"`
	ProvisionedIOOpt    decimal.Decimal `json:"provisioned_io_optimized"`
	StorageStandard     decimal.Decimal `json:"storage_standard"`
	StorageIOOpt        decimal.Decimal `json:"storage_io_optimized"`
	TotalStandard       decimal.Decimal `json:"total_standard"`
	TotalIOOpt          decimal.Decimal `json:"total_io_optimized"`
	// DeltaPct is negative when I/O-optimized is cheaper.
	DeltaPct float64 `json:"delta_pct"`
}

// CompareStorage prices a cluster under standard and I/O-optimized storage for
// every tier. Serverless and provisioned member costs are summed separately
// before being combined with storage. A tier is skipped when a provisioned
// member has no price under it.
func CompareStorage(instances []InstanceUsage, storage StorageUsage) []StorageTier {
	var tiers []StorageTier

	months := decimal.NewFromFloat(storage.Hours).Div(decimal.NewFromInt(HoursPerMonth))
	gb := decimal.NewFromFloat(storage.StorageGB)
	ioCharge := decimal.NewFromFloat(storage.IOs).Div(decimal.NewFromInt(1_000_000)).Mul(storage.Quote.PerMillionIO)
	storageStd := gb.Mul(storage.Quote.PerGBMonth).Mul(months).Add(ioCharge)
	storageOpt := gb.Mul(storage.Quote.PerGBMonthIOOptimized).Mul(months)

	serverlessStd, serverlessOpt := decimal.Zero, decimal.Zero
	for _, inst := range instances {
		if !inst.Serverless {
			continue
		}
		serverlessStd = serverlessStd.Add(inst.ACUHours.Mul(inst.Quote.PerACUHour))
		serverlessOpt = serverlessOpt.Add(inst.ACUHours.Mul(inst.Quote.PerACUHourIOOptimized))
	}

terms:
	for _, term := range Terms {
		provisionedStd, provisionedOpt := decimal.Zero, decimal.Zero
		for _, inst := range instances {
			if inst.Serverless {
				continue
			}
			std, okStd := inst.Quote.Hourly(term, false)
			opt, okOpt := inst.Quote.Hourly(term, true)
			if !okStd || !okOpt {
				continue terms
			}
			provisionedStd = provisionedStd.Add(Provisioned(std, inst.Hours))
			provisionedOpt = provisionedOpt.Add(Provisioned(opt, inst.Hours))
		}

		totalStd := serverlessStd.Add(provisionedStd).Add(storageStd)
		totalOpt := serverlessOpt.Add(provisionedOpt).Add(storageOpt)
		tiers = append(tiers, StorageTier{
			Term:                term,
			ServerlessStandard:  serverlessStd.Round(4),
			ServerlessIOOpt:     serverlessOpt.Round(4),
			ProvisionedStandard: provisionedStd.Round(4),
			ProvisionedIOOpt:    provisionedOpt.Round(4),
			StorageStandard:     storageStd.Round(4),
			StorageIOOpt:        storageOpt.Round(4),
			TotalStandard:       totalStd.Round(4),
			TotalIOOpt:          totalOpt.Round(4),
			DeltaPct:            PctDelta(totalOpt, totalStd),
		})
	}
	return tiers
}
