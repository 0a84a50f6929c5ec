// Package cost converts unit prices and usage volumes into comparable costs
// across pricing commitment tiers and storage modes.
package cost

import (
	"math"

	"github.com/shopspring/decimal"
)

// HoursPerMonth is the billing month used to convert monthly storage prices.
const HoursPerMonth = 730

// Term is a pricing commitment tier.
type Term string

const (
	OnDemand                  Term = "on_demand"
	Reserved1yrNoUpfront      Term = "1yr_no_upfront"
	Reserved1yrPartialUpfront Term = "1yr_partial_upfront"
	Reserved1yrAllUpfront     Term = "1yr_all_upfront"
	Reserved3yrNoUpfront      Term = "3yr_no_upfront"
	Reserved3yrPartialUpfront Term = "3yr_partial_upfront"
	Reserved3yrAllUpfront     Term = "3yr_all_upfront"
)

// Terms lists every tier in report order.
var Terms = []Term{
	OnDemand,
	Reserved1yrNoUpfront, Reserved1yrPartialUpfront, Reserved1yrAllUpfront,
	Reserved3yrNoUpfront, Reserved3yrPartialUpfront, Reserved3yrAllUpfront,
}

// PriceQuote is the read-only price input for one instance class in one region.
type PriceQuote struct {
	InstanceClass string `json:"instance_class"`

	OnDemandHourly    decimal.Decimal `json:"on_demand_hourly"`
	IOOptimizedHourly decimal.Decimal `json:"io_optimized_hourly"`
	// ReservedHourly is the effective hourly price per reserved term, upfront fee amortized.
	ReservedHourly            map[Term]decimal.Decimal `json:"reserved_hourly,omitempty"`
	ReservedHourlyIOOptimized map[Term]decimal.Decimal `json:"reserved_hourly_io_optimized,omitempty"`

	PerACUHour            decimal.Decimal `json:"per_acu_hour"`
	PerACUHourIOOptimized decimal.Decimal `json:"per_acu_hour_io_optimized"`
	PerGBMonth            decimal.Decimal `json:"per_gb_month"`
	PerGBMonthIOOptimized decimal.Decimal `json:"per_gb_month_io_optimized"`
	PerMillionIO          decimal.Decimal `json:"per_million_io"`
}

// Hourly returns the provisioned hourly price under term.
func (q PriceQuote) Hourly(term Term, ioOptimized bool) (decimal.Decimal, bool) {
	if term == OnDemand {
		if ioOptimized {
			return q.IOOptimizedHourly, !q.IOOptimizedHourly.IsZero()
		}
		return q.OnDemandHourly, !q.OnDemandHourly.IsZero()
	}
	table := q.ReservedHourly
	if ioOptimized {
		table = q.ReservedHourlyIOOptimized
	}
	price, ok := table[term]
	return price, ok
}

// AmortizedHourly folds an upfront fee into an hourly rate over the term length in years.
func AmortizedHourly(upfront, hourly decimal.Decimal, years int) decimal.Decimal {
	hours := decimal.NewFromInt(int64(years) * 365 * 24)
	return hourly.Add(upfront.Div(hours))
}

// PctDelta returns (value-base)/base in percent, rounded to 2 places. A zero base yields 0.
func PctDelta(value, base decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	pct, _ := value.Sub(base).Mul(decimal.NewFromInt(100)).Div(base).Round(2).Float64()
	return pct
}

// Provisioned returns the cost of running at hourly for the given hours.
func Provisioned(hourly decimal.Decimal, hours float64) decimal.Decimal {
	return hourly.Mul(decimal.NewFromFloat(hours))
}

// ACUHours converts an ACU series sampled every periodSeconds into ACU-hours.
func ACUHours(acus []float64, periodSeconds int) decimal.Decimal {
	total := decimal.Zero
	for _, acu := range acus {
		if math.IsNaN(acu) || acu <= 0 {
			continue
		}
		total = total.Add(decimal.NewFromFloat(acu))
	}
	return total.Mul(decimal.NewFromInt(int64(periodSeconds))).Div(decimal.NewFromInt(3600))
}

// TierComparison compares serverless cost with provisioned cost under one tier.
type TierComparison struct {
	Term            Term            `json:"term"`
	ProvisionedCost decimal.Decimal `json:"provisioned_cost"`
	// DeltaPct is negative when serverless is cheaper.
	DeltaPct float64 `json:"delta_pct"`
}

// ServerlessComparison is the serverless versus provisioned cost of one window.
type ServerlessComparison struct {
	Hours          float64          `json:"hours"`
	ACUHours       decimal.Decimal  `json:"acu_hours"`
	ServerlessCost decimal.Decimal  `json:"serverless_cost"`
	Tiers          []TierComparison `json:"tiers"`
}

// CompareServerless prices an ACU series against the provisioned class in quote
// over the sampled duration, for every tier the quote carries. Missing steps count on neither side.
func CompareServerless(acus []float64, periodSeconds int, quote PriceQuote, ioOptimized bool) ServerlessComparison {
	sampled := 0
	for _, acu := range acus {
		if !math.IsNaN(acu) {
			sampled++
		}
	}
	hours := float64(sampled*periodSeconds) / 3600
	acuHours := ACUHours(acus, periodSeconds)

	perACU := quote.PerACUHour
	if ioOptimized {
		perACU = quote.PerACUHourIOOptimized
	}
	serverless := acuHours.Mul(perACU)

	cmp := ServerlessComparison{
		Hours:          hours,
		ACUHours:       acuHours.Round(2),
		ServerlessCost: serverless.Round(4),
	}
	for _, term := range Terms {
		hourly, ok := quote.Hourly(term, ioOptimized)
		if !ok {
			continue
		}
		provisioned := Provisioned(hourly, hours)
		cmp.Tiers = append(cmp.Tiers, TierComparison{
			Term:            term,
			ProvisionedCost: provisioned.Round(4),
			DeltaPct:        PctDelta(serverless, provisioned),
		})
	}
	return cmp
}
