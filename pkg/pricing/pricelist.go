package pricing

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

// Product families of the AmazonRDS price list
const (
	FamilyInstance   = "Database Instance"
	FamilyServerless = "ServerlessV2"
	FamilyStorage    = "Database Storage"
	FamilyIO         = "System Operation"
)

// Usage type markers that separate I/O-optimized SKUs from standard ones
const (
	usageIOOptimized        = "IOOptimized"
	usageStorage            = "Aurora:StorageUsage"
	usageStorageIOOptimized = "Aurora:IO-OptimizedStorageUsage"
	usageStorageIO          = "Aurora:StorageIOUsage"
)

// priceItem mirrors one element of GetProducts PriceList
type priceItem struct {
	Product struct {
		ProductFamily string            `json:"productFamily"`
		SKU           string            `json:"sku"`
		Attributes    map[string]string `json:"attributes"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]priceTerm `json:"OnDemand"`
		Reserved map[string]priceTerm `json:"Reserved"`
	} `json:"terms"`
}

type priceTerm struct {
	PriceDimensions map[string]priceDimension `json:"priceDimensions"`
	TermAttributes  map[string]string         `json:"termAttributes"`
}

type priceDimension struct {
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

// product is a parsed SKU with its USD rates
type product struct {
	Family     string
	SKU        string
	Attributes map[string]string
	OnDemand   decimal.Decimal // Zero when the SKU has no on-demand rate
	Reserved   map[cost.Term]decimal.Decimal
}

func (p product) usageType() string {
	return p.Attributes["usagetype"]
}

func (p product) ioOptimized() bool {
	return strings.Contains(p.usageType(), usageIOOptimized) || strings.Contains(p.usageType(), "IO-Optimized")
}

// parseProducts decodes raw price list entries
func parseProducts(items []string) ([]product, error) {
	products := make([]product, 0, len(items))
	for _, raw := range items {
		var item priceItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, evalerr.Malformed("GetProducts", "pricing", "failed to decode price list entry: %v", err)
		}

		p := product{
			Family:     item.Product.ProductFamily,
			SKU:        item.Product.SKU,
			Attributes: item.Product.Attributes,
			Reserved:   make(map[cost.Term]decimal.Decimal),
		}
		for _, term := range item.Terms.OnDemand {
			rate, _, err := term.rates(p.SKU)
			if err != nil {
				return nil, err
			}
			p.OnDemand = rate
		}
		for _, term := range item.Terms.Reserved {
			t, years, ok := reservedTerm(term.TermAttributes)
			if !ok {
				continue
			}
			hourly, upfront, err := term.rates(p.SKU)
			if err != nil {
				return nil, err
			}
			p.Reserved[t] = cost.AmortizedHourly(upfront, hourly, years)
		}
		products = append(products, p)
	}
	return products, nil
}

// rates returns the recurring rate and the upfront fee of a term
func (t priceTerm) rates(sku string) (recurring, upfront decimal.Decimal, err error) {
	for _, dim := range t.PriceDimensions {
		usd, ok := dim.PricePerUnit["USD"]
		if !ok {
			return recurring, upfront, evalerr.Malformed("GetProducts", "pricing", "sku %s has a price dimension without a USD rate", sku)
		}
		price, err := decimal.NewFromString(usd)
		if err != nil {
			return recurring, upfront, evalerr.Malformed("GetProducts", "pricing", "sku %s has unparsable price %q", sku, usd)
		}
		if dim.Unit == "Quantity" {
			upfront = upfront.Add(price)
			continue
		}
		recurring = recurring.Add(price)
	}
	return recurring, upfront, nil
}

// reservedTerm maps reserved term attributes onto a pricing tier
func reservedTerm(attrs map[string]string) (cost.Term, int, bool) {
	var years int
	switch attrs["LeaseContractLength"] {
	case "1yr", "1 yr":
		years = 1
	case "3yr", "3 yr":
		years = 3
	default:
		return "", 0, false
	}

	terms := map[string][2]cost.Term{
		"No Upfront":      {cost.Reserved1yrNoUpfront, cost.Reserved3yrNoUpfront},
		"Partial Upfront": {cost.Reserved1yrPartialUpfront, cost.Reserved3yrPartialUpfront},
		"All Upfront":     {cost.Reserved1yrAllUpfront, cost.Reserved3yrAllUpfront},
	}
	pair, ok := terms[attrs["PurchaseOption"]]
	if !ok {
		return "", 0, false
	}
	if years == 1 {
		return pair[0], years, true
	}
	return pair[1], years, true
}

// buildQuote assembles the quote of class from the parsed SKUs of one engine and region
func buildQuote(class string, instances, serverless, storage, io []product) (cost.PriceQuote, error) {
	quote := cost.PriceQuote{
		InstanceClass:             class,
		ReservedHourly:            make(map[cost.Term]decimal.Decimal),
		ReservedHourlyIOOptimized: make(map[cost.Term]decimal.Decimal),
	}

	found := false
	for _, p := range instances {
		if p.Attributes["instanceType"] != class {
			continue
		}
		if p.ioOptimized() {
			if !p.OnDemand.IsZero() {
				quote.IOOptimizedHourly = p.OnDemand
			}
			for t, rate := range p.Reserved {
				quote.ReservedHourlyIOOptimized[t] = rate
			}
			continue
		}
		if !p.OnDemand.IsZero() {
			quote.OnDemandHourly = p.OnDemand
			found = true
		}
		for t, rate := range p.Reserved {
			quote.ReservedHourly[t] = rate
		}
	}
	if !found {
		return cost.PriceQuote{}, evalerr.Malformed("GetProducts", "pricing", "no on-demand price for %s", class)
	}

	for _, p := range serverless {
		if p.ioOptimized() {
			quote.PerACUHourIOOptimized = p.OnDemand
		} else {
			quote.PerACUHour = p.OnDemand
		}
	}
	for _, p := range storage {
		switch {
		case strings.Contains(p.usageType(), usageStorageIOOptimized):
			quote.PerGBMonthIOOptimized = p.OnDemand
		case strings.Contains(p.usageType(), usageStorage):
			quote.PerGBMonth = p.OnDemand
		}
	}
	for _, p := range io {
		if strings.Contains(p.usageType(), usageStorageIO) {
			quote.PerMillionIO = p.OnDemand.Mul(decimal.NewFromInt(1_000_000))
		}
	}

	if quote.PerACUHour.IsZero() || quote.PerGBMonth.IsZero() {
		return cost.PriceQuote{}, evalerr.Malformed("GetProducts", "pricing", "missing serverless or storage price for %s", class)
	}
	return quote, nil
}
