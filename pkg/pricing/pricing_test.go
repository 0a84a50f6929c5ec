package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/smithy-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type reserved struct {
	length, option  string
	upfront, hourly string
}

func item(family, usageType, instanceType, onDemand string, res ...reserved) string {
	attrs := map[string]string{"usagetype": usageType}
	if instanceType != "" {
		attrs["instanceType"] = instanceType
	}
	doc := map[string]any{
		"product": map[string]any{
			"productFamily": family,
			"sku":           usageType + instanceType,
			"attributes":    attrs,
		},
		"terms": map[string]any{},
	}
	terms := doc["terms"].(map[string]any)
	if onDemand != "" {
		terms["OnDemand"] = map[string]any{
			"od": map[string]any{
				"priceDimensions": map[string]any{
					"rate": map[string]any{"unit": "Hrs", "pricePerUnit": map[string]string{"USD": onDemand}},
				},
			},
		}
	}
	if len(res) > 0 {
		rt := map[string]any{}
		for i, r := range res {
			dims := map[string]any{
				"hourly": map[string]any{"unit": "Hrs", "pricePerUnit": map[string]string{"USD": r.hourly}},
			}
			if r.upfront != "" {
				dims["fee"] = map[string]any{"unit": "Quantity", "pricePerUnit": map[string]string{"USD": r.upfront}}
			}
			rt[string(rune('a'+i))] = map[string]any{
				"priceDimensions": dims,
				"termAttributes":  map[string]string{"LeaseContractLength": r.length, "PurchaseOption": r.option},
			}
		}
		terms["Reserved"] = rt
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

// fakeProducts serves price lists by product family, one item per page
type fakeProducts struct {
	calls    int
	families map[string][]string
	err      error
}

func (f *fakeProducts) GetProducts(_ context.Context, in *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var family string
	for _, filter := range in.Filters {
		if aws.ToString(filter.Field) == "productFamily" {
			family = aws.ToString(filter.Value)
		}
	}
	items := f.families[family]

	page := 0
	if in.NextToken != nil {
		page = int((*in.NextToken)[0] - '0')
	}
	out := &pricing.GetProductsOutput{}
	if page < len(items) {
		out.PriceList = []string{items[page]}
	}
	if page+1 < len(items) {
		out.NextToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func auroraPrices() *fakeProducts {
	return &fakeProducts{families: map[string][]string{
		FamilyInstance: {
			item(FamilyInstance, "USE1-InstanceUsage:db.r6g.large", "db.r6g.large", "0.26",
				reserved{"1yr", "All Upfront", "1500", "0"},
				reserved{"3yr", "Partial Upfront", "1800", "0.07"},
				reserved{"1yr", "No Upfront", "", "0.19"}),
			item(FamilyInstance, "USE1-InstanceUsageIOOptimized:db.r6g.large", "db.r6g.large", "0.338"),
			item(FamilyInstance, "USE1-InstanceUsage:db.r6g.xlarge", "db.r6g.xlarge", "0.52"),
		},
		FamilyServerless: {
			item(FamilyServerless, "USE1-Aurora:ServerlessV2Usage", "", "0.12"),
			item(FamilyServerless, "USE1-Aurora:ServerlessV2IOOptimizedUsage", "", "0.16"),
		},
		FamilyStorage: {
			item(FamilyStorage, "USE1-Aurora:StorageUsage", "", "0.10"),
			item(FamilyStorage, "USE1-Aurora:IO-OptimizedStorageUsage", "", "0.225"),
		},
		FamilyIO: {
			item(FamilyIO, "USE1-Aurora:StorageIOUsage", "", "0.0000002"),
		},
	}}
}

func TestQuote(t *testing.T) {
	api := auroraPrices()
	src := NewSource(api, t.TempDir(), 24*time.Hour, quietLog())

	quote, err := src.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.large")
	require.NoError(t, err)

	assert.Equal(t, "db.r6g.large", quote.InstanceClass)
	assert.True(t, quote.OnDemandHourly.Equal(decimal.RequireFromString("0.26")))
	assert.True(t, quote.IOOptimizedHourly.Equal(decimal.RequireFromString("0.338")))
	assert.True(t, quote.PerACUHour.Equal(decimal.RequireFromString("0.12")))
	assert.True(t, quote.PerACUHourIOOptimized.Equal(decimal.RequireFromString("0.16")))
	assert.True(t, quote.PerGBMonth.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, quote.PerGBMonthIOOptimized.Equal(decimal.RequireFromString("0.225")))
	assert.True(t, quote.PerMillionIO.Equal(decimal.RequireFromString("0.2")))

	allUpfront, ok := quote.Hourly(cost.Reserved1yrAllUpfront, false)
	require.True(t, ok)
	assert.True(t, allUpfront.Equal(cost.AmortizedHourly(decimal.NewFromInt(1500), decimal.Zero, 1)))

	partial, ok := quote.Hourly(cost.Reserved3yrPartialUpfront, false)
	require.True(t, ok)
	assert.True(t, partial.Equal(cost.AmortizedHourly(decimal.NewFromInt(1800), decimal.RequireFromString("0.07"), 3)))

	noUpfront, ok := quote.Hourly(cost.Reserved1yrNoUpfront, false)
	require.True(t, ok)
	assert.True(t, noUpfront.Equal(decimal.RequireFromString("0.19")))

	_, ok = quote.Hourly(cost.Reserved3yrAllUpfront, false)
	assert.False(t, ok)
}

func TestQuoteMemoizesAndCachesOnDisk(t *testing.T) {
	dir := t.TempDir()
	api := auroraPrices()
	src := NewSource(api, dir, 24*time.Hour, quietLog())

	_, err := src.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.large")
	require.NoError(t, err)
	fetched := api.calls
	// Three instance SKUs page one at a time, plus 2 + 2 + 1 pages for the other families.
	assert.Equal(t, 8, fetched)

	_, err = src.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.xlarge")
	require.NoError(t, err)
	assert.Equal(t, fetched, api.calls)

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 4)

	fresh := NewSource(api, dir, 24*time.Hour, quietLog())
	_, err = fresh.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.large")
	require.NoError(t, err)
	assert.Equal(t, fetched, api.calls)

	stale := NewSource(api, dir, 24*time.Hour, quietLog())
	stale.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err = stale.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.large")
	require.NoError(t, err)
	assert.Equal(t, 2*fetched, api.calls)
}

func TestQuoteIgnoresCorruptCache(t *testing.T) {
	dir := t.TempDir()
	key := cacheKey(map[string]string{
		"regionCode":     "us-east-1",
		"databaseEngine": "Aurora PostgreSQL",
		"productFamily":  FamilyInstance,
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, key+".json"), []byte("{not json"), 0o644))

	src := NewSource(auroraPrices(), dir, 24*time.Hour, quietLog())
	quote, err := src.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.large")
	require.NoError(t, err)
	assert.True(t, quote.OnDemandHourly.Equal(decimal.RequireFromString("0.26")))
}

func TestQuoteErrors(t *testing.T) {
	src := NewSource(auroraPrices(), t.TempDir(), time.Hour, quietLog())
	_, err := src.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.x2g.16xlarge")
	assert.True(t, errors.Is(err, evalerr.ErrMalformedCatalogEntry))

	_, err = src.Quote(context.Background(), "mysql", "us-east-1", "db.r6g.large")
	assert.Error(t, err)

	bad := auroraPrices()
	bad.families[FamilyIO] = []string{item(FamilyIO, "USE1-Aurora:StorageIOUsage", "", "n/a")}
	src = NewSource(bad, t.TempDir(), time.Hour, quietLog())
	_, err = src.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.large")
	assert.True(t, errors.Is(err, evalerr.ErrMalformedCatalogEntry))

	down := &fakeProducts{err: &smithy.GenericAPIError{Code: "ThrottlingException"}}
	src = NewSource(down, t.TempDir(), time.Hour, quietLog())
	_, err = src.Quote(context.Background(), "aurora-postgresql", "us-east-1", "db.r6g.large")
	assert.True(t, errors.Is(err, evalerr.ErrCollaboratorUnavailable))
}

func TestCacheKey(t *testing.T) {
	key := cacheKey(map[string]string{
		"regionCode":     "eu-west-1",
		"databaseEngine": "Aurora MySQL",
		"productFamily":  "Database Instance",
	})
	assert.Equal(t, "aurora-mysql_database-instance_eu-west-1", key)
}

func TestEngineName(t *testing.T) {
	name, err := EngineName("aurora-mysql")
	require.NoError(t, err)
	assert.Equal(t, "Aurora MySQL", name)

	name, err = EngineName("aurora-postgresql")
	require.NoError(t, err)
	assert.Equal(t, "Aurora PostgreSQL", name)
}
