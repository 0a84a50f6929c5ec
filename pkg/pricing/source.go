// Package pricing resolves Aurora instance, serverless and storage prices from
// the AWS Price List API, caching raw price lists on disk.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/fraser-isbester/aurora-advisor/pkg/cost"
	"github.com/fraser-isbester/aurora-advisor/pkg/evalerr"
)

const (
	serviceCode = "AmazonRDS"
	// apiRegion hosts the Price List API endpoint
	apiRegion = "us-east-1"
)

// ProductsAPI is the subset of the Price List client the source uses
type ProductsAPI interface {
	GetProducts(ctx context.Context, in *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Source resolves price quotes
type Source struct {
	api    ProductsAPI
	dir    string
	maxAge time.Duration
	memo   *cache.Cache
	now    func() time.Time
	log    *logrus.Entry
}

// NewSource creates a price source caching raw price lists under dir for at most maxAge
func NewSource(api ProductsAPI, dir string, maxAge time.Duration, log *logrus.Entry) *Source {
	return &Source{
		api:    api,
		dir:    dir,
		maxAge: maxAge,
		memo:   cache.New(maxAge, maxAge*2),
		now:    time.Now,
		log:    log.WithField("component", "pricing"),
	}
}

// NewFromConfig creates a price source on the Price List endpoint using awsCfg credentials
func NewFromConfig(awsCfg aws.Config, dir string, maxAge time.Duration, log *logrus.Entry) *Source {
	cfg := awsCfg.Copy()
	cfg.Region = apiRegion
	return NewSource(pricing.NewFromConfig(cfg), dir, maxAge, log)
}

// cachedList is the on-disk form of a raw price list
type cachedList struct {
	FetchedAt time.Time `json:"fetched_at"`
	Filters   []string  `json:"filters"`
	Items     []string  `json:"items"`
}

// EngineName maps an RDS engine identifier onto the price list databaseEngine attribute
func EngineName(engine string) (string, error) {
	switch engine {
	case "aurora", "aurora-mysql":
		return "Aurora MySQL", nil
	case "aurora-postgresql":
		return "Aurora PostgreSQL", nil
	default:
		return "", fmt.Errorf("unsupported engine: %s", engine)
	}
}

// Quote returns the prices of class for engine in region
func (s *Source) Quote(ctx context.Context, engine, region, class string) (cost.PriceQuote, error) {
	engineName, err := EngineName(engine)
	if err != nil {
		return cost.PriceQuote{}, err
	}

	instances, err := s.products(ctx, map[string]string{
		"regionCode":     region,
		"databaseEngine": engineName,
		"productFamily":  FamilyInstance,
	})
	if err != nil {
		return cost.PriceQuote{}, err
	}
	serverless, err := s.products(ctx, map[string]string{
		"regionCode":     region,
		"databaseEngine": engineName,
		"productFamily":  FamilyServerless,
	})
	if err != nil {
		return cost.PriceQuote{}, err
	}
	storage, err := s.products(ctx, map[string]string{
		"regionCode":    region,
		"productFamily": FamilyStorage,
	})
	if err != nil {
		return cost.PriceQuote{}, err
	}
	io, err := s.products(ctx, map[string]string{
		"regionCode":    region,
		"productFamily": FamilyIO,
	})
	if err != nil {
		return cost.PriceQuote{}, err
	}

	return buildQuote(class, instances, serverless, storage, io)
}

// products returns the parsed SKUs matching filters, from memory, disk or the API in that order
func (s *Source) products(ctx context.Context, filters map[string]string) ([]product, error) {
	key := cacheKey(filters)
	if cached, found := s.memo.Get(key); found {
		if products, ok := cached.([]product); ok {
			return products, nil
		}
	}

	items, err := s.readCache(key)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Ignoring unreadable price cache entry")
	}
	if items == nil {
		items, err = s.fetch(ctx, filters)
		if err != nil {
			return nil, err
		}
		if err := s.writeCache(key, filters, items); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Failed to write price cache entry")
		}
	}

	products, err := parseProducts(items)
	if err != nil {
		return nil, err
	}
	s.memo.Set(key, products, cache.DefaultExpiration)
	return products, nil
}

// fetch pages through GetProducts
func (s *Source) fetch(ctx context.Context, filters map[string]string) ([]string, error) {
	input := &pricing.GetProductsInput{
		ServiceCode:   aws.String(serviceCode),
		FormatVersion: aws.String("aws_v1"),
	}
	for _, field := range sortedKeys(filters) {
		input.Filters = append(input.Filters, types.Filter{
			Field: aws.String(field),
			Type:  types.FilterTypeTermMatch,
			Value: aws.String(filters[field]),
		})
	}

	var items []string
	p := pricing.NewGetProductsPaginator(s.api, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, evalerr.Collaborator("GetProducts", "pricing", err)
		}
		items = append(items, page.PriceList...)
	}

	s.log.WithFields(logrus.Fields{
		"filters":  strings.Join(filterPairs(filters), ","),
		"products": len(items),
	}).Debug("Fetched price list")
	return items, nil
}

// readCache returns the cached items for key, or nil when absent or stale
func (s *Source) readCache(key string) ([]string, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	var entry cachedList
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode price cache: %w", err)
	}
	if s.now().Sub(entry.FetchedAt) > s.maxAge {
		return nil, nil
	}
	if entry.Items == nil {
		entry.Items = []string{}
	}
	return entry.Items, nil
}

func (s *Source) writeCache(key string, filters map[string]string, items []string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create price cache dir: %w", err)
	}
	data, err := json.Marshal(cachedList{
		FetchedAt: s.now().UTC(),
		Filters:   filterPairs(filters),
		Items:     items,
	})
	if err != nil {
		return fmt.Errorf("failed to encode price cache: %w", err)
	}
	return os.WriteFile(s.path(key), data, 0o644)
}

func (s *Source) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// cacheKey derives a file-safe key from filter values in field order
func cacheKey(filters map[string]string) string {
	parts := make([]string, 0, len(filters))
	for _, field := range sortedKeys(filters) {
		v := strings.ToLower(filters[field])
		v = strings.NewReplacer(" ", "-", "/", "-", ":", "-").Replace(v)
		parts = append(parts, v)
	}
	return strings.Join(parts, "_")
}

func filterPairs(filters map[string]string) []string {
	pairs := make([]string, 0, len(filters))
	for _, field := range sortedKeys(filters) {
		pairs = append(pairs, field+"="+filters[field])
	}
	return pairs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
