package pricing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/repository"
)

// Service is the market-data collaborator the valuation engine consumes.
// Every lookup reads the cache only; BackfillHistory is the single escape
// hatch that asks the collaborator to populate a symbol's full history when
// nothing is cached yet.
type Service interface {
	LatestPrice(ctx context.Context, symbol string, sources []models.PriceSource) (*models.PriceQuote, error)
	PriceOnOrBefore(ctx context.Context, symbol string, sources []models.PriceSource, cutoff time.Time) (*models.PriceQuote, error)
	EarliestPrice(ctx context.Context, symbol string) (*models.PriceQuote, error)
	HasHistory(ctx context.Context, symbol string) (bool, error)
	BackfillHistory(ctx context.Context, symbol string) error
}

// Fetcher pulls a symbol's full daily history from an upstream provider.
type Fetcher interface {
	FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceQuote, error)
}

// CacheService answers from the repository price cache and delegates
// backfill to a Fetcher.
type CacheService struct {
	prices  repository.PriceRepository
	fetcher Fetcher
	logger  *logrus.Entry
	nowFunc func() time.Time
}

func NewCacheService(prices repository.PriceRepository, fetcher Fetcher, logger *logrus.Logger) *CacheService {
	return &CacheService{
		prices:  prices,
		fetcher: fetcher,
		logger:  logger.WithField("component", "pricing"),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (s *CacheService) LatestPrice(ctx context.Context, symbol string, sources []models.PriceSource) (*models.PriceQuote, error) {
	return s.prices.LatestPrice(ctx, symbol, sources)
}

func (s *CacheService) PriceOnOrBefore(ctx context.Context, symbol string, sources []models.PriceSource, cutoff time.Time) (*models.PriceQuote, error) {
	return s.prices.PriceOnOrBefore(ctx, symbol, sources, cutoff)
}

func (s *CacheService) EarliestPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	return s.prices.EarliestPrice(ctx, symbol)
}

func (s *CacheService) HasHistory(ctx context.Context, symbol string) (bool, error) {
	return s.prices.HasHistory(ctx, symbol)
}

// BackfillHistory fetches and caches the symbol's full history, up to ten
// years back. Callers invoke it at most once per symbol per run, only when
// HasHistory is false.
func (s *CacheService) BackfillHistory(ctx context.Context, symbol string) error {
	if s.fetcher == nil {
		return repository.ErrNoPrice
	}
	now := s.nowFunc()
	quotes, err := s.fetcher.FetchHistory(ctx, symbol, now.AddDate(-10, 0, 0), now)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return repository.ErrNoPrice
	}
	s.logger.WithFields(logrus.Fields{"symbol": symbol, "points": len(quotes)}).Info("backfilled price history")
	return s.prices.SavePrices(ctx, quotes)
}

// RandomFetcher mocks an upstream provider with deterministic pseudo-random
// month-end prices, for local runs without a real data feed.
type RandomFetcher struct{}

func NewRandomFetcher() *RandomFetcher { return &RandomFetcher{} }

func (f *RandomFetcher) FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceQuote, error) {
	quotes := []models.PriceQuote{}
	for at := models.MonthStart(from); !at.After(to); at = at.AddDate(0, 1, 0) {
		quotes = append(quotes, models.PriceQuote{
			Symbol: symbol,
			Source: models.SourceFetched,
			Date:   at,
			Price:  f.generatePrice(symbol, at),
		})
	}
	return quotes, nil
}

func (f *RandomFetcher) generatePrice(symbol string, t time.Time) decimal.Decimal {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s-%d-%d", symbol, t.Year(), int(t.Month()))))
	seed := int64(h.Sum64())
	r := rand.New(rand.NewSource(seed))
	// Price range between 80 and 2000 to mimic liquid instruments.
	price := 80 + r.Float64()*1920
	return decimal.NewFromFloat(price).Round(2)
}
