// Package pricer resolves instrument prices through kind-specific upstream providers.
package pricer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

// Provider fetches prices of one asset kind from an upstream.
// Every error it returns matches domain.ErrNotFound or domain.ErrRateLimited.
type Provider interface {
	Kind() domain.Kind
	Name() string
	// MaxBatch is the largest number of symbols accepted by one CurrentPrices call.
	MaxBatch() int
	// Usable reports false for symbols on the provider's known-bad list.
	Usable(inst domain.Instrument) bool
	CurrentPrice(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error)
	// CurrentPrices returns prices keyed by Instrument.Key; absent keys were not found.
	CurrentPrices(ctx context.Context, insts []domain.Instrument) (map[string]decimal.Decimal, error)
	HistoricalPrice(ctx context.Context, inst domain.Instrument, date time.Time) (decimal.Decimal, error)
	// PriceSeries returns daily prices in [from, to), oldest first.
	PriceSeries(ctx context.Context, inst domain.Instrument, from, to time.Time) ([]domain.DatedPrice, error)
}

// Quote outcome of resolving one instrument.
type Quote struct {
	Point domain.PricePoint
	Err   error
}

// Fetcher resolves current prices for a batch of instruments, in request order.
type Fetcher interface {
	Fetch(ctx context.Context, insts []domain.Instrument) []Quote
}

// Recorder receives upstream call outcomes. observability.Metrics implements it.
type Recorder interface {
	UpstreamCall(provider, outcome string, took time.Duration)
}
