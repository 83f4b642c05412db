package pricer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

// EquityUpstream raw equity market data source. Implementations return
// errors classified into domain.ErrNotFound, ErrRateLimited or ErrTransient
// where they can; anything else is treated as transient.
type EquityUpstream interface {
	Name() string
	Quote(ctx context.Context, ticker string) (decimal.Decimal, error)
	// BatchQuote returns prices keyed by ticker; unknown tickers are omitted.
	BatchQuote(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error)
	// History returns daily closes between from and to.
	History(ctx context.Context, ticker string, from, to time.Time) ([]domain.DatedPrice, error)
}

// EquityProvider serves equity instruments.
type EquityProvider struct {
	guard
	upstream EquityUpstream
}

var _ Provider = (*EquityProvider)(nil)

// NewEquityProvider creates an equity provider over upstream.
func NewEquityProvider(upstream EquityUpstream, cfg ProviderConfig, l *zap.Logger, metrics Recorder) *EquityProvider {
	return &EquityProvider{
		guard:    newGuard(upstream.Name(), domain.KindEquity, cfg, l, metrics),
		upstream: upstream,
	}
}

func (p *EquityProvider) CurrentPrice(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error) {
	if err := p.check(inst); err != nil {
		return decimal.Zero, err
	}

	var price decimal.Decimal
	err := p.call(ctx, "quote", func(ctx context.Context) error {
		var err error
		price, err = p.upstream.Quote(ctx, inst.Ticker())
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !validPrice(price) {
		return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "invalid quote %s for %s", price, inst)
	}

	return price, nil
}

func (p *EquityProvider) CurrentPrices(ctx context.Context, insts []domain.Instrument) (map[string]decimal.Decimal, error) {
	tickers := make([]string, 0, len(insts))
	for _, inst := range insts {
		if p.check(inst) != nil {
			continue
		}
		tickers = append(tickers, inst.Ticker())
	}
	if len(tickers) > p.maxBatch {
		return nil, errors.Errorf("batch of %d exceeds %s limit %d", len(tickers), p.name, p.maxBatch)
	}

	out := make(map[string]decimal.Decimal, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}

	var raw map[string]decimal.Decimal
	err := p.call(ctx, "batch_quote", func(ctx context.Context) error {
		var err error
		raw, err = p.upstream.BatchQuote(ctx, tickers)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, inst := range insts {
		price, ok := raw[inst.Ticker()]
		if !ok || !validPrice(price) || p.check(inst) != nil {
			continue
		}
		out[inst.Key()] = price
	}

	return out, nil
}

func (p *EquityProvider) HistoricalPrice(ctx context.Context, inst domain.Instrument, date time.Time) (decimal.Decimal, error) {
	day := domain.Day(date)
	series, err := p.PriceSeries(ctx, inst, day, day.Add(24*time.Hour))
	if err != nil {
		return decimal.Zero, err
	}
	if len(series) == 0 {
		return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "no close for %s on %s", inst, day.Format(time.DateOnly))
	}
	return series[0].Price, nil
}

func (p *EquityProvider) PriceSeries(ctx context.Context, inst domain.Instrument, from, to time.Time) ([]domain.DatedPrice, error) {
	if err := p.check(inst); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, nil
	}

	var raw []domain.DatedPrice
	err := p.call(ctx, "history", func(ctx context.Context) error {
		var err error
		raw, err = p.upstream.History(ctx, inst.Ticker(), domain.Day(from), domain.Day(to))
		return err
	})
	if err != nil {
		return nil, err
	}

	return cleanSeries(raw, from, to), nil
}
