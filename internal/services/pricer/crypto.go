package pricer

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

// CryptoUpstream raw crypto market data source addressed by provider ids.
type CryptoUpstream interface {
	Name() string
	// SimplePrice returns prices keyed by id; unknown ids are omitted.
	SimplePrice(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
	HistoryByDate(ctx context.Context, id string, date time.Time) (decimal.Decimal, error)
	HistoryRange(ctx context.Context, id string, from, to time.Time) ([]domain.DatedPrice, error)
}

// CryptoProvider serves crypto instruments. Tickers are translated to
// provider ids through IDs; a ticker without a mapping is passed through
// upper-cased and left to fail upstream.
type CryptoProvider struct {
	guard
	upstream CryptoUpstream
	ids      map[string]string
}

var _ Provider = (*CryptoProvider)(nil)

// NewCryptoProvider creates a crypto provider. ids maps tickers (any case,
// with or without sigil) to provider ids.
func NewCryptoProvider(upstream CryptoUpstream, ids map[string]string, cfg ProviderConfig, l *zap.Logger, metrics Recorder) *CryptoProvider {
	normalized := make(map[string]string, len(ids))
	for ticker, id := range ids {
		normalized[unusableKey(domain.KindCrypto, ticker)] = id
	}

	return &CryptoProvider{
		guard:    newGuard(upstream.Name(), domain.KindCrypto, cfg, l, metrics),
		upstream: upstream,
		ids:      normalized,
	}
}

// ProviderID returns the upstream id of the instrument.
func (p *CryptoProvider) ProviderID(inst domain.Instrument) string {
	if id, ok := p.ids[inst.Key()]; ok && id != "" {
		return id
	}
	return strings.ToUpper(inst.Symbol)
}

func (p *CryptoProvider) CurrentPrice(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error) {
	if err := p.check(inst); err != nil {
		return decimal.Zero, err
	}

	prices, err := p.CurrentPrices(ctx, []domain.Instrument{inst})
	if err != nil {
		return decimal.Zero, err
	}

	price, ok := prices[inst.Key()]
	if !ok {
		return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "no price for %s (id %s)", inst, p.ProviderID(inst))
	}
	return price, nil
}

func (p *CryptoProvider) CurrentPrices(ctx context.Context, insts []domain.Instrument) (map[string]decimal.Decimal, error) {
	// several tickers may share one id
	byID := make(map[string][]string, len(insts))
	ids := make([]string, 0, len(insts))
	for _, inst := range insts {
		if p.check(inst) != nil {
			continue
		}
		id := p.ProviderID(inst)
		if _, seen := byID[id]; !seen {
			ids = append(ids, id)
		}
		byID[id] = append(byID[id], inst.Key())
	}
	if len(ids) > p.maxBatch {
		return nil, errors.Errorf("batch of %d exceeds %s limit %d", len(ids), p.name, p.maxBatch)
	}

	out := make(map[string]decimal.Decimal, len(insts))
	if len(ids) == 0 {
		return out, nil
	}

	var raw map[string]decimal.Decimal
	err := p.call(ctx, "simple_price", func(ctx context.Context) error {
		var err error
		raw, err = p.upstream.SimplePrice(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	for id, keys := range byID {
		price, ok := raw[id]
		if !ok || !validPrice(price) {
			continue
		}
		for _, key := range keys {
			out[key] = price
		}
	}

	return out, nil
}

func (p *CryptoProvider) HistoricalPrice(ctx context.Context, inst domain.Instrument, date time.Time) (decimal.Decimal, error) {
	if err := p.check(inst); err != nil {
		return decimal.Zero, err
	}

	var price decimal.Decimal
	err := p.call(ctx, "history_by_date", func(ctx context.Context) error {
		var err error
		price, err = p.upstream.HistoryByDate(ctx, p.ProviderID(inst), domain.Day(date))
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !validPrice(price) {
		return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "invalid historical price %s for %s", price, inst)
	}

	return price, nil
}

func (p *CryptoProvider) PriceSeries(ctx context.Context, inst domain.Instrument, from, to time.Time) ([]domain.DatedPrice, error) {
	if err := p.check(inst); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, nil
	}

	var raw []domain.DatedPrice
	err := p.call(ctx, "history_range", func(ctx context.Context) error {
		var err error
		raw, err = p.upstream.HistoryRange(ctx, p.ProviderID(inst), domain.Day(from), domain.Day(to))
		return err
	})
	if err != nil {
		return nil, err
	}

	return cleanSeries(raw, from, to), nil
}
