package pricer

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

const hyperliquidDailyInterval = "1d"

// HyperliquidUpstream crypto prices from the Hyperliquid public Info API.
// Provider ids are coin names, e.g. "BTC".
type HyperliquidUpstream struct {
	info *hyperliquid.Info
}

var _ CryptoUpstream = (*HyperliquidUpstream)(nil)

func NewHyperliquidUpstream(info *hyperliquid.Info) *HyperliquidUpstream {
	return &HyperliquidUpstream{info: info}
}

func (u *HyperliquidUpstream) Name() string { return "hyperliquid" }

func (u *HyperliquidUpstream) SimplePrice(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if u.info == nil {
		return nil, errors.New("hyperliquid info client is nil")
	}

	mids, err := u.info.AllMids(ctx)
	if err != nil {
		return nil, classifyMessage(errors.Wrap(err, "hyperliquid all mids"))
	}

	out := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		mid, ok := mids[strings.ToUpper(id)]
		if !ok || mid == "" {
			continue
		}
		price, err := decimal.NewFromString(mid)
		if err != nil {
			continue
		}
		out[id] = price
	}
	return out, nil
}

func (u *HyperliquidUpstream) HistoryByDate(ctx context.Context, id string, date time.Time) (decimal.Decimal, error) {
	day := domain.Day(date)
	series, err := u.HistoryRange(ctx, id, day, day.Add(24*time.Hour))
	if err != nil {
		return decimal.Zero, err
	}
	if len(series) == 0 {
		return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "hyperliquid has no daily candle for %s on %s", id, day.Format(time.DateOnly))
	}
	return series[0].Price, nil
}

func (u *HyperliquidUpstream) HistoryRange(ctx context.Context, id string, from, to time.Time) ([]domain.DatedPrice, error) {
	if u.info == nil {
		return nil, errors.New("hyperliquid info client is nil")
	}

	coin := strings.ToUpper(id)
	candles, err := u.info.CandlesSnapshot(ctx, coin, hyperliquidDailyInterval, from.UnixMilli(), to.UnixMilli()-1)
	if err != nil {
		return nil, classifyMessage(errors.Wrapf(err, "hyperliquid candles %s", coin))
	}

	out := make([]domain.DatedPrice, 0, len(candles))
	for _, c := range candles {
		closePrice, err := decimal.NewFromString(c.Close)
		if err != nil {
			continue
		}
		out = append(out, domain.DatedPrice{
			Date:  time.UnixMilli(c.TimeOpen).UTC(),
			Price: closePrice,
		})
	}
	return out, nil
}
