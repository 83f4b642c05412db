package pricer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

const (
	bybitDailyInterval = "D"
	bybitKlineLimit    = 1000
)

// BybitUpstream crypto prices from Bybit V5 spot market data.
type BybitUpstream struct {
	client *bybit.Client
	quote  string
	now    func() time.Time
}

var _ CryptoUpstream = (*BybitUpstream)(nil)

func NewBybitUpstream(client *bybit.Client, quote string) *BybitUpstream {
	if quote == "" {
		quote = "USDT"
	}
	return &BybitUpstream{client: client, quote: strings.ToUpper(quote), now: time.Now}
}

func (u *BybitUpstream) Name() string { return "bybit" }

func (u *BybitUpstream) symbol(id string) string {
	id = strings.ToUpper(id)
	if strings.HasSuffix(id, u.quote) {
		return id
	}
	return id + u.quote
}

// SimplePrice reads the whole spot ticker list once and picks the requested ids.
func (u *BybitUpstream) SimplePrice(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := u.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
	})
	if err != nil {
		return nil, classifyMessage(errors.Wrap(err, "bybit tickers"))
	}

	wanted := make(map[string]string, len(ids))
	for _, id := range ids {
		wanted[u.symbol(id)] = id
	}

	out := make(map[string]decimal.Decimal, len(ids))
	for _, item := range result.Result.Spot.List {
		id, ok := wanted[string(item.Symbol)]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(item.LastPrice)
		if err != nil {
			continue
		}
		out[id] = price
	}
	return out, nil
}

func (u *BybitUpstream) HistoryByDate(ctx context.Context, id string, date time.Time) (decimal.Decimal, error) {
	day := domain.Day(date)
	series, err := u.HistoryRange(ctx, id, day, day.Add(24*time.Hour))
	if err != nil {
		return decimal.Zero, err
	}
	for _, p := range series {
		if p.Date.Equal(day) {
			return p.Price, nil
		}
	}
	return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "bybit has no daily kline for %s on %s", id, day.Format(time.DateOnly))
}

// HistoryRange requests enough recent daily klines to cover from and keeps
// the ones inside [from, to).
func (u *BybitUpstream) HistoryRange(ctx context.Context, id string, from, to time.Time) ([]domain.DatedPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := int(domain.DaysBetween(u.now(), from)) + 2
	if limit > bybitKlineLimit {
		return nil, errors.Wrapf(domain.ErrNotFound, "bybit keeps %d daily klines, %s is older", bybitKlineLimit, from.Format(time.DateOnly))
	}

	result, err := u.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(u.symbol(id)),
		Interval: bybit.Interval(bybitDailyInterval),
		Limit:    &limit,
	})
	if err != nil {
		return nil, classifyMessage(errors.Wrapf(err, "bybit klines %s", id))
	}
	if result == nil {
		return nil, errors.Wrapf(domain.ErrNotFound, "empty bybit kline result for %s", id)
	}

	out := make([]domain.DatedPrice, 0, len(result.Result.List))
	for _, k := range result.Result.List {
		ms, err := strconv.ParseInt(k.StartTime, 10, 64)
		if err != nil {
			continue
		}
		openTime := time.UnixMilli(ms).UTC()
		if openTime.Before(from) || !openTime.Before(to) {
			continue
		}
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			continue
		}
		out = append(out, domain.DatedPrice{Date: openTime, Price: closePrice})
	}
	return out, nil
}
