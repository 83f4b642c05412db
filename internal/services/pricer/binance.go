package pricer

import (
	"context"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

const (
	binanceDailyInterval = "1d"
	binanceKlineLimit    = 1000

	binanceCodeTooManyRequests = -1003
	binanceCodeInvalidSymbol   = -1121
)

// BinanceUpstream crypto prices from Binance spot. Provider ids are base
// assets; the quote asset is appended unless the id already carries it.
type BinanceUpstream struct {
	client *binance.Client
	quote  string
}

var _ CryptoUpstream = (*BinanceUpstream)(nil)

func NewBinanceUpstream(client *binance.Client, quote string) *BinanceUpstream {
	if quote == "" {
		quote = "USDT"
	}
	return &BinanceUpstream{client: client, quote: strings.ToUpper(quote)}
}

func (u *BinanceUpstream) Name() string { return "binance" }

func (u *BinanceUpstream) symbol(id string) string {
	id = strings.ToUpper(id)
	if strings.HasSuffix(id, u.quote) {
		return id
	}
	return id + u.quote
}

func (u *BinanceUpstream) SimplePrice(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	bySymbol := make(map[string]string, len(ids))
	symbols := make([]string, 0, len(ids))
	for _, id := range ids {
		s := u.symbol(id)
		bySymbol[s] = id
		symbols = append(symbols, s)
	}

	prices, err := u.client.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		err = classifyBinance(err)
		// one unknown symbol fails the whole request; ask one by one instead
		if errors.Is(err, domain.ErrNotFound) && len(symbols) > 1 {
			return u.pricesOneByOne(ctx, bySymbol)
		}
		return nil, err
	}

	out := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		id, ok := bySymbol[p.Symbol]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			continue
		}
		out[id] = price
	}
	return out, nil
}

func (u *BinanceUpstream) pricesOneByOne(ctx context.Context, bySymbol map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(bySymbol))
	for symbol, id := range bySymbol {
		prices, err := u.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			err = classifyBinance(err)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return out, err
		}
		if len(prices) == 0 {
			continue
		}
		if price, err := decimal.NewFromString(prices[0].Price); err == nil {
			out[id] = price
		}
	}
	return out, nil
}

func (u *BinanceUpstream) HistoryByDate(ctx context.Context, id string, date time.Time) (decimal.Decimal, error) {
	day := domain.Day(date)
	series, err := u.HistoryRange(ctx, id, day, day.Add(24*time.Hour))
	if err != nil {
		return decimal.Zero, err
	}
	if len(series) == 0 {
		return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "binance has no daily kline for %s on %s", id, day.Format(time.DateOnly))
	}
	return series[0].Price, nil
}

func (u *BinanceUpstream) HistoryRange(ctx context.Context, id string, from, to time.Time) ([]domain.DatedPrice, error) {
	klines, err := u.client.NewKlinesService().
		Symbol(u.symbol(id)).
		Interval(binanceDailyInterval).
		StartTime(from.UnixMilli()).
		EndTime(to.UnixMilli() - 1).
		Limit(binanceKlineLimit).
		Do(ctx)
	if err != nil {
		return nil, classifyBinance(err)
	}

	out := make([]domain.DatedPrice, 0, len(klines))
	for _, k := range klines {
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrNotFound, "parse binance close %q: %s", k.Close, err)
		}
		out = append(out, domain.DatedPrice{
			Date:  time.UnixMilli(k.OpenTime).UTC(),
			Price: closePrice,
		})
	}
	return out, nil
}

func classifyBinance(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case binanceCodeTooManyRequests:
			return errors.Wrap(domain.ErrRateLimited, apiErr.Error())
		case binanceCodeInvalidSymbol:
			return errors.Wrap(domain.ErrNotFound, apiErr.Error())
		}
	}
	return classifyMessage(err)
}
