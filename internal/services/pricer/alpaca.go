package pricer

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

// AlpacaUpstream equity market data from the Alpaca data API.
type AlpacaUpstream struct {
	client *marketdata.Client
}

var _ EquityUpstream = (*AlpacaUpstream)(nil)

func NewAlpacaUpstream(client *marketdata.Client) *AlpacaUpstream {
	return &AlpacaUpstream{client: client}
}

func (u *AlpacaUpstream) Name() string { return "alpaca" }

func (u *AlpacaUpstream) Quote(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	trade, err := u.client.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, classifyMessage(errors.Wrapf(err, "alpaca latest trade %s", ticker))
	}
	if trade == nil {
		return decimal.Zero, errors.Wrapf(domain.ErrNotFound, "alpaca has no trades for %s", ticker)
	}

	return decimal.NewFromFloat(trade.Price), nil
}

func (u *AlpacaUpstream) BatchQuote(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trades, err := u.client.GetLatestTrades(tickers, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return nil, classifyMessage(errors.Wrapf(err, "alpaca latest trades for %d symbols", len(tickers)))
	}

	out := make(map[string]decimal.Decimal, len(trades))
	for ticker, trade := range trades {
		out[ticker] = decimal.NewFromFloat(trade.Price)
	}
	return out, nil
}

func (u *AlpacaUpstream) History(ctx context.Context, ticker string, from, to time.Time) ([]domain.DatedPrice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// End is exclusive for daily bars
	bars, err := u.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     from,
		End:       to,
	})
	if err != nil {
		return nil, classifyMessage(errors.Wrapf(err, "alpaca daily bars %s", ticker))
	}

	out := make([]domain.DatedPrice, 0, len(bars))
	for _, bar := range bars {
		out = append(out, domain.DatedPrice{
			Date:  bar.Timestamp,
			Price: decimal.NewFromFloat(bar.Close),
		})
	}
	return out, nil
}
