package gain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/pricer"
)

var now = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

type fakeCurrent struct {
	prices map[string]string
}

func (f *fakeCurrent) ResolveCurrentMany(_ context.Context, symbols []string) []pricer.Quote {
	out := make([]pricer.Quote, len(symbols))
	for i, s := range symbols {
		inst := domain.Classify(s)
		p, ok := f.prices[s]
		if !ok {
			out[i] = pricer.Quote{Point: domain.PricePoint{Instrument: inst}, Err: domain.ErrNotFound}
			continue
		}
		out[i] = pricer.Quote{Point: domain.PricePoint{Instrument: inst, Price: decimal.RequireFromString(p), Source: domain.SourceLive}}
	}
	return out
}

type fakeHistory struct {
	mu     sync.Mutex
	prices map[string]string // symbol@YYYY-MM-DD
	calls  []string
}

func (f *fakeHistory) Resolve(_ context.Context, symbol string, date time.Time, _ *decimal.Decimal) (domain.PricePoint, error) {
	key := symbol + "@" + date.Format(time.DateOnly)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	p, ok := f.prices[key]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	return domain.PricePoint{Price: decimal.RequireFromString(p), Source: domain.SourceLive}, nil
}

func newCalculator(cur *fakeCurrent, hist *fakeHistory) *Calculator {
	c := NewCalculator(cur, hist, 4, zap.NewNop())
	c.now = func() time.Time { return now }
	return c
}

func holding(symbol, qty, purchase string, purchased time.Time) domain.Holding {
	return domain.Holding{
		UserID:        1,
		Symbol:        symbol,
		Quantity:      decimal.RequireFromString(qty),
		PurchasePrice: decimal.RequireFromString(purchase),
		PurchaseDate:  purchased,
	}
}

var longAgo = time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)

func TestCalculator_SingleHolding(t *testing.T) {
	cur := &fakeCurrent{prices: map[string]string{"AAPL": "180"}}
	hist := &fakeHistory{prices: map[string]string{
		"AAPL@2024-05-09": "175",
		"AAPL@2024-05-03": "160",
	}}

	v := newCalculator(cur, hist).Calculate(context.Background(), []domain.Holding{holding("AAPL", "10", "150", longAgo)})

	require.Len(t, v.Holdings, 1)
	hv := v.Holdings[0]
	assert.True(t, hv.Resolved)
	assert.Equal(t, "1800", hv.CurrentValue.String())
	assert.Equal(t, "300", hv.Gain.String())
	assert.Equal(t, "20", hv.GainPercentage.StringFixed(0))
	assert.Equal(t, "20.00", hv.GainPercentage.StringFixed(2))

	s := v.Summary
	assert.Equal(t, "1800", s.TotalCurrentValue.String())
	assert.Equal(t, "1500", s.TotalPurchaseValue.String())
	assert.Equal(t, "300", s.TotalGain.String())
	assert.Equal(t, "20", s.TotalGainPercentage.String())
	assert.Equal(t, "50", s.DailyGain.String())
	assert.Equal(t, "2.86", s.DailyGainPercentage.String())
	assert.Equal(t, "200", s.WeeklyGain.String())
	assert.Equal(t, "12.5", s.WeeklyGainPercentage.String())
	require.NotNil(t, s.TopGainer)
	assert.Equal(t, "AAPL", s.TopGainer.Symbol)

	assert.Equal(t, domain.GainMetric{Window: domain.WindowWeekly, Absolute: s.WeeklyGain, Percentage: s.WeeklyGainPercentage},
		v.Metric(domain.WindowWeekly))
	assert.Equal(t, domain.WindowTotal, v.Metric(domain.WindowTotal).Window)
}

func TestCalculator_ZeroPurchaseValue(t *testing.T) {
	cur := &fakeCurrent{prices: map[string]string{"GIFT": "100", "AAPL": "180"}}
	hist := &fakeHistory{}

	t.Run("alone", func(t *testing.T) {
		v := newCalculator(cur, hist).Calculate(context.Background(), []domain.Holding{holding("GIFT", "10", "0", longAgo)})

		hv := v.Holdings[0]
		assert.Equal(t, "1000", hv.CurrentValue.String())
		assert.True(t, hv.PurchaseValue.IsZero())
		assert.True(t, hv.GainPercentage.IsZero())
		assert.Equal(t, "1000", v.Summary.TotalGain.String())
		assert.True(t, v.Summary.TotalGainPercentage.IsZero())
	})

	t.Run("excluded from total percentage", func(t *testing.T) {
		v := newCalculator(cur, hist).Calculate(context.Background(), []domain.Holding{
			holding("GIFT", "10", "0", longAgo),
			holding("AAPL", "10", "150", longAgo),
		})

		assert.Equal(t, "2800", v.Summary.TotalCurrentValue.String())
		assert.Equal(t, "1300", v.Summary.TotalGain.String())
		assert.Equal(t, "20", v.Summary.TotalGainPercentage.String())
	})
}

func TestCalculator_GainIdentity(t *testing.T) {
	cur := &fakeCurrent{prices: map[string]string{"AAPL": "180", "$BTC": "64000.5", "MSFT": "401.23"}}
	hist := &fakeHistory{}
	holdings := []domain.Holding{
		holding("AAPL", "3", "150", longAgo),
		holding("$BTC", "0.25", "30000", longAgo),
		holding("MSFT", "7", "420", longAgo),
	}

	v := newCalculator(cur, hist).Calculate(context.Background(), holdings)

	for _, hv := range v.Holdings {
		want := hv.Holding.Quantity.Mul(hv.CurrentPrice).Sub(hv.Holding.Quantity.Mul(hv.Holding.PurchasePrice))
		assert.True(t, want.Equal(hv.Gain), hv.Holding.Symbol)
	}
	assert.True(t, v.Summary.TotalCurrentValue.Sub(v.Summary.TotalPurchaseValue).Equal(v.Summary.TotalGain))
}

func TestCalculator_UnresolvedCurrentPrice(t *testing.T) {
	cur := &fakeCurrent{prices: map[string]string{"AAPL": "160"}}
	hist := &fakeHistory{}

	v := newCalculator(cur, hist).Calculate(context.Background(), []domain.Holding{
		holding("DELISTED", "5", "20", longAgo),
		holding("AAPL", "1", "150", longAgo),
	})

	gone := v.Holdings[0]
	assert.False(t, gone.Resolved)
	assert.Equal(t, domain.SourceReference, gone.PriceSource)
	assert.Equal(t, "100", gone.CurrentValue.String())
	assert.True(t, gone.Gain.IsZero())

	assert.Equal(t, "260", v.Summary.TotalCurrentValue.String())
	require.NotNil(t, v.Summary.TopGainer)
	assert.Equal(t, "AAPL", v.Summary.TopGainer.Symbol)
}

func TestCalculator_NoResolvedHoldingsHasNoTopGainer(t *testing.T) {
	v := newCalculator(&fakeCurrent{}, &fakeHistory{}).Calculate(context.Background(), []domain.Holding{holding("X", "1", "1", longAgo)})
	assert.Nil(t, v.Summary.TopGainer)
}

func TestCalculator_HorizonBeforePurchaseUsesCost(t *testing.T) {
	cur := &fakeCurrent{prices: map[string]string{"$ETH": "3300"}}
	hist := &fakeHistory{prices: map[string]string{"$ETH@2024-05-09": "3200"}}
	purchased := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

	v := newCalculator(cur, hist).Calculate(context.Background(), []domain.Holding{holding("$ETH", "1", "3000", purchased)})

	hv := v.Holdings[0]
	assert.Equal(t, "3200", hv.DailyBaseValue.String())
	assert.Equal(t, "3000", hv.WeeklyBaseValue.String())
	assert.Equal(t, []string{"$ETH@2024-05-09"}, hist.calls)
}

func TestCalculator_HorizonNotFoundUsesCurrent(t *testing.T) {
	cur := &fakeCurrent{prices: map[string]string{"AAPL": "180"}}

	v := newCalculator(cur, &fakeHistory{}).Calculate(context.Background(), []domain.Holding{holding("AAPL", "2", "150", longAgo)})

	assert.True(t, v.Summary.DailyGain.IsZero())
	assert.True(t, v.Summary.DailyGainPercentage.IsZero())
	assert.True(t, v.Summary.WeeklyGain.IsZero())
}

func TestCalculator_TopGainerTieFirstWins(t *testing.T) {
	cur := &fakeCurrent{prices: map[string]string{"AAA": "110", "BBB": "220"}}

	v := newCalculator(cur, &fakeHistory{}).Calculate(context.Background(), []domain.Holding{
		holding("AAA", "1", "100", longAgo),
		holding("BBB", "1", "200", longAgo),
	})

	require.NotNil(t, v.Summary.TopGainer)
	assert.Equal(t, "AAA", v.Summary.TopGainer.Symbol)
	assert.Equal(t, "10", v.Summary.TopGainer.GainPercentage.String())
}

func TestCalculator_Empty(t *testing.T) {
	v := newCalculator(&fakeCurrent{}, &fakeHistory{}).Calculate(context.Background(), nil)

	assert.Empty(t, v.Holdings)
	assert.True(t, v.Summary.TotalCurrentValue.IsZero())
	assert.True(t, v.Summary.TotalGainPercentage.IsZero())
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), v.AsOf)
}
