// Package gain values holdings and derives per-holding and portfolio gain metrics.
package gain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/pricer"
)

const defaultParallelism = 8

type currentResolver interface {
	ResolveCurrentMany(ctx context.Context, symbols []string) []pricer.Quote
}

type historyResolver interface {
	Resolve(ctx context.Context, symbol string, date time.Time, reference *decimal.Decimal) (domain.PricePoint, error)
}

// HoldingValuation one holding valued at current and horizon prices.
type HoldingValuation struct {
	Holding         domain.Holding  `json:"holding"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	PriceSource     domain.Source   `json:"price_source"`
	Resolved        bool            `json:"resolved"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	PurchaseValue   decimal.Decimal `json:"purchase_value"`
	Gain            decimal.Decimal `json:"gain"`
	GainPercentage  decimal.Decimal `json:"gain_percentage"`
	DailyBaseValue  decimal.Decimal `json:"daily_base_value"`
	WeeklyBaseValue decimal.Decimal `json:"weekly_base_value"`
}

// TopGainer best performing resolved holding.
type TopGainer struct {
	Symbol         string          `json:"symbol"`
	GainPercentage decimal.Decimal `json:"gain_percentage"`
}

// Summary portfolio aggregates.
type Summary struct {
	TotalCurrentValue    decimal.Decimal `json:"total_current_value"`
	TotalPurchaseValue   decimal.Decimal `json:"total_purchase_value"`
	TotalGain            decimal.Decimal `json:"total_gain"`
	TotalGainPercentage  decimal.Decimal `json:"total_gain_percentage"`
	DailyGain            decimal.Decimal `json:"daily_gain"`
	DailyGainPercentage  decimal.Decimal `json:"daily_gain_percentage"`
	WeeklyGain           decimal.Decimal `json:"weekly_gain"`
	WeeklyGainPercentage decimal.Decimal `json:"weekly_gain_percentage"`
	TopGainer            *TopGainer      `json:"top_gainer,omitempty"`
}

// Valuation full valuation of one holding set.
type Valuation struct {
	AsOf     time.Time          `json:"as_of"`
	Holdings []HoldingValuation `json:"holdings"`
	Summary  Summary            `json:"summary"`
}

// Metric returns the gain over window.
func (v Valuation) Metric(w domain.Window) domain.GainMetric {
	switch w {
	case domain.WindowDaily:
		return domain.GainMetric{Window: w, Absolute: v.Summary.DailyGain, Percentage: v.Summary.DailyGainPercentage}
	case domain.WindowWeekly:
		return domain.GainMetric{Window: w, Absolute: v.Summary.WeeklyGain, Percentage: v.Summary.WeeklyGainPercentage}
	default:
		return domain.GainMetric{Window: domain.WindowTotal, Absolute: v.Summary.TotalGain, Percentage: v.Summary.TotalGainPercentage}
	}
}

// Calculator computes valuations. Safe for concurrent use.
type Calculator struct {
	current     currentResolver
	history     historyResolver
	parallelism int
	l           *zap.Logger
	now         func() time.Time
}

// NewCalculator creates a calculator. parallelism bounds concurrent
// per-holding horizon lookups; zero means 8.
func NewCalculator(current currentResolver, history historyResolver, parallelism int, l *zap.Logger) *Calculator {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Calculator{
		current:     current,
		history:     history,
		parallelism: parallelism,
		l:           l,
		now:         time.Now,
	}
}

// Calculate values holdings. It never fails: unresolvable prices degrade to
// the purchase price (current) or to the current price (horizons).
func (c *Calculator) Calculate(ctx context.Context, holdings []domain.Holding) Valuation {
	now := c.now()
	today := domain.Day(now)

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}
	quotes := c.current.ResolveCurrentMany(ctx, symbols)

	out := make([]HoldingValuation, len(holdings))
	g := new(errgroup.Group)
	g.SetLimit(c.parallelism)
	for i, h := range holdings {
		g.Go(func() error {
			out[i] = c.valueHolding(ctx, h, quotes[i], today)
			return nil
		})
	}
	_ = g.Wait()

	return Valuation{
		AsOf:     today,
		Holdings: out,
		Summary:  summarize(out),
	}
}

func (c *Calculator) valueHolding(ctx context.Context, h domain.Holding, q pricer.Quote, today time.Time) HoldingValuation {
	hv := HoldingValuation{
		Holding:       h,
		PurchaseValue: h.PurchaseValue(),
	}

	if q.Err == nil {
		hv.CurrentPrice = q.Point.Price
		hv.PriceSource = q.Point.Source
		hv.Resolved = true
	} else {
		c.l.Debug("current price unavailable, valuing at purchase price",
			zap.Int64("user_id", h.UserID), zap.String("symbol", h.Symbol), zap.Error(q.Err))
		hv.CurrentPrice = h.PurchasePrice
		hv.PriceSource = domain.SourceReference
	}

	hv.CurrentValue = h.ValueAt(hv.CurrentPrice)
	hv.Gain = hv.CurrentValue.Sub(hv.PurchaseValue)
	hv.GainPercentage = domain.Percentage(hv.CurrentValue, hv.PurchaseValue)

	hv.DailyBaseValue = h.ValueAt(c.horizonPrice(ctx, h, today.AddDate(0, 0, -1), hv.CurrentPrice))
	hv.WeeklyBaseValue = h.ValueAt(c.horizonPrice(ctx, h, today.AddDate(0, 0, -7), hv.CurrentPrice))

	return hv
}

// horizonPrice price of the holding on date. A position opened after date
// has its cost as baseline; an unresolvable price contributes no change.
func (c *Calculator) horizonPrice(ctx context.Context, h domain.Holding, date time.Time, current decimal.Decimal) decimal.Decimal {
	if date.Before(domain.Day(h.PurchaseDate)) {
		return h.PurchasePrice
	}

	reference := h.PurchasePrice
	point, err := c.history.Resolve(ctx, h.Symbol, date, &reference)
	if err != nil {
		return current
	}
	return point.Price
}

func summarize(holdings []HoldingValuation) Summary {
	var (
		s                     Summary
		dailyBase, weeklyBase decimal.Decimal
		pctCurrent, pctBase   decimal.Decimal
		bestPct               decimal.Decimal
		best                  *HoldingValuation
	)

	for i := range holdings {
		hv := &holdings[i]

		s.TotalCurrentValue = s.TotalCurrentValue.Add(hv.CurrentValue)
		s.TotalPurchaseValue = s.TotalPurchaseValue.Add(hv.PurchaseValue)
		dailyBase = dailyBase.Add(hv.DailyBaseValue)
		weeklyBase = weeklyBase.Add(hv.WeeklyBaseValue)

		if !hv.PurchaseValue.IsZero() {
			pctCurrent = pctCurrent.Add(hv.CurrentValue)
			pctBase = pctBase.Add(hv.PurchaseValue)
		}

		if hv.Resolved && (best == nil || hv.GainPercentage.GreaterThan(bestPct)) {
			best, bestPct = hv, hv.GainPercentage
		}
	}

	s.TotalGain = s.TotalCurrentValue.Sub(s.TotalPurchaseValue)
	s.TotalGainPercentage = domain.Percentage(pctCurrent, pctBase)
	s.DailyGain = s.TotalCurrentValue.Sub(dailyBase)
	s.DailyGainPercentage = domain.Percentage(s.TotalCurrentValue, dailyBase)
	s.WeeklyGain = s.TotalCurrentValue.Sub(weeklyBase)
	s.WeeklyGainPercentage = domain.Percentage(s.TotalCurrentValue, weeklyBase)

	if best != nil {
		s.TopGainer = &TopGainer{Symbol: best.Holding.Symbol, GainPercentage: best.GainPercentage}
	}

	return s
}
