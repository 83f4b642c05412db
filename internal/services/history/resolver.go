// Package history reconstructs best-effort historical prices with a
// cache-first lookup, a daily search window and a traceable fallback chain.
package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
)

const (
	defaultWindowDays   = 7
	defaultFetchTimeout = 30 * time.Second

	day = 24 * time.Hour
)

// Fallback step names, also used as metric labels.
const (
	StepLastKnown = "last_known"
	StepReference = "reference"
	StepNotFound  = "not_found"
)

type currentResolver interface {
	ResolveCurrent(ctx context.Context, symbol string) (domain.PricePoint, error)
	CachedCurrent(ctx context.Context, inst domain.Instrument) (domain.PricePoint, bool)
}

type seriesFetcher interface {
	Series(ctx context.Context, inst domain.Instrument, from, to time.Time) ([]domain.DatedPrice, error)
}

type fallbackRecorder interface {
	Fallback(step string)
}

// Options resolver tuning.
type Options struct {
	// WindowDays half-width of the search window around the target date.
	WindowDays int
	// FetchTimeout bounds a shared window search.
	FetchTimeout time.Duration
	TTL          cache.TTLPolicy
}

// Resolver resolves the price of a symbol as of a date.
type Resolver struct {
	cache        cache.Cache
	current      currentResolver
	series       seriesFetcher
	ttl          cache.TTLPolicy
	windowDays   int
	fetchTimeout time.Duration
	l            *zap.Logger
	metrics      fallbackRecorder
	group        singleflight.Group
	now          func() time.Time
}

// NewResolver creates a resolver. metrics may be nil.
func NewResolver(c cache.Cache, current currentResolver, series seriesFetcher, opts Options, l *zap.Logger, metrics fallbackRecorder) *Resolver {
	if opts.WindowDays <= 0 {
		opts.WindowDays = defaultWindowDays
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}

	return &Resolver{
		cache:        c,
		current:      current,
		series:       series,
		ttl:          opts.TTL,
		windowDays:   opts.WindowDays,
		fetchTimeout: opts.FetchTimeout,
		l:            l,
		metrics:      metrics,
		now:          time.Now,
	}
}

// PriceHistory resolves the price of symbol on date with no reference price.
func (r *Resolver) PriceHistory(ctx context.Context, symbol string, date time.Time) (domain.PricePoint, error) {
	return r.Resolve(ctx, symbol, date, nil)
}

// Resolve returns the price of symbol on date. reference, usually the
// holding's purchase price, is used when no market price can be traced.
// Future dates resolve to the current price, errors included. Otherwise
// the only error returned matches domain.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, symbol string, date time.Time, reference *decimal.Decimal) (domain.PricePoint, error) {
	inst := domain.Classify(symbol)
	target := domain.Day(date)
	now := r.now()
	today := domain.Day(now)

	if point, ok := r.cached(ctx, inst, target); ok {
		return point, nil
	}

	if target.After(today) {
		return r.current.ResolveCurrent(ctx, symbol)
	}

	if now.Sub(target) < day {
		if reference != nil {
			r.l.Debug("date too recent for history, using reference price",
				zap.String("symbol", inst.String()), zap.Time("date", target))
			return r.referencePoint(inst, target, *reference), nil
		}
		return r.fallback(ctx, inst, target, nil, errors.Wrap(domain.ErrNotFound, "date too recent and no reference price"))
	}

	point, err := r.searchWindow(ctx, inst, target, now)
	if err != nil {
		return r.fallback(ctx, inst, target, reference, err)
	}
	return point, nil
}

func (r *Resolver) cached(ctx context.Context, inst domain.Instrument, target time.Time) (domain.PricePoint, bool) {
	var point domain.PricePoint
	err := cache.GetJSON(ctx, r.cache, cache.HistoricalPriceKey(inst, target), &point)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.l.Warn("failed to read cached historical price", zap.String("symbol", inst.String()), zap.Error(err))
		}
		return domain.PricePoint{}, false
	}
	return point.WithSource(domain.SourceCache), true
}

// searchWindow queries [target-w, min(target+w+1, yesterday)) and picks the
// closest trading day, earlier day on ties. Identical concurrent searches
// share one call. A caller leaving early does not cancel the shared search.
func (r *Resolver) searchWindow(ctx context.Context, inst domain.Instrument, target, now time.Time) (domain.PricePoint, error) {
	key := cache.HistoricalPriceKey(inst, target)

	ch := r.group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()

		yesterday := domain.Day(now).Add(-day)
		from := target.Add(-time.Duration(r.windowDays) * day)
		to := target.Add(time.Duration(r.windowDays+1) * day)
		if to.After(yesterday) {
			to = yesterday
		}
		if !from.Before(to) {
			return nil, errors.Wrap(domain.ErrNotFound, "empty search window")
		}

		series, err := r.series.Series(flightCtx, inst, from, to)
		if err != nil {
			return nil, err
		}

		best, ok := nearest(series, target)
		if !ok {
			return nil, errors.Wrapf(domain.ErrNotFound, "no prices for %s between %s and %s",
				inst, from.Format(time.DateOnly), to.Format(time.DateOnly))
		}

		point := domain.PricePoint{
			Instrument: inst,
			Date:       target,
			Price:      best.Price,
			Source:     domain.SourceLive,
		}
		ttl := r.ttl.Historical(now.Sub(target))
		if err := cache.SetJSON(flightCtx, r.cache, key, point, ttl); err != nil {
			r.l.Warn("failed to cache historical price", zap.String("symbol", inst.String()), zap.Error(err))
		}

		r.l.Debug("historical price resolved",
			zap.String("symbol", inst.String()),
			zap.Time("target", target),
			zap.Time("found", best.Date),
			zap.Duration("ttl", ttl))

		return point, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.PricePoint{}, res.Err
		}
		return res.Val.(domain.PricePoint), nil
	case <-ctx.Done():
		return domain.PricePoint{}, errors.Wrap(ctx.Err(), "wait for historical price")
	}
}

// nearest returns the point closest to target. series must be sorted oldest
// first so the earlier date wins a tie.
func nearest(series []domain.DatedPrice, target time.Time) (domain.DatedPrice, bool) {
	var (
		best     domain.DatedPrice
		bestDist int64 = -1
	)
	for _, p := range series {
		if !p.Price.IsPositive() {
			continue
		}
		dist := domain.DaysBetween(p.Date, target)
		if bestDist < 0 || dist < bestDist {
			best, bestDist = p, dist
		}
	}
	return best, bestDist >= 0
}

// fallback degrades in order: last known current price, reference price, not found.
func (r *Resolver) fallback(ctx context.Context, inst domain.Instrument, target time.Time, reference *decimal.Decimal, cause error) (domain.PricePoint, error) {
	if point, ok := r.current.CachedCurrent(ctx, inst); ok {
		r.degraded(StepLastKnown, inst, target, cause)
		point.Date = target
		return point.WithSource(domain.SourceLastKnown), nil
	}

	if reference != nil {
		r.degraded(StepReference, inst, target, cause)
		return r.referencePoint(inst, target, *reference), nil
	}

	r.degraded(StepNotFound, inst, target, cause)
	return domain.PricePoint{Instrument: inst, Date: target}, errors.Wrapf(domain.ErrNotFound,
		"no price for %s on %s", inst, target.Format(time.DateOnly))
}

func (r *Resolver) referencePoint(inst domain.Instrument, target time.Time, price decimal.Decimal) domain.PricePoint {
	return domain.PricePoint{
		Instrument: inst,
		Date:       target,
		Price:      price,
		Source:     domain.SourceReference,
	}
}

func (r *Resolver) degraded(step string, inst domain.Instrument, target time.Time, cause error) {
	if r.metrics != nil {
		r.metrics.Fallback(step)
	}
	r.l.Warn("historical price degraded",
		zap.String("symbol", inst.String()),
		zap.Time("date", target),
		zap.String("fallback", step),
		zap.Error(cause))
}
