package pricer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
)

// cacheRecorder counts cache lookups. observability.Metrics implements it.
type cacheRecorder interface {
	CacheLookup(class string, hit bool)
}

// Router classifies symbols and resolves current prices cache-first,
// dispatching misses to the batch fetcher.
type Router struct {
	cache   cache.Cache
	fetcher Fetcher
	l       *zap.Logger
	metrics cacheRecorder
	now     func() time.Time
}

// NewRouter creates a router. metrics may be nil.
func NewRouter(c cache.Cache, fetcher Fetcher, l *zap.Logger, metrics cacheRecorder) *Router {
	return &Router{
		cache:   c,
		fetcher: fetcher,
		l:       l,
		metrics: metrics,
		now:     time.Now,
	}
}

// Classify derives the instrument kind of a raw symbol.
func (r *Router) Classify(symbol string) domain.Instrument {
	return domain.Classify(symbol)
}

// ResolveCurrent returns the current price of symbol. Any upstream failure is
// reported as domain.ErrNotFound.
func (r *Router) ResolveCurrent(ctx context.Context, symbol string) (domain.PricePoint, error) {
	quotes := r.ResolveCurrentMany(ctx, []string{symbol})
	return quotes[0].Point, quotes[0].Err
}

// ResolveCurrentMany resolves a batch of symbols; results follow request order.
func (r *Router) ResolveCurrentMany(ctx context.Context, symbols []string) []Quote {
	out := make([]Quote, len(symbols))

	var (
		missing    []domain.Instrument
		missingPos []int
	)
	for i, symbol := range symbols {
		inst := r.Classify(symbol)
		if point, ok := r.CachedCurrent(ctx, inst); ok {
			out[i] = Quote{Point: point}
			continue
		}
		missing = append(missing, inst)
		missingPos = append(missingPos, i)
	}

	if len(missing) == 0 {
		return out
	}

	fetched := r.fetcher.Fetch(ctx, missing)
	for j, q := range fetched {
		if q.Err != nil {
			r.l.Debug("current price unavailable",
				zap.String("symbol", missing[j].String()), zap.Error(q.Err))
			q = Quote{
				Point: domain.PricePoint{Instrument: missing[j], Date: domain.Day(r.now())},
				Err:   asNotFound(q.Err),
			}
		}
		out[missingPos[j]] = q
	}

	return out
}

// CachedCurrent returns the cached current price of inst without touching upstreams.
func (r *Router) CachedCurrent(ctx context.Context, inst domain.Instrument) (domain.PricePoint, bool) {
	var point domain.PricePoint
	err := cache.GetJSON(ctx, r.cache, cache.CurrentPriceKey(inst), &point)
	if r.metrics != nil {
		r.metrics.CacheLookup("current", err == nil)
	}
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			r.l.Warn("failed to read cached price", zap.String("symbol", inst.String()), zap.Error(err))
		}
		return domain.PricePoint{}, false
	}

	return point.WithSource(domain.SourceCache), true
}

func asNotFound(err error) error {
	if domain.IsNotFound(err) {
		return err
	}
	return errors.WithMessage(domain.ErrNotFound, err.Error())
}
