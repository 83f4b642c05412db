// Package batch collapses concurrent price requests into shared upstream
// flights and bounds every upstream call by one process-wide pool.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/pricer"
)

const (
	defaultMaxUpstream  = 8
	defaultFetchTimeout = 30 * time.Second
)

// Options coordinator tuning.
type Options struct {
	// MaxUpstream concurrent upstream calls across the process.
	MaxUpstream int64
	// FetchTimeout bounds a shared flight independently of its callers.
	FetchTimeout time.Duration
	TTL          cache.TTLPolicy
}

type collapseRecorder interface {
	Collapsed()
}

// Coordinator fetches current prices for batches of instruments. At most one
// upstream request per symbol is in flight at any time; later callers for the
// same symbol wait on the existing flight.
type Coordinator struct {
	providers    map[domain.Kind]pricer.Provider
	cache        cache.Cache
	ttl          cache.TTLPolicy
	sem          *semaphore.Weighted
	fetchTimeout time.Duration
	l            *zap.Logger
	metrics      collapseRecorder
	now          func() time.Time

	mu       sync.Mutex
	inflight map[string]*flight
}

type flight struct {
	inst  domain.Instrument
	done  chan struct{}
	once  sync.Once
	quote pricer.Quote
}

var _ pricer.Fetcher = (*Coordinator)(nil)

// New creates a coordinator over one provider per kind. metrics may be nil.
func New(providers []pricer.Provider, c cache.Cache, opts Options, l *zap.Logger, metrics collapseRecorder) *Coordinator {
	if opts.MaxUpstream <= 0 {
		opts.MaxUpstream = defaultMaxUpstream
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}

	byKind := make(map[domain.Kind]pricer.Provider, len(providers))
	for _, p := range providers {
		byKind[p.Kind()] = p
	}

	return &Coordinator{
		providers:    byKind,
		cache:        c,
		ttl:          opts.TTL,
		sem:          semaphore.NewWeighted(opts.MaxUpstream),
		fetchTimeout: opts.FetchTimeout,
		l:            l,
		metrics:      metrics,
		now:          time.Now,
		inflight:     make(map[string]*flight),
	}
}

func flightKey(inst domain.Instrument) string {
	return inst.Kind.String() + ":" + inst.Key()
}

// Fetch resolves current prices of insts, returned in request order.
// Cancelling ctx abandons the wait but never the shared flight: owned
// flights keep running until FetchTimeout and still populate the cache.
func (c *Coordinator) Fetch(ctx context.Context, insts []domain.Instrument) []pricer.Quote {
	flights := make([]*flight, len(insts))
	var owned []*flight

	c.mu.Lock()
	mine := make(map[*flight]struct{})
	for i, inst := range insts {
		key := flightKey(inst)
		if f, ok := c.inflight[key]; ok {
			flights[i] = f
			if _, self := mine[f]; !self && c.metrics != nil {
				c.metrics.Collapsed()
			}
			continue
		}

		f := &flight{inst: inst, done: make(chan struct{})}
		c.inflight[key] = f
		mine[f] = struct{}{}
		flights[i] = f
		owned = append(owned, f)
	}
	c.mu.Unlock()

	if len(owned) > 0 {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		go func() {
			defer cancel()
			c.run(flightCtx, owned)
		}()
	}

	out := make([]pricer.Quote, len(insts))
	for i, f := range flights {
		select {
		case <-f.done:
			out[i] = f.quote
		case <-ctx.Done():
			out[i] = pricer.Quote{
				Point: domain.PricePoint{Instrument: insts[i]},
				Err:   errors.Wrap(ctx.Err(), "waiting for price"),
			}
		}
	}

	return out
}

func (c *Coordinator) run(ctx context.Context, owned []*flight) {
	defer func() {
		// every owned flight must be released, whatever happened above
		for _, f := range owned {
			c.resolveErr(f, errors.Wrap(domain.ErrNotFound, "flight ended without a result"))
		}
	}()

	byKind := make(map[domain.Kind][]*flight)
	for _, f := range owned {
		byKind[f.inst.Kind] = append(byKind[f.inst.Kind], f)
	}

	var wg sync.WaitGroup
	for kind, flights := range byKind {
		provider, ok := c.providers[kind]
		if !ok {
			for _, f := range flights {
				c.resolveErr(f, errors.Wrapf(domain.ErrNotFound, "no provider for %s", kind))
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runProvider(ctx, provider, flights)
		}()
	}
	wg.Wait()
}

// runProvider issues one call per chunk, in order, and stops issuing after
// the provider rate limits.
func (c *Coordinator) runProvider(ctx context.Context, provider pricer.Provider, flights []*flight) {
	usable := make([]*flight, 0, len(flights))
	for _, f := range flights {
		if !provider.Usable(f.inst) {
			c.resolveErr(f, errors.Wrap(domain.ErrUnusable, f.inst.String()))
			continue
		}
		usable = append(usable, f)
	}

	chunks := chunk(usable, provider.MaxBatch())
	for i, part := range chunks {
		err := c.fetchChunk(ctx, provider, part)
		if errors.Is(err, domain.ErrRateLimited) {
			skipped := 0
			for _, rest := range chunks[i+1:] {
				for _, f := range rest {
					c.resolveErr(f, errors.Wrapf(domain.ErrRateLimited, "%s stopped after rate limit", provider.Name()))
					skipped++
				}
			}
			if skipped > 0 {
				c.l.Warn("provider rate limited, remaining symbols skipped",
					zap.String("provider", provider.Name()), zap.Int("skipped", skipped))
			}
			return
		}
	}
}

func (c *Coordinator) fetchChunk(ctx context.Context, provider pricer.Provider, part []*flight) error {
	insts := make([]domain.Instrument, len(part))
	for i, f := range part {
		insts[i] = f.inst
	}

	var prices map[string]decimal.Decimal
	err := c.Do(ctx, func(ctx context.Context) error {
		var err error
		prices, err = provider.CurrentPrices(ctx, insts)
		return err
	})
	if err != nil {
		for _, f := range part {
			c.resolveErr(f, err)
		}
		return err
	}

	today := domain.Day(c.now())
	for _, f := range part {
		price, ok := prices[f.inst.Key()]
		if !ok {
			c.resolveErr(f, errors.Wrapf(domain.ErrNotFound, "%s has no price for %s", provider.Name(), f.inst))
			continue
		}

		point := domain.PricePoint{
			Instrument: f.inst,
			Date:       today,
			Price:      price,
			Source:     domain.SourceLive,
		}
		if err := cache.SetJSON(ctx, c.cache, cache.CurrentPriceKey(f.inst), point, c.ttl.LiveQuote); err != nil {
			c.l.Warn("failed to cache current price", zap.String("symbol", f.inst.String()), zap.Error(err))
		}
		c.resolve(f, pricer.Quote{Point: point})
	}

	return nil
}

func (c *Coordinator) resolveErr(f *flight, err error) {
	c.resolve(f, pricer.Quote{Point: domain.PricePoint{Instrument: f.inst}, Err: err})
}

func (c *Coordinator) resolve(f *flight, q pricer.Quote) {
	f.once.Do(func() {
		c.mu.Lock()
		if cur, ok := c.inflight[flightKey(f.inst)]; ok && cur == f {
			delete(c.inflight, flightKey(f.inst))
		}
		c.mu.Unlock()

		f.quote = q
		close(f.done)
	})
}

// Do runs fn holding one slot of the upstream pool.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "acquire upstream slot")
	}
	defer c.sem.Release(1)

	return fn(ctx)
}

// Series fetches a daily price series for inst through the upstream pool.
func (c *Coordinator) Series(ctx context.Context, inst domain.Instrument, from, to time.Time) ([]domain.DatedPrice, error) {
	provider, ok := c.providers[inst.Kind]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "no provider for %s", inst.Kind)
	}
	if !provider.Usable(inst) {
		return nil, errors.Wrap(domain.ErrUnusable, inst.String())
	}

	var series []domain.DatedPrice
	err := c.Do(ctx, func(ctx context.Context) error {
		var err error
		series, err = provider.PriceSeries(ctx, inst, from, to)
		return err
	})
	return series, err
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
