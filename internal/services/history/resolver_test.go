package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
)

var now = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

type fakeCurrent struct {
	live   map[string]domain.PricePoint
	cached map[string]domain.PricePoint
	calls  int
}

func (f *fakeCurrent) ResolveCurrent(_ context.Context, symbol string) (domain.PricePoint, error) {
	f.calls++
	inst := domain.Classify(symbol)
	if p, ok := f.live[inst.Key()]; ok {
		return p, nil
	}
	return domain.PricePoint{Instrument: inst}, domain.ErrNotFound
}

func (f *fakeCurrent) CachedCurrent(_ context.Context, inst domain.Instrument) (domain.PricePoint, bool) {
	p, ok := f.cached[inst.Key()]
	if !ok {
		return domain.PricePoint{}, false
	}
	return p.WithSource(domain.SourceCache), true
}

type seriesCall struct {
	symbol   string
	from, to time.Time
}

type fakeSeries struct {
	mu     sync.Mutex
	series map[string][]domain.DatedPrice
	err    error
	calls  []seriesCall
}

func (f *fakeSeries) Series(_ context.Context, inst domain.Instrument, from, to time.Time) ([]domain.DatedPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, seriesCall{symbol: inst.Key(), from: from, to: to})
	if f.err != nil {
		return nil, f.err
	}
	return f.series[inst.Key()], nil
}

type stepCounter struct{ steps []string }

func (s *stepCounter) Fallback(step string) { s.steps = append(s.steps, step) }

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func price(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newResolver(c cache.Cache, cur *fakeCurrent, series *fakeSeries, metrics fallbackRecorder) *Resolver {
	r := NewResolver(c, cur, series, Options{TTL: cache.DefaultTTLPolicy()}, zap.NewNop(), metrics)
	r.now = func() time.Time { return now }
	return r
}

func TestResolver_CacheHit(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLocal()
	series := &fakeSeries{}
	r := newResolver(c, &fakeCurrent{}, series, nil)

	inst := domain.Classify("AAPL")
	stored := domain.PricePoint{Instrument: inst, Date: date("2024-05-01"), Price: price("170"), Source: domain.SourceLive}
	require.NoError(t, cache.SetJSON(ctx, c, cache.HistoricalPriceKey(inst, date("2024-05-01")), stored, time.Hour))

	got, err := r.Resolve(ctx, "AAPL", date("2024-05-01").Add(9*time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, got.Source)
	assert.Equal(t, "170", got.Price.String())
	assert.Empty(t, series.calls)
}

func TestResolver_FutureDateEqualsCurrent(t *testing.T) {
	live := domain.PricePoint{Instrument: domain.Classify("$BTC"), Date: date("2024-05-10"), Price: price("64000"), Source: domain.SourceLive}
	cur := &fakeCurrent{live: map[string]domain.PricePoint{"btc": live}}
	series := &fakeSeries{}
	r := newResolver(cache.NewLocal(), cur, series, nil)

	got, err := r.Resolve(context.Background(), "$BTC", date("2024-06-01"), nil)
	require.NoError(t, err)
	assert.Equal(t, live, got)
	assert.Equal(t, 1, cur.calls)
	assert.Empty(t, series.calls)
}

func TestResolver_FutureDateFailureIsTerminal(t *testing.T) {
	ref := price("150")
	cached := domain.PricePoint{Instrument: domain.Classify("AAPL"), Price: price("181")}
	cur := &fakeCurrent{cached: map[string]domain.PricePoint{"AAPL": cached}}
	steps := &stepCounter{}
	r := newResolver(cache.NewLocal(), cur, &fakeSeries{}, steps)

	_, err := r.Resolve(context.Background(), "AAPL", date("2024-06-01"), &ref)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, cur.calls)
	assert.Empty(t, steps.steps)
}

// blockingSeries holds every Series call until release is closed.
type blockingSeries struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
	points  []domain.DatedPrice
}

func (b *blockingSeries) Series(ctx context.Context, _ domain.Instrument, _, _ time.Time) ([]domain.DatedPrice, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return b.points, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResolver_CallerTimeoutEndsOnlyItsWait(t *testing.T) {
	c := cache.NewLocal()
	series := &blockingSeries{
		release: make(chan struct{}),
		started: make(chan struct{}),
		points:  []domain.DatedPrice{{Date: date("2024-05-01"), Price: price("170")}},
	}
	r := NewResolver(c, &fakeCurrent{}, series, Options{TTL: cache.DefaultTTLPolicy()}, zap.NewNop(), nil)
	r.now = func() time.Time { return now }

	patient := make(chan domain.PricePoint, 1)
	go func() {
		point, err := r.Resolve(context.Background(), "AAPL", date("2024-05-01"), nil)
		if err == nil {
			patient <- point
		}
		close(patient)
	}()
	<-series.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ref := price("150")

	started := time.Now()
	got, err := r.Resolve(ctx, "AAPL", date("2024-05-01"), &ref)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 500*time.Millisecond)
	assert.Equal(t, domain.SourceReference, got.Source)
	assert.True(t, got.Price.Equal(ref))

	close(series.release)

	point, ok := <-patient
	require.True(t, ok)
	assert.Equal(t, domain.SourceLive, point.Source)
	assert.Equal(t, "170", point.Price.String())

	again, err := r.Resolve(context.Background(), "AAPL", date("2024-05-01"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, again.Source)
}

func TestResolver_TooRecent(t *testing.T) {
	t.Run("uses reference price without network", func(t *testing.T) {
		series := &fakeSeries{}
		r := newResolver(cache.NewLocal(), &fakeCurrent{}, series, nil)
		ref := price("150")

		got, err := r.Resolve(context.Background(), "AAPL", now.Add(-2*time.Hour), &ref)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceReference, got.Source)
		assert.True(t, got.Price.Equal(ref))
		assert.Empty(t, series.calls)
	})

	t.Run("no reference falls back to last known", func(t *testing.T) {
		cached := domain.PricePoint{Instrument: domain.Classify("AAPL"), Price: price("181")}
		r := newResolver(cache.NewLocal(), &fakeCurrent{cached: map[string]domain.PricePoint{"AAPL": cached}}, &fakeSeries{}, nil)

		got, err := r.Resolve(context.Background(), "AAPL", now, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.SourceLastKnown, got.Source)
		assert.Equal(t, "181", got.Price.String())
	})
}

func TestResolver_WindowSearch(t *testing.T) {
	ctx := context.Background()
	c := cache.NewLocal()
	series := &fakeSeries{series: map[string][]domain.DatedPrice{
		"AAPL": {
			{Date: date("2024-05-01"), Price: price("169")},
			{Date: date("2024-05-03"), Price: price("171")},
			{Date: date("2024-05-06"), Price: price("175")},
		},
	}}
	r := newResolver(c, &fakeCurrent{}, series, nil)

	// 2024-05-04 is a Saturday: 05-03 is closer than 05-06
	got, err := r.Resolve(ctx, "AAPL", date("2024-05-04"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLive, got.Source)
	assert.Equal(t, "171", got.Price.String())
	assert.Equal(t, date("2024-05-04"), got.Date)

	require.Len(t, series.calls, 1)
	assert.Equal(t, date("2024-04-27"), series.calls[0].from)
	assert.Equal(t, date("2024-05-09"), series.calls[0].to)

	again, err := r.Resolve(ctx, "AAPL", date("2024-05-04"), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCache, again.Source)
	assert.Len(t, series.calls, 1)
}

func TestResolver_WindowEndsBeforeYesterday(t *testing.T) {
	series := &fakeSeries{series: map[string][]domain.DatedPrice{
		"btc": {{Date: date("2024-05-07"), Price: price("62000")}},
	}}
	r := newResolver(cache.NewLocal(), &fakeCurrent{}, series, nil)

	got, err := r.Resolve(context.Background(), "$BTC", date("2024-05-09"), nil)
	require.NoError(t, err)
	assert.Equal(t, "62000", got.Price.String())
	assert.Equal(t, date("2024-05-02"), series.calls[0].from)
	assert.Equal(t, date("2024-05-09"), series.calls[0].to)
}

func TestResolver_FallbackUnderPermanentRateLimit(t *testing.T) {
	target := date("2024-04-01")
	ref := price("150")

	tests := []struct {
		name       string
		cached     map[string]domain.PricePoint
		reference  *decimal.Decimal
		wantSource domain.Source
		wantPrice  string
		wantErr    bool
		wantStep   string
	}{
		{
			name:       "Last known current price first",
			cached:     map[string]domain.PricePoint{"TSLA": {Instrument: domain.Classify("TSLA"), Price: price("175")}},
			reference:  &ref,
			wantSource: domain.SourceLastKnown,
			wantPrice:  "175",
			wantStep:   StepLastKnown,
		},
		{
			name:       "Reference price second",
			reference:  &ref,
			wantSource: domain.SourceReference,
			wantPrice:  "150",
			wantStep:   StepReference,
		},
		{
			name:     "Explicit not found last",
			wantErr:  true,
			wantStep: StepNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := &stepCounter{}
			r := newResolver(cache.NewLocal(), &fakeCurrent{cached: tt.cached}, &fakeSeries{err: domain.ErrRateLimited}, steps)

			got, err := r.Resolve(context.Background(), "TSLA", target, tt.reference)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrNotFound)
				assert.NotErrorIs(t, err, domain.ErrRateLimited)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSource, got.Source)
				assert.Equal(t, tt.wantPrice, got.Price.String())
				assert.Equal(t, target, got.Date)
			}
			assert.Equal(t, []string{tt.wantStep}, steps.steps)
		})
	}
}

func TestResolver_PriceHistory(t *testing.T) {
	r := newResolver(cache.NewLocal(), &fakeCurrent{}, &fakeSeries{}, nil)

	_, err := r.PriceHistory(context.Background(), "NOPE", date("2024-03-01"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNearest(t *testing.T) {
	target := date("2024-05-04")

	tests := []struct {
		name     string
		series   []domain.DatedPrice
		wantDate time.Time
		wantOK   bool
	}{
		{
			name:   "Empty",
			wantOK: false,
		},
		{
			name: "Exact match",
			series: []domain.DatedPrice{
				{Date: date("2024-05-03"), Price: price("1")},
				{Date: date("2024-05-04"), Price: price("2")},
			},
			wantDate: date("2024-05-04"),
			wantOK:   true,
		},
		{
			name: "Tie prefers earlier",
			series: []domain.DatedPrice{
				{Date: date("2024-05-02"), Price: price("1")},
				{Date: date("2024-05-06"), Price: price("2")},
			},
			wantDate: date("2024-05-02"),
			wantOK:   true,
		},
		{
			name: "Non-positive prices skipped",
			series: []domain.DatedPrice{
				{Date: date("2024-05-04"), Price: decimal.Zero},
				{Date: date("2024-05-07"), Price: price("3")},
			},
			wantDate: date("2024-05-07"),
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nearest(tt.series, target)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantDate, got.Date)
			}
		})
	}
}
