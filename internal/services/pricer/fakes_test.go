package pricer

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/pkg/retrier"
)

func fastRetry() *retrier.Retrier {
	return retrier.New(retrier.WithRetryIf(isTransient), retrier.WithInitialInterval(time.Millisecond))
}

type fakeEquity struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	history map[string][]domain.DatedPrice
	errs    []error // consumed one per call
	calls   int
	batches [][]string
}

func (f *fakeEquity) Name() string { return "fake-equity" }

func (f *fakeEquity) nextErr() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeEquity) Quote(_ context.Context, ticker string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return decimal.Zero, err
	}
	p, ok := f.prices[ticker]
	if !ok {
		return decimal.Zero, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeEquity) BatchQuote(_ context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string(nil), tickers...))
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal)
	for _, t := range tickers {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func (f *fakeEquity) History(_ context.Context, ticker string, _, _ time.Time) ([]domain.DatedPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return f.history[ticker], nil
}

func (f *fakeEquity) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCrypto struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	history map[string][]domain.DatedPrice
	err     error
	calls   int
	ids     [][]string
}

func (f *fakeCrypto) Name() string { return "fake-crypto" }

func (f *fakeCrypto) SimplePrice(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ids = append(f.ids, append([]string(nil), ids...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]decimal.Decimal)
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeCrypto) HistoryByDate(_ context.Context, id string, date time.Time) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	for _, p := range f.history[id] {
		if p.Date.Equal(domain.Day(date)) {
			return p.Price, nil
		}
	}
	return decimal.Zero, domain.ErrNotFound
}

func (f *fakeCrypto) HistoryRange(_ context.Context, id string, _, _ time.Time) ([]domain.DatedPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.history[id], nil
}

func (f *fakeCrypto) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
