package pricer

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/pkg/retrier"
)

const defaultMaxBatch = 100

// ProviderConfig settings shared by both provider kinds.
type ProviderConfig struct {
	// MaxBatch symbols per batch call; zero means 100.
	MaxBatch int
	// Unusable raw symbols that must never reach the network.
	Unusable []string
	// Retry policy for transient failures; nil retries once after 200ms.
	Retry *retrier.Retrier
}

// guard wraps every upstream call of a provider: unusable short-circuit,
// error classification, one retry of transient failures, metrics.
type guard struct {
	name     string
	kind     domain.Kind
	maxBatch int
	unusable map[string]struct{}
	retry    *retrier.Retrier
	l        *zap.Logger
	metrics  Recorder
}

func newGuard(name string, kind domain.Kind, cfg ProviderConfig, l *zap.Logger, metrics Recorder) guard {
	g := guard{
		name:     name,
		kind:     kind,
		maxBatch: cfg.MaxBatch,
		unusable: make(map[string]struct{}, len(cfg.Unusable)),
		retry:    cfg.Retry,
		l:        l.With(zap.String("provider", name)),
		metrics:  metrics,
	}
	if g.maxBatch <= 0 {
		g.maxBatch = defaultMaxBatch
	}
	if g.retry == nil {
		g.retry = retrier.New(retrier.WithRetryIf(isTransient))
	}

	for _, raw := range cfg.Unusable {
		g.unusable[unusableKey(kind, raw)] = struct{}{}
	}

	return g
}

// unusableKey normalizes list entries so "$LUNA", "luna" and "LUNA" agree for crypto.
func unusableKey(kind domain.Kind, raw string) string {
	raw = strings.TrimSpace(raw)
	if kind == domain.KindCrypto {
		return strings.ToLower(strings.TrimPrefix(raw, domain.CryptoSigil))
	}
	return strings.ToUpper(raw)
}

func isTransient(err error) bool {
	return errors.Is(err, domain.ErrTransient)
}

func (g *guard) Name() string      { return g.name }
func (g *guard) Kind() domain.Kind { return g.kind }
func (g *guard) MaxBatch() int     { return g.maxBatch }

func (g *guard) Usable(inst domain.Instrument) bool {
	_, bad := g.unusable[inst.Key()]
	return !bad
}

func (g *guard) check(inst domain.Instrument) error {
	if inst.Kind != g.kind {
		return errors.Wrapf(domain.ErrNotFound, "%s does not serve %s instruments", g.name, inst.Kind)
	}
	if !g.Usable(inst) {
		return errors.Wrap(domain.ErrUnusable, inst.String())
	}
	return nil
}

// call runs fn with one retry for transient failures. A failure that stays
// transient is reported as not found.
func (g *guard) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		return normalize(fn(ctx))
	})
	err = normalize(err)

	if g.metrics != nil {
		g.metrics.UpstreamCall(g.name, outcomeOf(err), time.Since(start))
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRateLimited):
		g.l.Warn("upstream rate limited", zap.String("op", op), zap.Error(err))
		return err
	case errors.Is(err, domain.ErrNotFound):
		g.l.Debug("upstream has no data", zap.String("op", op), zap.Error(err))
		return err
	default:
		g.l.Warn("upstream failed after retry", zap.String("op", op), zap.Error(err))
		return errors.WithMessage(domain.ErrNotFound, err.Error())
	}
}

// validPrice rejects non-positive quotes.
func validPrice(p decimal.Decimal) bool {
	return p.IsPositive()
}

// cleanSeries drops invalid points, truncates dates to the day and keeps [from, to).
func cleanSeries(points []domain.DatedPrice, from, to time.Time) []domain.DatedPrice {
	from, to = domain.Day(from), domain.Day(to)

	out := make([]domain.DatedPrice, 0, len(points))
	seen := make(map[int64]struct{}, len(points))
	for _, p := range points {
		d := domain.Day(p.Date)
		if !validPrice(p.Price) || d.Before(from) || !d.Before(to) {
			continue
		}
		if _, dup := seen[d.Unix()]; dup {
			continue
		}
		seen[d.Unix()] = struct{}{}
		out = append(out, domain.DatedPrice{Date: d, Price: p.Price})
	}

	sortSeries(out)
	return out
}

func sortSeries(points []domain.DatedPrice) {
	slices.SortFunc(points, func(a, b domain.DatedPrice) int {
		return a.Date.Compare(b.Date)
	})
}
