// Package leaderboard ranks users by portfolio gain over a window.
package leaderboard

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/gain"
)

const (
	defaultParallelism    = 8
	defaultComputeTimeout = 2 * time.Minute
)

type userLister interface {
	UserIDs(ctx context.Context) ([]int64, error)
}

type valuer interface {
	PortfolioValuation(ctx context.Context, userID int64) (gain.Valuation, error)
}

type durationRecorder interface {
	LeaderboardComputed(window string, users int, took time.Duration)
}

// RankedEntry one leaderboard row.
type RankedEntry struct {
	UserID         int64           `json:"user_id"`
	Rank           int             `json:"rank"`
	CurrentWorth   decimal.Decimal `json:"current_worth"`
	Gain           decimal.Decimal `json:"gain"`
	GainPercentage decimal.Decimal `json:"gain_percentage"`
	TopGainer      *gain.TopGainer `json:"top_gainer,omitempty"`
}

// Aggregator builds and caches leaderboards.
type Aggregator struct {
	users       userLister
	valuer      valuer
	cache       cache.Cache
	ttl         time.Duration
	parallelism int
	// computeTimeout bounds a shared recompute independently of its callers.
	computeTimeout time.Duration
	metrics        durationRecorder
	l              *zap.Logger
	group          singleflight.Group
}

// NewAggregator creates an aggregator. parallelism bounds concurrent
// per-user valuations; zero means 8.
func NewAggregator(users userLister, v valuer, c cache.Cache, ttl cache.TTLPolicy, parallelism int, l *zap.Logger, metrics durationRecorder) *Aggregator {
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Aggregator{
		users:          users,
		valuer:         v,
		cache:          c,
		ttl:            ttl.Leaderboard,
		parallelism:    parallelism,
		computeTimeout: defaultComputeTimeout,
		metrics:        metrics,
		l:              l,
	}
}

// Leaderboard returns the ranking for window. A cached ranking is served
// as is unless forceRefresh is set.
func (a *Aggregator) Leaderboard(ctx context.Context, window domain.Window, forceRefresh bool) ([]RankedEntry, error) {
	payload, err := a.LeaderboardJSON(ctx, window, forceRefresh)
	if err != nil {
		return nil, err
	}

	var entries []RankedEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, errors.Wrap(err, "decode leaderboard")
	}
	return entries, nil
}

// LeaderboardJSON is Leaderboard returning the encoded ranking. Repeated
// calls served from cache return identical bytes. Concurrent recomputes of
// one window share a single run that outlives any caller's cancellation.
func (a *Aggregator) LeaderboardJSON(ctx context.Context, window domain.Window, forceRefresh bool) ([]byte, error) {
	key := cache.LeaderboardKey(window)

	if !forceRefresh {
		payload, err := a.cache.Get(ctx, key)
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			a.l.Debug("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	flight := key
	if forceRefresh {
		flight += ":refresh"
	}
	ch := a.group.DoChan(flight, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.computeTimeout)
		defer cancel()
		return a.compute(runCtx, window)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for leaderboard")
	}
}

// Invalidate drops every cached leaderboard.
func (a *Aggregator) Invalidate(ctx context.Context) error {
	n, err := a.cache.DeleteByPattern(ctx, cache.LeaderboardPattern)
	if err != nil {
		return errors.Wrap(err, "invalidate leaderboards")
	}
	a.l.Debug("leaderboards invalidated", zap.Int("keys", n))
	return nil
}

func (a *Aggregator) compute(ctx context.Context, window domain.Window) ([]byte, error) {
	started := time.Now()
	runID := uuid.NewString()

	ids, err := a.users.UserIDs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list leaderboard users")
	}

	valuations := make([]gain.Valuation, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			v, err := a.valuer.PortfolioValuation(gctx, id)
			if err != nil {
				return errors.Wrapf(err, "value user %d", id)
			}
			valuations[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.l.Warn("leaderboard computation failed",
			zap.String("run_id", runID),
			zap.String("window", window.String()),
			zap.Error(err))
		return nil, err
	}

	entries := rank(ids, valuations, window)

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, errors.Wrap(err, "encode leaderboard")
	}
	if err := a.cache.Set(ctx, cache.LeaderboardKey(window), payload, a.ttl); err != nil {
		a.l.Debug("leaderboard cache write failed", zap.Error(err))
	}

	took := time.Since(started)
	if a.metrics != nil {
		a.metrics.LeaderboardComputed(window.String(), len(ids), took)
	}
	a.l.Info("leaderboard computed",
		zap.String("run_id", runID),
		zap.String("window", window.String()),
		zap.Int("users", len(ids)),
		zap.Duration("took", took))

	return payload, nil
}

// rank orders users by the window metric, highest first, ties by user id.
func rank(ids []int64, valuations []gain.Valuation, window domain.Window) []RankedEntry {
	entries := make([]RankedEntry, len(ids))
	for i, id := range ids {
		v := valuations[i]
		m := v.Metric(window)
		entries[i] = RankedEntry{
			UserID:         id,
			CurrentWorth:   v.Summary.TotalCurrentValue,
			Gain:           m.Absolute,
			GainPercentage: m.Percentage,
			TopGainer:      v.Summary.TopGainer,
		}
	}

	slices.SortStableFunc(entries, func(x, y RankedEntry) int {
		if c := y.GainPercentage.Cmp(x.GainPercentage); c != 0 {
			return c
		}
		switch {
		case x.UserID < y.UserID:
			return -1
		case x.UserID > y.UserID:
			return 1
		}
		return 0
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
