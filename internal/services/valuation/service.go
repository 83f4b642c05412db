// Package valuation values a single user's portfolio and keeps one
// portfolio snapshot per user per day.
package valuation

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/gain"
	"github.com/vadiminshakov/gainboard/internal/storage/snapshots"
)

const (
	snapshotMarkerTTL   = 25 * time.Hour
	snapshotWorkerLimit = 4
)

type holdingsReader interface {
	Holdings(ctx context.Context, userID int64) ([]domain.Holding, error)
}

type calculator interface {
	Calculate(ctx context.Context, holdings []domain.Holding) gain.Valuation
}

type snapshotStore interface {
	Append(snapshot domain.PortfolioSnapshot) error
	ForUser(userID int64) ([]domain.PortfolioSnapshotRecord, error)
}

type snapshotRecorder interface {
	SnapshotWritten(err error)
}

// Service values portfolios. Safe for concurrent use.
type Service struct {
	holdings holdingsReader
	calc     calculator
	cache    cache.Cache
	store    snapshotStore
	metrics  snapshotRecorder
	l        *zap.Logger

	pool    gopool.Pool
	pending sync.WaitGroup
}

// NewService creates a valuation service. store may be nil, then no
// snapshots are recorded.
func NewService(holdings holdingsReader, calc calculator, c cache.Cache, store snapshotStore, l *zap.Logger, metrics snapshotRecorder) *Service {
	s := &Service{
		holdings: holdings,
		calc:     calc,
		cache:    c,
		store:    store,
		metrics:  metrics,
		l:        l,
		pool:     gopool.NewPool("portfolio-snapshots", snapshotWorkerLimit, gopool.NewConfig()),
	}
	s.pool.SetPanicHandler(func(_ context.Context, r any) {
		s.l.Error("portfolio snapshot writer panicked", zap.Any("panic", r))
	})
	return s
}

// PortfolioValuation values the user's holdings. It fails only when the
// holdings cannot be read.
func (s *Service) PortfolioValuation(ctx context.Context, userID int64) (gain.Valuation, error) {
	hs, err := s.holdings.Holdings(ctx, userID)
	if err != nil {
		return gain.Valuation{}, errors.Wrapf(err, "read holdings for user %d", userID)
	}

	v := s.calc.Calculate(ctx, hs)
	s.recordSnapshot(ctx, userID, v)

	return v, nil
}

// Snapshots returns the recorded daily snapshots of the user, oldest first.
func (s *Service) Snapshots(_ context.Context, userID int64) ([]domain.PortfolioSnapshot, error) {
	if s.store == nil {
		return nil, nil
	}

	records, err := s.store.ForUser(userID)
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshots for user %d", userID)
	}

	out := make([]domain.PortfolioSnapshot, len(records))
	for i, r := range records {
		out[i] = r.Snapshot
	}
	return out, nil
}

// Wait blocks until queued snapshot writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) recordSnapshot(ctx context.Context, userID int64, v gain.Valuation) {
	if s.store == nil {
		return
	}

	key := cache.PortfolioSnapshotKey(userID, v.AsOf)
	exists, err := s.cache.Exists(ctx, key)
	if err != nil {
		s.l.Debug("snapshot marker lookup failed", zap.String("key", key), zap.Error(err))
	}
	if exists {
		return
	}

	snapshot := domain.NewPortfolioSnapshot(userID, v.AsOf, v.Summary.TotalCurrentValue)
	if err := cache.SetJSON(ctx, s.cache, key, snapshot, snapshotMarkerTTL); err != nil {
		s.l.Debug("snapshot marker write failed", zap.String("key", key), zap.Error(err))
	}

	s.pending.Add(1)
	s.pool.CtxGo(context.WithoutCancel(ctx), func() {
		defer s.pending.Done()

		err := s.store.Append(snapshot)
		if errors.Is(err, snapshots.ErrExists) {
			return
		}
		if s.metrics != nil {
			s.metrics.SnapshotWritten(err)
		}
		if err != nil {
			s.l.Warn("failed to persist portfolio snapshot", zap.Int64("user_id", userID), zap.Error(err))
			return
		}
		s.l.Debug("portfolio snapshot recorded",
			zap.Int64("user_id", userID),
			zap.String("total_value", snapshot.TotalValue.String()))
	})
}
