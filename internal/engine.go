// Package internal wires the valuation engine from config.
package internal

import (
	"context"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/config"
	"github.com/vadiminshakov/gainboard/internal/cache"
	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/observability"
	"github.com/vadiminshakov/gainboard/internal/services/batch"
	"github.com/vadiminshakov/gainboard/internal/services/gain"
	"github.com/vadiminshakov/gainboard/internal/services/history"
	"github.com/vadiminshakov/gainboard/internal/services/leaderboard"
	"github.com/vadiminshakov/gainboard/internal/services/pricer"
	"github.com/vadiminshakov/gainboard/internal/services/valuation"
	"github.com/vadiminshakov/gainboard/internal/storage/holdings"
	"github.com/vadiminshakov/gainboard/internal/storage/snapshots"
	"github.com/vadiminshakov/gainboard/internal/web"
)

type holdingsStore interface {
	UserIDs(ctx context.Context) ([]int64, error)
	Holdings(ctx context.Context, userID int64) ([]domain.Holding, error)
}

// Engine owns every long-lived component of the process.
type Engine struct {
	cfg config.Config
	l   *zap.Logger

	Cache       cache.Cache
	Router      *pricer.Router
	History     *history.Resolver
	Valuation   *valuation.Service
	Leaderboard *leaderboard.Aggregator
	Server      *web.Server

	pool      *pgxpool.Pool
	snapshots *snapshots.WALStore
	closers   []io.Closer
}

// NewEngine builds the engine. ctx bounds startup I/O and the cache janitor.
func NewEngine(ctx context.Context, cfg config.Config, l *zap.Logger) (*Engine, error) {
	e := &Engine{cfg: cfg, l: l}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	c, err := cache.New(ctx, cache.Options{
		Backend:         cfg.Cache.Backend,
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		JanitorInterval: cfg.Cache.JanitorInterval,
	}, l, metrics)
	if err != nil {
		return nil, err
	}
	e.Cache = c
	if closer, ok := c.(io.Closer); ok {
		e.closers = append(e.closers, closer)
	}

	equityUp, err := newEquityUpstream(cfg.Equity)
	if err != nil {
		return nil, err
	}
	cryptoUp, err := newCryptoUpstream(cfg.Crypto)
	if err != nil {
		return nil, err
	}

	equity := pricer.NewEquityProvider(equityUp, pricer.ProviderConfig{
		MaxBatch: cfg.Equity.MaxBatch,
		Unusable: cfg.Equity.Unusable,
	}, l, metrics)
	crypto := pricer.NewCryptoProvider(cryptoUp, cfg.Crypto.IDs, pricer.ProviderConfig{
		MaxBatch: cfg.Crypto.MaxBatch,
		Unusable: cfg.Crypto.Unusable,
	}, l, metrics)

	coordinator := batch.New([]pricer.Provider{equity, crypto}, c, batch.Options{
		MaxUpstream:  cfg.Concurrency.MaxUpstream,
		FetchTimeout: cfg.Concurrency.FetchTimeout,
		TTL:          cfg.Cache.TTL,
	}, l, metrics)

	e.Router = pricer.NewRouter(c, coordinator, l, metrics)
	e.History = history.NewResolver(c, e.Router, coordinator, history.Options{
		WindowDays:   cfg.Concurrency.HistoryWindowDays,
		FetchTimeout: cfg.Concurrency.FetchTimeout,
		TTL:          cfg.Cache.TTL,
	}, l, metrics)
	calc := gain.NewCalculator(e.Router, e.History, cfg.Concurrency.GainParallelism, l)

	store, err := e.openHoldings(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}

	var feed interface {
		SnapshotsAfter(index uint64) ([]domain.PortfolioSnapshotRecord, error)
	}
	if cfg.Snapshots.Enabled {
		e.snapshots, err = snapshots.NewWALStore(cfg.Snapshots.Dir)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, e.snapshots)
		feed = e.snapshots
		e.Valuation = valuation.NewService(store, calc, c, e.snapshots, l, metrics)
	} else {
		e.Valuation = valuation.NewService(store, calc, c, nil, l, metrics)
	}

	e.Leaderboard = leaderboard.NewAggregator(store, e.Valuation, c, cfg.Cache.TTL, cfg.Concurrency.GainParallelism, l, metrics)

	e.Server = web.NewServer(cfg.Server.Addr, web.Deps{
		Leaderboard: e.Leaderboard,
		Portfolios:  e.Valuation,
		Prices:      e.History,
		Feed:        feed,
		Metrics:     metrics.Handler(),
	}, l)

	l.Info("engine initialized",
		zap.String("equity", equity.Name()),
		zap.String("crypto", crypto.Name()),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("holdings", cfg.Holdings.Backend),
		zap.Bool("snapshots", cfg.Snapshots.Enabled))

	return e, nil
}

func (e *Engine) openHoldings(ctx context.Context) (holdingsStore, error) {
	switch e.cfg.Holdings.Backend {
	case config.HoldingsPostgres:
		pool, err := holdings.NewPool(ctx, e.cfg.Holdings.PostgresDSN)
		if err != nil {
			return nil, err
		}
		e.pool = pool
		return holdings.NewPostgresStore(pool), nil
	default:
		return holdings.NewMemory(e.cfg.Holdings.Seed...), nil
	}
}

// Run serves HTTP until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.cfg.Server.TLSDomains) > 0 {
		return e.Server.StartWithAutoTLS(ctx, e.cfg.Server.TLSDomains, e.cfg.Server.CertCache)
	}
	return e.Server.Start(ctx)
}

// Close flushes pending snapshot writes and releases storage.
func (e *Engine) Close() error {
	if e.Valuation != nil {
		e.Valuation.Wait()
	}
	if e.pool != nil {
		e.pool.Close()
	}

	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close engine: %v", errs)
	}
	return nil
}
