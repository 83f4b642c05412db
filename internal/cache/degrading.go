package cache

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

type degradationRecorder interface {
	CacheDegraded(op string)
}

// Degrading serves from a distributed primary and silently falls back to a
// local tier whenever the primary fails. Misses are not failures.
type Degrading struct {
	primary  Cache
	fallback Cache
	l        *zap.Logger
	metrics  degradationRecorder
	down     atomic.Bool
}

// NewDegrading wraps primary with fallback. metrics may be nil.
func NewDegrading(primary, fallback Cache, l *zap.Logger, metrics degradationRecorder) *Degrading {
	return &Degrading{
		primary:  primary,
		fallback: fallback,
		l:        l,
		metrics:  metrics,
	}
}

var _ Cache = (*Degrading)(nil)

func (d *Degrading) Get(ctx context.Context, key string) ([]byte, error) {
	payload, err := d.primary.Get(ctx, key)
	if err == nil || errors.Is(err, ErrMiss) {
		d.recovered()
		if err != nil {
			// entries written while the primary was down live only locally
			return d.fallback.Get(ctx, key)
		}
		return payload, nil
	}

	d.degraded("get", err)
	return d.fallback.Get(ctx, key)
}

func (d *Degrading) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := d.primary.Set(ctx, key, payload, ttl); err != nil {
		d.degraded("set", err)
		return d.fallback.Set(ctx, key, payload, ttl)
	}
	d.recovered()
	return nil
}

func (d *Degrading) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := d.primary.Exists(ctx, key)
	if err != nil {
		d.degraded("exists", err)
		return d.fallback.Exists(ctx, key)
	}
	d.recovered()
	if ok {
		return true, nil
	}
	return d.fallback.Exists(ctx, key)
}

func (d *Degrading) DeleteByPattern(ctx context.Context, glob string) (int, error) {
	local, err := d.fallback.DeleteByPattern(ctx, glob)
	if err != nil {
		return 0, err
	}

	remote, err := d.primary.DeleteByPattern(ctx, glob)
	if err != nil {
		d.degraded("delete", err)
		return local, nil
	}
	d.recovered()
	return local + remote, nil
}

// Close releases the primary when it holds resources.
func (d *Degrading) Close() error {
	if closer, ok := d.primary.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Degraded reports whether the primary is currently considered down.
func (d *Degrading) Degraded() bool {
	return d.down.Load()
}

func (d *Degrading) degraded(op string, err error) {
	if d.metrics != nil {
		d.metrics.CacheDegraded(op)
	}
	if d.down.CompareAndSwap(false, true) {
		d.l.Warn("distributed cache unavailable, serving from local tier",
			zap.String("op", op), zap.Error(errors.Wrap(domain.ErrCacheUnavailable, err.Error())))
		return
	}
	d.l.Debug("distributed cache still unavailable", zap.String("op", op), zap.Error(err))
}

func (d *Degrading) recovered() {
	if d.down.CompareAndSwap(true, false) {
		d.l.Info("distributed cache recovered")
	}
}
