package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// Options startup-time backend selection.
type Options struct {
	Backend         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JanitorInterval time.Duration
}

// New builds the cache selected by opts. A redis backend is always fronted by
// a Degrading wrapper with a local fallback; an unreachable redis at startup
// is logged, not fatal.
func New(ctx context.Context, opts Options, l *zap.Logger, metrics degradationRecorder) (Cache, error) {
	local := NewLocal()
	if opts.JanitorInterval > 0 {
		go local.RunJanitor(ctx, opts.JanitorInterval)
	}

	switch opts.Backend {
	case "", BackendLocal:
		l.Info("using process-local cache")
		return local, nil
	case BackendRedis:
		r := NewRedis(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			l.Warn("redis not reachable at startup, local tier will serve until it recovers",
				zap.String("addr", opts.RedisAddr), zap.Error(err))
		} else {
			l.Info("redis cache initialized", zap.String("addr", opts.RedisAddr))
		}
		return NewDegrading(r, local, l, metrics), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", opts.Backend)
	}
}
