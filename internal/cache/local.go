package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Local process-memory cache. Used alone or as the fallback tier behind Redis.
type Local struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewLocal creates an empty in-process cache.
func NewLocal() *Local {
	return &Local{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

var _ Cache = (*Local)(nil)

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}

	if !l.now().Before(e.expiresAt) {
		l.mu.Lock()
		// re-check: a writer may have refreshed the entry meanwhile
		if cur, ok := l.entries[key]; ok && !l.now().Before(cur.expiresAt) {
			delete(l.entries, key)
		}
		l.mu.Unlock()
		return nil, ErrMiss
	}

	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, nil
}

func (l *Local) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	l.mu.Lock()
	l.entries[key] = entry{payload: stored, expiresAt: l.now().Add(ttl)}
	l.mu.Unlock()
	return nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	_, err := l.Get(ctx, key)
	if err == ErrMiss {
		return false, nil
	}
	return err == nil, err
}

func (l *Local) DeleteByPattern(_ context.Context, glob string) (int, error) {
	if _, err := path.Match(glob, ""); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key := range l.entries {
		if ok, _ := path.Match(glob, key); ok {
			delete(l.entries, key)
			n++
		}
	}
	return n, nil
}

// Sweep drops expired entries and returns how many were removed.
func (l *Local) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, e := range l.entries {
		if !now.Before(e.expiresAt) {
			delete(l.entries, key)
			n++
		}
	}
	return n
}

// RunJanitor sweeps expired entries every interval until ctx is done.
func (l *Local) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Len number of stored entries, expired ones included until swept.
func (l *Local) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
