// Package cache provides the tiered key/value store with TTL used by every
// price and leaderboard component.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gainboard/internal/domain"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a concurrency-safe key/value store with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	// DeleteByPattern removes every key matching the glob and returns how many were removed.
	DeleteByPattern(ctx context.Context, glob string) (int, error)
}

// GetJSON reads key and decodes it into out.
func GetJSON(ctx context.Context, c Cache, key string, out any) error {
	payload, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrapf(err, "decode cache entry %s", key)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode cache entry %s", key)
	}
	return c.Set(ctx, key, payload, ttl)
}

// CurrentPriceKey price:current:<symbol>.
func CurrentPriceKey(inst domain.Instrument) string {
	return "price:current:" + inst.Key()
}

// HistoricalPriceKey price:hist:<symbol>:<unixDay>.
func HistoricalPriceKey(inst domain.Instrument, date time.Time) string {
	return "price:hist:" + inst.Key() + ":" + strconv.FormatInt(domain.UnixDay(date), 10)
}

// LeaderboardKey leaderboard:<window>.
func LeaderboardKey(w domain.Window) string {
	return "leaderboard:" + w.String()
}

// LeaderboardPattern matches every leaderboard entry.
const LeaderboardPattern = "leaderboard:*"

// PortfolioSnapshotKey portfolio:<userId>:<YYYY-MM-DD>.
func PortfolioSnapshotKey(userID int64, date time.Time) string {
	return fmt.Sprintf("portfolio:%d:%s", userID, domain.Day(date).Format(time.DateOnly))
}
