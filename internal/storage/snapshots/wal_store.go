// Package snapshots persists daily portfolio snapshots in a write-ahead log.
package snapshots

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

const (
	defaultSnapshotDir   = "./wal/portfolio"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "portfolio_snapshot_"
)

// ErrExists returned by Append when the user already has a snapshot for that day.
var ErrExists = errors.New("portfolio snapshot already recorded for this day")

// WALStore appends one snapshot per user per day to a WAL.
type WALStore struct {
	wal  *gowal.Wal
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewWALStore opens (or creates) the snapshot log under dir and indexes the
// snapshots already in it.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "portfolio_",
		SegmentThreshold: snapshotSegmentLimit,
		MaxSegments:      snapshotMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init portfolio snapshot WAL")
	}

	s := &WALStore{wal: wal, seen: make(map[string]struct{})}
	for idx := uint64(1); idx <= wal.CurrentIndex(); idx++ {
		key, _, ok := wal.Get(idx)
		if ok && strings.HasPrefix(key, snapshotKeyPrefix) {
			s.seen[key] = struct{}{}
		}
	}

	return s, nil
}

func snapshotKey(userID int64, asOf time.Time) string {
	return fmt.Sprintf("%s%d_%s", snapshotKeyPrefix, userID, domain.Day(asOf).Format(time.DateOnly))
}

// Append writes the snapshot unless one exists for the same user and day.
func (s *WALStore) Append(snapshot domain.PortfolioSnapshot) error {
	if s == nil || s.wal == nil {
		return errors.New("portfolio snapshot store is not initialized")
	}
	if snapshot.UserID == 0 {
		return errors.New("portfolio snapshot user id is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal portfolio snapshot")
	}

	key := snapshotKey(snapshot.UserID, snapshot.AsOfDate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return ErrExists
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrap(err, "write portfolio snapshot")
	}
	s.seen[key] = struct{}{}

	return nil
}

// Has reports whether a snapshot for the user and day was recorded.
func (s *WALStore) Has(userID int64, asOf time.Time) bool {
	if s == nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.seen[snapshotKey(userID, asOf)]
	return ok
}

// ForUser returns the user's snapshots, oldest first.
func (s *WALStore) ForUser(userID int64) ([]domain.PortfolioSnapshotRecord, error) {
	records, err := s.SnapshotsAfter(0)
	if err != nil {
		return nil, err
	}

	out := records[:0]
	for _, r := range records {
		if r.Snapshot.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// SnapshotsAfter returns all snapshots written after the provided WAL index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.PortfolioSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("portfolio snapshot store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.PortfolioSnapshotRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, ok := s.wal.Get(idx)
		if !ok || !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		var snapshot domain.PortfolioSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrap(err, "decode portfolio snapshot")
		}
		records = append(records, domain.PortfolioSnapshotRecord{
			Index:    idx,
			Snapshot: snapshot,
		})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("portfolio snapshot store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
