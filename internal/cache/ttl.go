package cache

import "time"

// TTLPolicy expiry per data class.
type TTLPolicy struct {
	// LiveQuote current prices.
	LiveQuote time.Duration
	// Leaderboard ranked aggregate snapshots.
	Leaderboard time.Duration
	// HistoricalFresh quotes for dates less than a week old.
	HistoricalFresh time.Duration
	// HistoricalWeek quotes for dates less than a month old.
	HistoricalWeek time.Duration
	// HistoricalOld anything older; the past does not change.
	HistoricalOld time.Duration
}

// DefaultTTLPolicy returns the standard expiry table.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		LiveQuote:       5 * time.Minute,
		Leaderboard:     10 * time.Minute,
		HistoricalFresh: 24 * time.Hour,
		HistoricalWeek:  7 * 24 * time.Hour,
		HistoricalOld:   30 * 24 * time.Hour,
	}
}

// Historical returns the TTL for a quote whose date lies age in the past.
func (p TTLPolicy) Historical(age time.Duration) time.Duration {
	switch {
	case age < 7*24*time.Hour:
		return p.HistoricalFresh
	case age < 30*24*time.Hour:
		return p.HistoricalWeek
	default:
		return p.HistoricalOld
	}
}
