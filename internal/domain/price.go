package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tells where a resolved price came from.
type Source string

const (
	// SourceCache price served from a non-expired cache entry.
	SourceCache Source = "cache"
	// SourceLive price fetched from an upstream provider.
	SourceLive Source = "live"
	// SourceLastKnown historical lookup degraded to the last cached current quote.
	SourceLastKnown Source = "last_known"
	// SourceReference historical lookup degraded to the caller-supplied price.
	SourceReference Source = "reference"
)

// PricePoint resolved price of an instrument for a date. Never mutated.
type PricePoint struct {
	Instrument Instrument      `json:"instrument"`
	Date       time.Time       `json:"date"`
	Price      decimal.Decimal `json:"price"`
	Source     Source          `json:"source"`
}

// WithSource returns a copy of the point tagged with another source.
func (p PricePoint) WithSource(s Source) PricePoint {
	p.Source = s
	return p
}

// DatedPrice single point of an upstream daily price series.
type DatedPrice struct {
	Date  time.Time
	Price decimal.Decimal
}

const day = 24 * time.Hour

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(day)
}

// UnixDay returns unix seconds of the UTC midnight of t.
func UnixDay(t time.Time) int64 {
	return Day(t).Unix()
}

// DaysBetween returns the absolute number of whole days between the dates of a and b.
func DaysBetween(a, b time.Time) int64 {
	d := Day(a).Sub(Day(b)) / day
	if d < 0 {
		d = -d
	}
	return int64(d)
}
