package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot total value of a user's portfolio for a day. Appended once per user per day.
type PortfolioSnapshot struct {
	UserID     int64           `json:"user_id"`
	AsOfDate   time.Time       `json:"as_of"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// NewPortfolioSnapshot creates a snapshot truncated to the day of asOf.
func NewPortfolioSnapshot(userID int64, asOf time.Time, totalValue decimal.Decimal) PortfolioSnapshot {
	return PortfolioSnapshot{
		UserID:     userID,
		AsOfDate:   Day(asOf),
		TotalValue: totalValue,
	}
}

// PortfolioSnapshotRecord bundles a snapshot with its log index.
type PortfolioSnapshotRecord struct {
	Index    uint64
	Snapshot PortfolioSnapshot
}
