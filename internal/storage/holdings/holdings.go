// Package holdings stores the positions each user holds.
package holdings

import (
	"context"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

// Provider read side of a holdings store.
type Provider interface {
	UserIDs(ctx context.Context) ([]int64, error)
	Holdings(ctx context.Context, userID int64) ([]domain.Holding, error)
}

var (
	_ Provider = (*Memory)(nil)
	_ Provider = (*PostgresStore)(nil)
)
