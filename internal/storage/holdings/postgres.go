package holdings

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/gainboard/internal/domain"
)

// PostgresStore reads holdings from the holdings table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPool connects to Postgres and verifies the connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return pool, nil
}

// NewPostgresStore creates a store on top of an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Add inserts a holding.
func (s *PostgresStore) Add(ctx context.Context, h domain.Holding) error {
	query := `
		INSERT INTO holdings (user_id, symbol, quantity, purchase_price, purchase_date)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		h.UserID,
		h.Symbol,
		h.Quantity.String(),
		h.PurchasePrice.String(),
		domain.Day(h.PurchaseDate),
	)
	if err != nil {
		return errors.Wrapf(err, "insert holding %s for user %d", h.Symbol, h.UserID)
	}
	return nil
}

// UserIDs returns every user with at least one holding, ascending.
func (s *PostgresStore) UserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT user_id FROM holdings ORDER BY user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "query holding users")
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errors.Wrap(err, "scan holding users")
	}
	return ids, nil
}

// Holdings returns the user's holdings in insertion order.
func (s *PostgresStore) Holdings(ctx context.Context, userID int64) ([]domain.Holding, error) {
	query := `
		SELECT user_id, symbol, quantity::text, purchase_price::text, purchase_date
		FROM holdings
		WHERE user_id = $1
		ORDER BY id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "query holdings for user %d", userID)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "scan holding for user %d", userID)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "iterate holdings for user %d", userID)
	}

	return out, nil
}

func scanHolding(row pgx.Row) (domain.Holding, error) {
	var (
		h             domain.Holding
		quantity      string
		purchasePrice string
		purchaseDate  time.Time
	)
	if err := row.Scan(&h.UserID, &h.Symbol, &quantity, &purchasePrice, &purchaseDate); err != nil {
		return domain.Holding{}, err
	}

	var err error
	if h.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return domain.Holding{}, errors.Wrapf(err, "parse quantity %q", quantity)
	}
	if h.PurchasePrice, err = decimal.NewFromString(purchasePrice); err != nil {
		return domain.Holding{}, errors.Wrapf(err, "parse purchase price %q", purchasePrice)
	}
	h.PurchaseDate = domain.Day(purchaseDate)

	return h, nil
}
