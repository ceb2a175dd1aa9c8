package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/silver-spot-api/internal/model"
)

// Store persists the daily series in Postgres so windows survive feed
// outages and service restarts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and verifies the connection.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Init creates the backing table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS silver_daily_prices (
			market     text        NOT NULL,
			day        date        NOT NULL,
			price      numeric     NOT NULL,
			high       numeric,
			low        numeric,
			updated_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (market, day)
		)`)
	if err != nil {
		return fmt.Errorf("creating silver_daily_prices: %w", err)
	}
	return nil
}

// Upsert writes the given points for a market, replacing any existing rows
// for the same day.
func (s *Store) Upsert(ctx context.Context, market model.Market, points []model.HistoricalPricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO silver_daily_prices (market, day, price, high, low, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (market, day)
			DO UPDATE SET price = EXCLUDED.price, high = EXCLUDED.high,
			              low = EXCLUDED.low, updated_at = now()`,
			string(market), p.Date, p.Price, nullableFloat(p.High), nullableFloat(p.Low))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting history point: %w", err)
		}
	}

	logrus.Debugf("Stored %d history points for %s", len(points), market)
	return nil
}

// Window reads the most recent N days for a market, oldest first.
func (s *Store) Window(ctx context.Context, market model.Market, days int) ([]model.HistoricalPricePoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day, price, COALESCE(high, 0), COALESCE(low, 0)
		FROM silver_daily_prices
		WHERE market = $1 AND day >= current_date - $2::int
		ORDER BY day`,
		string(market), days)
	if err != nil {
		return nil, fmt.Errorf("querying history window: %w", err)
	}
	defer rows.Close()

	var points []model.HistoricalPricePoint
	for rows.Next() {
		var p model.HistoricalPricePoint
		if err := rows.Scan(&p.Date, &p.Price, &p.High, &p.Low); err != nil {
			return nil, fmt.Errorf("scanning history point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history window: %w", err)
	}

	return points, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func nullableFloat(v float64) interface{} {
	if v <= 0 {
		return nil
	}
	return v
}
