package repository

import (
	"context"
	"math"
	"time"

	"stock-signals/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type BarRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewBarRepository(pool PgxPool, tracer trace.Tracer) *BarRepository {
	return &BarRepository{pool: pool, tracer: tracer}
}

const createBarsSQL = `
CREATE TABLE IF NOT EXISTS price_bars (
	symbol TEXT NOT NULL,
	trade_date DATE NOT NULL,
	open DOUBLE PRECISION,
	high DOUBLE PRECISION,
	low DOUBLE PRECISION,
	close DOUBLE PRECISION NOT NULL,
	volume DOUBLE PRECISION,
	PRIMARY KEY (symbol, trade_date)
);
`

func (r *BarRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "bar-repo.migrate")
	defer span.End()

	_, err := r.pool.Exec(ctx, createBarsSQL)
	return err
}

// UpsertBars writes one batch of daily bars. Optional fields carrying NaN are
// stored as NULL.
func (r *BarRepository) UpsertBars(ctx context.Context, symbol string, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "bar-repo.upsert-bars")
	defer span.End()

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO price_bars (symbol, trade_date, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (symbol, trade_date) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     volume = EXCLUDED.volume`,
			symbol,
			b.Date.UTC(),
			nullable(b.Open),
			nullable(b.High),
			nullable(b.Low),
			b.Close,
			nullable(b.Volume),
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetBars returns up to limit most recent bars in ascending date order.
func (r *BarRepository) GetBars(ctx context.Context, symbol string, limit int) ([]domain.PriceBar, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.get-bars")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT trade_date, open, high, low, close, volume
		 FROM price_bars
		 WHERE symbol = $1
		 ORDER BY trade_date DESC
		 LIMIT $2`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars := make([]domain.PriceBar, 0, limit)
	for rows.Next() {
		var (
			bar                     domain.PriceBar
			date                    time.Time
			open, high, low, volume *float64
		)
		if err := rows.Scan(&date, &open, &high, &low, &bar.Close, &volume); err != nil {
			return nil, err
		}
		bar.Date = date.UTC()
		bar.Open = fromNullable(open)
		bar.High = fromNullable(high)
		bar.Low = fromNullable(low)
		bar.Volume = fromNullable(volume)
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// query is newest-first, callers consume oldest-first
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromNullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
