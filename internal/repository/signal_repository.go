package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stock-signals/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

const createSignalsSQL = `
CREATE TABLE IF NOT EXISTS combined_signals (
	id BIGSERIAL PRIMARY KEY,
	symbol TEXT NOT NULL,
	ml_score DOUBLE PRECISION NOT NULL,
	inflection_score DOUBLE PRECISION NOT NULL,
	combined_score DOUBLE PRECISION NOT NULL,
	action TEXT NOT NULL,
	confidence TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	details TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_combined_signals_symbol_ts
	ON combined_signals (symbol, timestamp DESC);
`

func (r *SignalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-repo.migrate")
	defer span.End()

	_, err := r.pool.Exec(ctx, createSignalsSQL)
	return err
}

func (r *SignalRepository) InsertSignal(ctx context.Context, signal domain.CombinedSignal) (domain.CombinedSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.insert-signal")
	defer span.End()

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO combined_signals (symbol, ml_score, inflection_score, combined_score, action, confidence, timestamp, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		signal.Symbol,
		signal.MLScore,
		signal.InflectionScore,
		signal.CombinedScore,
		string(signal.Action),
		string(signal.Confidence),
		signal.Timestamp.UTC(),
		signal.Details,
	).Scan(&id)
	if err != nil {
		return domain.CombinedSignal{}, err
	}
	signal.ID = id
	return signal, nil
}

func (r *SignalRepository) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.CombinedSignal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-signals")
	defer span.End()

	args := make([]any, 0, 3)
	var sb strings.Builder
	sb.WriteString(`SELECT id, symbol, ml_score, inflection_score, combined_score, action, confidence, timestamp, details
		FROM combined_signals
		WHERE 1=1`)

	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		sb.WriteString(fmt.Sprintf(" AND symbol = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		sb.WriteString(fmt.Sprintf(" AND action = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	signals := make([]domain.CombinedSignal, 0, limit)
	for rows.Next() {
		var (
			s          domain.CombinedSignal
			action     string
			confidence string
			ts         time.Time
		)
		if err := rows.Scan(
			&s.ID,
			&s.Symbol,
			&s.MLScore,
			&s.InflectionScore,
			&s.CombinedScore,
			&action,
			&confidence,
			&ts,
			&s.Details,
		); err != nil {
			return nil, err
		}
		s.Action = domain.Action(action)
		s.Confidence = domain.Confidence(confidence)
		s.Timestamp = ts.UTC()
		signals = append(signals, s)
	}

	return signals, rows.Err()
}
