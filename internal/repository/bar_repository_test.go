package repository

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"stock-signals/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

func TestUpsertBarsBatchesStatements(t *testing.T) {
	batchResults := &stubBatchResults{}
	pool := &stubPool{batchResults: batchResults}
	repo := NewBarRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	bars := []domain.PriceBar{
		{Date: time.Unix(0, 0), Close: 100},
		{Date: time.Unix(86400, 0), Close: 101},
	}
	if err := repo.UpsertBars(context.Background(), "005930", bars); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.queuedBatch == nil || pool.queuedBatch.Len() != len(bars) {
		t.Fatalf("expected batch of size %d", len(bars))
	}
	if batchResults.execCalls != len(bars) {
		t.Fatalf("expected %d Exec calls, got %d", len(bars), batchResults.execCalls)
	}
}

func TestGetBarsAscendingWithNulls(t *testing.T) {
	// rows arrive newest-first from the query
	later := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	rows := [][]any{
		{later, ptr(101.0), ptr(103.0), ptr(100.0), 102.0, ptr(2000.0)},
		{earlier, (*float64)(nil), (*float64)(nil), (*float64)(nil), 100.0, (*float64)(nil)},
	}
	pool := &stubPool{rowsData: rows}
	repo := NewBarRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	bars, err := repo.GetBars(context.Background(), "005930", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[0].Date.Equal(earlier) || !bars[1].Date.Equal(later) {
		t.Fatalf("expected ascending order, got %v then %v", bars[0].Date, bars[1].Date)
	}
	if !math.IsNaN(bars[0].Open) || !math.IsNaN(bars[0].Volume) {
		t.Fatalf("expected NULL optional fields as NaN, got %+v", bars[0])
	}
	if bars[1].High != 103.0 {
		t.Fatalf("expected high 103.0, got %.1f", bars[1].High)
	}
}

func ptr(v float64) *float64 { return &v }

type stubPool struct {
	batchResults pgx.BatchResults
	queuedBatch  *pgx.Batch
	rowsData     [][]any
	queryRowData []any
}

func (s *stubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *stubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.queuedBatch = b
	if s.batchResults != nil {
		return s.batchResults
	}
	return &stubBatchResults{}
}

func (s *stubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.rowsData == nil {
		return &stubRows{}, nil
	}
	dataCopy := make([][]any, len(s.rowsData))
	for i := range s.rowsData {
		row := make([]any, len(s.rowsData[i]))
		copy(row, s.rowsData[i])
		dataCopy[i] = row
	}
	return &stubRows{data: dataCopy}, nil
}

func (s *stubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &stubRow{values: s.queryRowData}
}

type stubBatchResults struct {
	execCalls int
}

func (s *stubBatchResults) Exec() (pgconn.CommandTag, error) {
	s.execCalls++
	return pgconn.CommandTag{}, nil
}

func (s *stubBatchResults) Query() (pgx.Rows, error) { return &stubRows{}, nil }

func (s *stubBatchResults) QueryRow() pgx.Row { return &stubRow{} }

func (s *stubBatchResults) Close() error { return nil }

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close() {}

func (r *stubRows) Err() error { return nil }

func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *stubRows) Next() bool {
	if len(r.data) == 0 || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	row := r.data[r.idx-1]
	return scanInto(row, dest)
}

func (r *stubRows) Values() ([]any, error) { return nil, nil }

func (r *stubRows) RawValues() [][]byte { return nil }

func (r *stubRows) Conn() *pgx.Conn { return nil }

type stubRow struct {
	values []any
}

func (r *stubRow) Scan(dest ...any) error {
	if r.values == nil {
		return nil
	}
	return scanInto(r.values, dest)
}

func scanInto(row []any, dest []any) error {
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *time.Time:
			*ptr = row[i].(time.Time)
		case *float64:
			*ptr = row[i].(float64)
		case *int64:
			*ptr = row[i].(int64)
		case **float64:
			*ptr = row[i].(*float64)
		default:
			return fmt.Errorf("unsupported dest type %T", d)
		}
	}
	return nil
}
