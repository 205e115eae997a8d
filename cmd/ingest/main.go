package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-signals/internal/domain"
	"stock-signals/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

// Expected CSV layout: date,open,high,low,close,volume with a header row.
// Close is mandatory; the remaining price fields may be blank.
func main() {
	loadEnvFunc()

	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	symbol := fs.String("symbol", "", "stock symbol the file belongs to")
	file := fs.String("file", "", "path to the CSV file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if strings.TrimSpace(*symbol) == "" || strings.TrimSpace(*file) == "" {
		log.Fatal("both -symbol and -file are required")
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open %s: %v", *file, err)
	}
	defer f.Close()

	bars, err := parseBars(f)
	if err != nil {
		log.Fatalf("parse %s: %v", *file, err)
	}
	if len(bars) == 0 {
		log.Fatalf("no bars found in %s", *file)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	tracer := trace.NewNoopTracerProvider().Tracer("ingest")
	barRepo := repository.NewBarRepository(pool, tracer)
	if err := barRepo.RunMigrations(ctx); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	if err := barRepo.UpsertBars(ctx, strings.TrimSpace(*symbol), bars); err != nil {
		log.Fatalf("upsert bars: %v", err)
	}

	log.Printf("ingested %d bars for %s", len(bars), *symbol)
}

func parseBars(r io.Reader) ([]domain.PriceBar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 5 || !strings.EqualFold(strings.TrimSpace(header[0]), "date") {
		return nil, fmt.Errorf("unexpected header: %v", header)
	}

	var bars []domain.PriceBar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		bar, err := parseBar(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(record []string) (domain.PriceBar, error) {
	if len(record) < 5 {
		return domain.PriceBar{}, fmt.Errorf("expected at least 5 fields, got %d", len(record))
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("bad date %q: %w", record[0], err)
	}

	closePrice, err := strconv.ParseFloat(strings.TrimSpace(record[4]), 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("bad close %q: %w", record[4], err)
	}

	bar := domain.PriceBar{
		Date:   date.UTC(),
		Open:   optionalField(record, 1),
		High:   optionalField(record, 2),
		Low:    optionalField(record, 3),
		Close:  closePrice,
		Volume: optionalField(record, 5),
	}
	return bar, nil
}

func optionalField(record []string, idx int) float64 {
	if idx >= len(record) {
		return math.NaN()
	}
	v := strings.TrimSpace(record[idx])
	if v == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
