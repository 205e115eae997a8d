package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stock-signals/internal/config"
	"stock-signals/internal/indicator"
	"stock-signals/internal/ml/features"
	"stock-signals/internal/ml/registry"
	"stock-signals/internal/ml/training"
	"stock-signals/internal/report"
	"stock-signals/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

type options struct {
	symbols   []string
	reportDir string
}

func main() {
	loadEnvFunc()

	cfg := config.Load()

	opts, err := parseOptions(os.Args[1:], cfg)
	if err != nil {
		log.Fatalf("parse options: %v", err)
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Minute)
	defer cancel()

	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping postgres: %v", err)
	}

	tracer := trace.NewNoopTracerProvider().Tracer("train")
	barRepo := repository.NewBarRepository(pool, tracer)
	modelRepo := registry.NewRepository(pool, tracer)
	if err := modelRepo.RunMigrations(ctx); err != nil {
		log.Fatalf("run model migrations: %v", err)
	}

	engine, err := indicator.NewEngine(indicator.Config{})
	if err != nil {
		log.Fatalf("invalid indicator config: %v", err)
	}
	builder := features.NewBuilder(features.Config{
		Horizon:       cfg.LabelHorizon,
		FlatTolerance: cfg.FlatTolerance,
	})
	trainer := training.NewService(tracer, barRepo, modelRepo, engine, builder, training.Config{
		HistoryBars:     cfg.HistoryBars,
		MinTrainRows:    cfg.MinTrainRows,
		TestSplit:       cfg.TestSplit,
		Trees:           cfg.ForestTrees,
		MaxDepth:        cfg.ForestDepth,
		MinSamplesSplit: cfg.ForestMinSplit,
		Seed:            cfg.ForestSeed,
		EnableAnomaly:   cfg.EnableAnomaly,
		IForestTrees:    cfg.IForestTrees,
		IForestSamples:  cfg.IForestSamples,
	})

	log.Printf("starting training run: symbols=%s", strings.Join(opts.symbols, ","))

	now := time.Now()
	results, failures := trainer.TrainAll(ctx, opts.symbols, now)

	for symbol, err := range failures {
		log.Printf("training failed for %s: %v", symbol, err)
	}
	for symbol, result := range results {
		log.Printf(
			"trained %s: model=%s v%d accuracy=%.3f samples=%d promoted=%t",
			symbol, result.ModelKey, result.Version, result.Metrics.Accuracy, result.SampleCount, result.Promoted,
		)
		if opts.reportDir != "" {
			if err := writeReport(opts.reportDir, result, now); err != nil {
				log.Printf("write report for %s: %v", symbol, err)
			}
		}
	}

	log.Printf("training complete: trained=%d failed=%d", len(results), len(failures))
	if len(results) == 0 && len(failures) > 0 {
		os.Exit(1)
	}
}

func writeReport(dir string, result training.Result, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s_%s.txt", result.ModelKey, now.UTC().Format("20060102T150405"))
	return os.WriteFile(filepath.Join(dir, name), []byte(report.Render(result, now)), 0o644)
}

func parseOptions(args []string, cfg *config.Config) (options, error) {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	symbolsRaw := fs.String("symbols", strings.Join(cfg.Symbols, ","), "comma-separated symbols to train")
	reportDir := fs.String("report-dir", cfg.ReportDir, "directory for performance reports (empty to skip)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	symbols, err := normalizeSymbols(*symbolsRaw)
	if err != nil {
		return options{}, err
	}

	return options{
		symbols:   symbols,
		reportDir: strings.TrimSpace(*reportDir),
	}, nil
}

func normalizeSymbols(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		if _, exists := seen[s]; exists {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("symbols cannot be empty")
	}
	return out, nil
}
