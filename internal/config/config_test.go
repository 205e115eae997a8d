package config

import (
	"reflect"
	"testing"

	"stock-signals/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("SYMBOLS", "")
	t.Setenv("SIGNAL_POLL_SECS", "")
	t.Setenv("SIGNAL_CACHE_TTL_SECS", "")
	t.Setenv("HISTORY_BARS", "")
	t.Setenv("LABEL_HORIZON", "")
	t.Setenv("LABEL_FLAT_TOLERANCE", "")
	t.Setenv("MIN_TRAIN_ROWS", "")
	t.Setenv("TEST_SPLIT", "")
	t.Setenv("FOREST_TREES", "")
	t.Setenv("FOREST_MAX_DEPTH", "")
	t.Setenv("FOREST_MIN_SAMPLES_SPLIT", "")
	t.Setenv("FOREST_SEED", "")
	t.Setenv("ENABLE_ANOMALY", "")
	t.Setenv("IFOREST_TREES", "")
	t.Setenv("IFOREST_SAMPLE_SIZE", "")
	t.Setenv("MILESTONE_TOLERANCE_DAYS", "")
	t.Setenv("LOW_WINDOW", "")
	t.Setenv("ANCHOR_LOOKBACK", "")
	t.Setenv("ML_WEIGHT", "")
	t.Setenv("INFLECTION_WEIGHT", "")
	t.Setenv("REPORT_DIR", "")

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.HTTPPort)
	}
	if !reflect.DeepEqual(cfg.Symbols, domain.DefaultSymbols) {
		t.Fatalf("expected default watchlist, got %+v", cfg.Symbols)
	}
	if cfg.PollSecs != 1800 || cfg.CacheTTLSecs != 300 || cfg.HistoryBars != 400 {
		t.Fatalf("unexpected polling defaults: %+v", cfg)
	}
	if cfg.LabelHorizon != 1 || cfg.FlatTolerance != 0.005 {
		t.Fatalf("unexpected label defaults: %+v", cfg)
	}
	if cfg.MinTrainRows != 120 || cfg.TestSplit != 0.2 {
		t.Fatalf("unexpected training defaults: %+v", cfg)
	}
	if cfg.ForestTrees != 100 || cfg.ForestDepth != 10 || cfg.ForestMinSplit != 5 || cfg.ForestSeed != 42 {
		t.Fatalf("unexpected forest defaults: %+v", cfg)
	}
	if !cfg.EnableAnomaly || cfg.IForestTrees != 100 || cfg.IForestSamples != 256 {
		t.Fatalf("unexpected anomaly defaults: %+v", cfg)
	}
	if cfg.MilestoneTolerance != 0 || cfg.LowWindow != 20 || cfg.Lookback != 88 {
		t.Fatalf("unexpected milestone defaults: %+v", cfg)
	}
	if cfg.MLWeight != 0.6 || cfg.InflectionWeight != 0.4 {
		t.Fatalf("unexpected fusion weight defaults: %+v", cfg)
	}
	if cfg.ReportDir != "reports" {
		t.Fatalf("unexpected report dir default: %s", cfg.ReportDir)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SYMBOLS", "005930, 035420,005930")
	t.Setenv("SIGNAL_POLL_SECS", "600")
	t.Setenv("LABEL_FLAT_TOLERANCE", "0.01")
	t.Setenv("FOREST_SEED", "1234")
	t.Setenv("ENABLE_ANOMALY", "false")
	t.Setenv("MILESTONE_TOLERANCE_DAYS", "2")
	t.Setenv("ML_WEIGHT", "0.7")
	t.Setenv("INFLECTION_WEIGHT", "0.3")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://example" || cfg.RedisURL != "redis:6379" {
		t.Fatalf("unexpected connection config: %+v", cfg)
	}
	if cfg.HTTPPort != 9090 || cfg.PollSecs != 600 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Symbols, []string{"005930", "035420"}) {
		t.Fatalf("expected deduped symbol list, got %+v", cfg.Symbols)
	}
	if cfg.FlatTolerance != 0.01 || cfg.ForestSeed != 1234 {
		t.Fatalf("unexpected training overrides: %+v", cfg)
	}
	if cfg.EnableAnomaly {
		t.Fatal("expected anomaly disabled")
	}
	if cfg.MilestoneTolerance != 2 {
		t.Fatalf("expected milestone tolerance 2, got %d", cfg.MilestoneTolerance)
	}
	if cfg.MLWeight != 0.7 || cfg.InflectionWeight != 0.3 {
		t.Fatalf("unexpected fusion weights: %+v", cfg)
	}
}

func TestParseSymbolsEmptyFallsBack(t *testing.T) {
	if got := parseSymbols(" , ,"); !reflect.DeepEqual(got, domain.DefaultSymbols) {
		t.Fatalf("expected default watchlist, got %+v", got)
	}
}
