package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"stock-signals/internal/domain"
)

type Config struct {
	DatabaseURL      string
	RedisURL         string
	TelegramBotToken string
	HTTPPort         int

	Symbols      []string
	PollSecs     int
	CacheTTLSecs int
	HistoryBars  int

	LabelHorizon   int
	FlatTolerance  float64
	MinTrainRows   int
	TestSplit      float64
	ForestTrees    int
	ForestDepth    int
	ForestMinSplit int
	ForestSeed     int64

	EnableAnomaly  bool
	IForestTrees   int
	IForestSamples int

	MilestoneTolerance int
	LowWindow          int
	Lookback           int

	MLWeight         float64
	InflectionWeight float64

	ReportDir string
}

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, alerts disabled")
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	cfg.Symbols = parseSymbols(os.Getenv("SYMBOLS"))

	cfg.PollSecs = 1800
	if v := strings.TrimSpace(os.Getenv("SIGNAL_POLL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollSecs = n
		}
	}

	cfg.CacheTTLSecs = 300
	if v := strings.TrimSpace(os.Getenv("SIGNAL_CACHE_TTL_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSecs = n
		}
	}

	cfg.HistoryBars = 400
	if v := strings.TrimSpace(os.Getenv("HISTORY_BARS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HistoryBars = n
		}
	}

	cfg.LabelHorizon = 1
	if v := strings.TrimSpace(os.Getenv("LABEL_HORIZON")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LabelHorizon = n
		}
	}

	cfg.FlatTolerance = 0.005
	if v := strings.TrimSpace(os.Getenv("LABEL_FLAT_TOLERANCE")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 {
			cfg.FlatTolerance = n
		}
	}

	cfg.MinTrainRows = 120
	if v := strings.TrimSpace(os.Getenv("MIN_TRAIN_ROWS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MinTrainRows = n
		}
	}

	cfg.TestSplit = 0.2
	if v := strings.TrimSpace(os.Getenv("TEST_SPLIT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n < 1 {
			cfg.TestSplit = n
		}
	}

	cfg.ForestTrees = 100
	if v := strings.TrimSpace(os.Getenv("FOREST_TREES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ForestTrees = n
		}
	}

	cfg.ForestDepth = 10
	if v := strings.TrimSpace(os.Getenv("FOREST_MAX_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ForestDepth = n
		}
	}

	cfg.ForestMinSplit = 5
	if v := strings.TrimSpace(os.Getenv("FOREST_MIN_SAMPLES_SPLIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			cfg.ForestMinSplit = n
		}
	}

	cfg.ForestSeed = 42
	if v := strings.TrimSpace(os.Getenv("FOREST_SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n != 0 {
			cfg.ForestSeed = n
		}
	}

	cfg.EnableAnomaly = true
	if v := strings.TrimSpace(os.Getenv("ENABLE_ANOMALY")); v != "" {
		if strings.EqualFold(v, "false") {
			cfg.EnableAnomaly = false
		}
	}

	cfg.IForestTrees = 100
	if v := strings.TrimSpace(os.Getenv("IFOREST_TREES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IForestTrees = n
		}
	}

	cfg.IForestSamples = 256
	if v := strings.TrimSpace(os.Getenv("IFOREST_SAMPLE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.IForestSamples = n
		}
	}

	cfg.MilestoneTolerance = 0
	if v := strings.TrimSpace(os.Getenv("MILESTONE_TOLERANCE_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MilestoneTolerance = n
		}
	}

	cfg.LowWindow = 20
	if v := strings.TrimSpace(os.Getenv("LOW_WINDOW")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LowWindow = n
		}
	}

	cfg.Lookback = 88
	if v := strings.TrimSpace(os.Getenv("ANCHOR_LOOKBACK")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Lookback = n
		}
	}

	cfg.MLWeight = 0.6
	if v := strings.TrimSpace(os.Getenv("ML_WEIGHT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 && n <= 1 {
			cfg.MLWeight = n
		}
	}
	cfg.InflectionWeight = 1 - cfg.MLWeight
	if v := strings.TrimSpace(os.Getenv("INFLECTION_WEIGHT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 && n <= 1 {
			cfg.InflectionWeight = n
		}
	}

	cfg.ReportDir = strings.TrimSpace(os.Getenv("REPORT_DIR"))
	if cfg.ReportDir == "" {
		cfg.ReportDir = "reports"
	}

	return cfg
}

func parseSymbols(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), domain.DefaultSymbols...)
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		symbol := strings.TrimSpace(part)
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		out = append(out, symbol)
	}
	if len(out) == 0 {
		return append([]string(nil), domain.DefaultSymbols...)
	}
	return out
}
