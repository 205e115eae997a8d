package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"stock-signals/internal/bot"
	"stock-signals/internal/cache"
	"stock-signals/internal/config"
	"stock-signals/internal/db"
	"stock-signals/internal/fusion"
	"stock-signals/internal/handler"
	"stock-signals/internal/indicator"
	"stock-signals/internal/inflection"
	"stock-signals/internal/job"
	"stock-signals/internal/ml/features"
	"stock-signals/internal/ml/inference"
	"stock-signals/internal/ml/registry"
	"stock-signals/internal/ml/training"
	"stock-signals/internal/repository"
	"stock-signals/internal/service"
	"stock-signals/internal/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initTracerFunc         = tracing.InitTracer
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initPostgresFunc(ctx)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	barRepo := repository.NewBarRepository(db.Pool, tracer)
	signalRepo := repository.NewSignalRepository(db.Pool, tracer)
	modelRepo := registry.NewRepository(db.Pool, tracer)
	if db.Pool != nil {
		if err := barRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run bar migrations: %v", err)
		}
		if err := signalRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run signal migrations: %v", err)
		}
		if err := modelRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run model migrations: %v", err)
		}
	}

	var signalCache service.SignalCache
	if client, err := cache.NewClient(ctx, cfg.RedisURL); err != nil {
		log.Printf("redis unavailable, caching disabled: %v", err)
	} else {
		signalCache = cache.NewSignalCache(client, time.Duration(cfg.CacheTTLSecs)*time.Second)
	}

	engine, err := indicator.NewEngine(indicator.Config{})
	if err != nil {
		log.Fatalf("invalid indicator config: %v", err)
	}
	scorer, err := inflection.NewScorer(inflection.Config{
		Tolerance: cfg.MilestoneTolerance,
		LowWindow: cfg.LowWindow,
		Lookback:  cfg.Lookback,
	})
	if err != nil {
		log.Fatalf("invalid inflection config: %v", err)
	}
	fusionCfg := fusion.DefaultConfig()
	fusionCfg.WeightML = cfg.MLWeight
	fusionCfg.WeightInflection = cfg.InflectionWeight
	if err := fusionCfg.Validate(); err != nil {
		log.Fatalf("invalid fusion config: %v", err)
	}

	builder := features.NewBuilder(features.Config{
		Horizon:       cfg.LabelHorizon,
		FlatTolerance: cfg.FlatTolerance,
	})
	predictor := inference.NewService(tracer, modelRepo, builder)
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

	signalService := service.NewSignalService(
		tracer, barRepo, signalRepo, signalCache, predictor,
		scorer, engine, fusionCfg, nil, cfg.HistoryBars, nil,
	)

	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	if alerts := bot.StartTelegramBot(signalService, cfg.Symbols); alerts != nil {
		signalService.SetAlerter(alerts)
	}

	poller := job.NewSignalPoller(tracer, signalService, cfg.Symbols, time.Duration(cfg.PollSecs)*time.Second)
	go poller.Start(ctx)

	h := handler.New(tracer, signalService, trainer, modelRepo, cfg.Symbols)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("stock-signals"))
	r.Use(cors.Default())
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
