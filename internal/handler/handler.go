package handler

import (
	"context"
	"net/http"
	"time"

	"stock-signals/internal/domain"
	"stock-signals/internal/ml/training"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type SignalService interface {
	ScoreSymbol(ctx context.Context, symbol string) (domain.CombinedSignal, error)
	ScoreBatch(ctx context.Context, symbols []string) (map[string]domain.CombinedSignal, map[string]error)
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.CombinedSignal, error)
}

type TrainingService interface {
	TrainAll(ctx context.Context, symbols []string, now time.Time) (map[string]training.Result, map[string]error)
}

type ModelRegistry interface {
	GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error)
}

type Handler struct {
	tracer          trace.Tracer
	signalService   SignalService
	trainingService TrainingService
	registry        ModelRegistry
	symbols         []string
}

func New(
	tracer trace.Tracer,
	signalService SignalService,
	trainingService TrainingService,
	registry ModelRegistry,
	symbols []string,
) *Handler {
	if len(symbols) == 0 {
		symbols = domain.DefaultSymbols
	}
	return &Handler{
		tracer:          tracer,
		signalService:   signalService,
		trainingService: trainingService,
		registry:        registry,
		symbols:         symbols,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/signals", h.GetSignals)
	r.POST("/api/signals/batch", h.ScoreBatch)
	r.GET("/api/signals/:symbol", h.ScoreSymbol)
	r.POST("/api/train", h.Train)
	r.GET("/api/models/:symbol/active", h.GetActiveModel)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
