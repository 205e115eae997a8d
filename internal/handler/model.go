package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"stock-signals/internal/domain"
	"stock-signals/internal/ml/common"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Train retrains the configured symbols and reports per-symbol outcomes. A
// JSON body with a "symbols" array narrows the run.
func (h *Handler) Train(c *gin.Context) {
	if h.trainingService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "training service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.train")
	defer span.End()

	symbols := h.symbols
	var body struct {
		Symbols []string `json:"symbols"`
	}
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"symbols\": [...]}"})
			return
		}
		if len(body.Symbols) > 0 {
			symbols = body.Symbols
		}
	}
	span.SetAttributes(attribute.Int("symbol_count", len(symbols)))

	results, failures := h.trainingService.TrainAll(ctx, symbols, time.Now())

	trained := make(map[string]gin.H, len(results))
	for symbol, result := range results {
		trained[symbol] = gin.H{
			"model_key": result.ModelKey,
			"version":   result.Version,
			"accuracy":  result.Metrics.Accuracy,
			"samples":   result.SampleCount,
			"promoted":  result.Promoted,
		}
	}
	failed := make(map[string]string, len(failures))
	for symbol, err := range failures {
		failed[symbol] = err.Error()
	}

	status := http.StatusOK
	if len(trained) == 0 && len(failed) > 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"trained": trained, "failed": failed})
}

// GetActiveModel returns the metadata of the active classifier for a symbol.
// The artifact blob stays server-side.
func (h *Handler) GetActiveModel(c *gin.Context) {
	if h.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "model registry unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-active-model")
	defer span.End()

	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	modelKey := common.ForestModelKey(symbol)
	span.SetAttributes(attribute.String("model_key", modelKey))

	model, err := h.registry.GetActiveModel(ctx, modelKey)
	if err != nil {
		var stateErr *domain.ModelStateError
		if errors.As(err, &stateErr) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var metrics json.RawMessage
	if json.Valid([]byte(model.MetricsJSON)) {
		metrics = json.RawMessage(model.MetricsJSON)
	}
	c.JSON(http.StatusOK, gin.H{
		"model_key":       model.ModelKey,
		"version":         model.Version,
		"schema_version":  model.SchemaVersion,
		"trained_at":      model.TrainedAt,
		"sample_count":    model.SampleCount,
		"test_count":      model.TestCount,
		"artifact_format": model.ArtifactFormat,
		"metrics":         metrics,
	})
}
