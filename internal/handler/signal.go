package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"stock-signals/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetSignals returns recently stored signals, optionally filtered by symbol
// and action.
func (h *Handler) GetSignals(c *gin.Context) {
	if h.signalService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-signals")
	defer span.End()

	filter := domain.SignalFilter{
		Symbol: strings.TrimSpace(c.Query("symbol")),
	}
	if filter.Symbol != "" {
		span.SetAttributes(attribute.String("symbol", filter.Symbol))
	}

	if rawAction := strings.TrimSpace(c.Query("action")); rawAction != "" {
		action := domain.Action(strings.ToUpper(rawAction))
		if !action.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of STRONG_BUY, BUY, HOLD, SELL"})
			return
		}
		filter.Action = action
	}

	limit := 50
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	filter.Limit = limit

	signals, err := h.signalService.ListSignals(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// ScoreSymbol runs the scoring pipeline for one symbol and returns the fused
// signal.
func (h *Handler) ScoreSymbol(c *gin.Context) {
	if h.signalService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.score-symbol")
	defer span.End()

	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	span.SetAttributes(attribute.String("symbol", symbol))

	signal, err := h.signalService.ScoreSymbol(ctx, symbol)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signal": signal})
}

// ScoreBatch scores several symbols in one call. A failing symbol lands in
// the failed map without aborting its siblings; the response carries both
// maps. A JSON body with a "symbols" array narrows the run from the
// configured watchlist.
func (h *Handler) ScoreBatch(c *gin.Context) {
	if h.signalService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.score-batch")
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

	results, failures := h.signalService.ScoreBatch(ctx, symbols)

	failed := make(map[string]string, len(failures))
	for symbol, err := range failures {
		failed[symbol] = err.Error()
	}

	status := http.StatusOK
	if len(results) == 0 && len(failed) > 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"signals": results, "failed": failed})
}

func statusForError(err error) int {
	var (
		dataErr   *domain.DataQualityError
		insufErr  *domain.InsufficientDataError
		modelErr  *domain.ModelStateError
		configErr *domain.ConfigurationError
	)
	switch {
	case errors.As(err, &dataErr), errors.As(err, &insufErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &modelErr):
		return http.StatusConflict
	case errors.As(err, &configErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
