package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stock-signals/internal/domain"
	"stock-signals/internal/ml/training"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

func newTestHandler(signals SignalService, trainer TrainingService, registry ModelRegistry) *Handler {
	tracer := trace.NewNoopTracerProvider().Tracer("handler-test")
	return New(tracer, signals, trainer, registry, []string{"005930", "000660"})
}

func TestGetSignalsSuccess(t *testing.T) {
	store := &handlerSignalServiceStub{
		listResp: []domain.CombinedSignal{{
			ID:            1,
			Symbol:        "005930",
			CombinedScore: 79.18,
			Action:        domain.ActionStrongBuy,
			Confidence:    domain.ConfidenceHigh,
			Timestamp:     time.Unix(0, 0).UTC(),
		}},
	}
	h := newTestHandler(store, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals?symbol=005930&action=strong_buy&limit=5", nil)

	router := gin.New()
	router.GET("/api/signals", h.GetSignals)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if store.lastFilter.Symbol != "005930" {
		t.Fatalf("expected symbol filter, got %q", store.lastFilter.Symbol)
	}
	if store.lastFilter.Action != domain.ActionStrongBuy {
		t.Fatalf("expected action filter, got %q", store.lastFilter.Action)
	}
	if store.lastFilter.Limit != 5 {
		t.Fatalf("expected limit 5, got %d", store.lastFilter.Limit)
	}

	var resp struct {
		Signals []domain.CombinedSignal `json:"signals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(resp.Signals) != 1 || resp.Signals[0].CombinedScore != 79.18 {
		t.Fatalf("unexpected response payload: %+v", resp)
	}
}

func TestGetSignalsInvalidAction(t *testing.T) {
	h := newTestHandler(&handlerSignalServiceStub{}, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals?action=MAYBE", nil)

	router := gin.New()
	router.GET("/api/signals", h.GetSignals)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetSignalsInvalidLimit(t *testing.T) {
	h := newTestHandler(&handlerSignalServiceStub{}, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals?limit=abc", nil)

	router := gin.New()
	router.GET("/api/signals", h.GetSignals)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestScoreSymbolSuccess(t *testing.T) {
	store := &handlerSignalServiceStub{
		scoreResp: domain.CombinedSignal{
			Symbol:        "005930",
			MLScore:       75.3,
			CombinedScore: 79.18,
			Action:        domain.ActionStrongBuy,
		},
	}
	h := newTestHandler(store, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals/005930", nil)

	router := gin.New()
	router.GET("/api/signals/:symbol", h.ScoreSymbol)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Signal domain.CombinedSignal `json:"signal"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if resp.Signal.Action != domain.ActionStrongBuy {
		t.Fatalf("unexpected signal payload: %+v", resp.Signal)
	}
}

func TestScoreSymbolNoActiveModel(t *testing.T) {
	store := &handlerSignalServiceStub{
		scoreErr: &domain.ModelStateError{ModelKey: "forest_005930", Reason: "no active version"},
	}
	h := newTestHandler(store, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals/005930", nil)

	router := gin.New()
	router.GET("/api/signals/:symbol", h.ScoreSymbol)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestScoreSymbolInsufficientData(t *testing.T) {
	store := &handlerSignalServiceStub{
		scoreErr: &domain.InsufficientDataError{Symbol: "005930", Op: "indicators", Needed: 60, Got: 10},
	}
	h := newTestHandler(store, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signals/005930", nil)

	router := gin.New()
	router.GET("/api/signals/:symbol", h.ScoreSymbol)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestScoreBatchIsolatesFailures(t *testing.T) {
	store := &handlerSignalServiceStub{
		scoreResp: domain.CombinedSignal{CombinedScore: 55, Action: domain.ActionBuy},
		scoreErrs: map[string]error{
			"999999": &domain.DataQualityError{Symbol: "999999", Reason: "no bars"},
		},
	}
	h := newTestHandler(store, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/signals/batch", strings.NewReader(`{"symbols":["005930","999999"]}`))
	req.Header.Set("Content-Type", "application/json")

	router := gin.New()
	router.POST("/api/signals/batch", h.ScoreBatch)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(store.lastBatch) != 2 {
		t.Fatalf("expected both symbols forwarded, got %v", store.lastBatch)
	}

	var resp struct {
		Signals map[string]domain.CombinedSignal `json:"signals"`
		Failed  map[string]string                `json:"failed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(resp.Signals) != 1 || resp.Signals["005930"].Action != domain.ActionBuy {
		t.Fatalf("expected one scored symbol, got %+v", resp.Signals)
	}
	if len(resp.Failed) != 1 || resp.Failed["999999"] == "" {
		t.Fatalf("expected one failure recorded, got %+v", resp.Failed)
	}
}

func TestScoreBatchDefaultsToWatchlist(t *testing.T) {
	store := &handlerSignalServiceStub{}
	h := newTestHandler(store, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/signals/batch", nil)

	router := gin.New()
	router.POST("/api/signals/batch", h.ScoreBatch)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(store.lastBatch) != 2 || store.lastBatch[0] != "005930" {
		t.Fatalf("expected configured watchlist, got %v", store.lastBatch)
	}
}

func TestScoreBatchAllFailed(t *testing.T) {
	store := &handlerSignalServiceStub{
		scoreErr: &domain.DataQualityError{Symbol: "005930", Reason: "feed outage"},
	}
	h := newTestHandler(store, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/signals/batch", nil)

	router := gin.New()
	router.POST("/api/signals/batch", h.ScoreBatch)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when every symbol fails, got %d", w.Code)
	}
}

type handlerSignalServiceStub struct {
	lastFilter domain.SignalFilter
	listResp   []domain.CombinedSignal
	scoreResp  domain.CombinedSignal
	scoreErr   error
	scoreErrs  map[string]error
	lastBatch  []string
}

func (s *handlerSignalServiceStub) ScoreSymbol(ctx context.Context, symbol string) (domain.CombinedSignal, error) {
	if err := s.scoreErrs[symbol]; err != nil {
		return domain.CombinedSignal{}, err
	}
	if s.scoreErr != nil {
		return domain.CombinedSignal{}, s.scoreErr
	}
	signal := s.scoreResp
	if signal.Symbol == "" {
		signal.Symbol = symbol
	}
	return signal, nil
}

func (s *handlerSignalServiceStub) ScoreBatch(ctx context.Context, symbols []string) (map[string]domain.CombinedSignal, map[string]error) {
	s.lastBatch = append([]string(nil), symbols...)
	results := make(map[string]domain.CombinedSignal, len(symbols))
	failures := make(map[string]error)
	for _, symbol := range symbols {
		signal, err := s.ScoreSymbol(ctx, symbol)
		if err != nil {
			failures[symbol] = err
			continue
		}
		results[symbol] = signal
	}
	return results, failures
}

func (s *handlerSignalServiceStub) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.CombinedSignal, error) {
	s.lastFilter = filter
	return append([]domain.CombinedSignal(nil), s.listResp...), nil
}

type handlerTrainingStub struct {
	results  map[string]training.Result
	failures map[string]error
	last     []string
}

func (s *handlerTrainingStub) TrainAll(ctx context.Context, symbols []string, now time.Time) (map[string]training.Result, map[string]error) {
	s.last = append([]string(nil), symbols...)
	failures := s.failures
	if failures == nil {
		failures = map[string]error{}
	}
	return s.results, failures
}

type handlerRegistryStub struct {
	active map[string]*domain.ModelVersion
}

func (s *handlerRegistryStub) GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error) {
	if model, ok := s.active[modelKey]; ok {
		return model, nil
	}
	return nil, &domain.ModelStateError{ModelKey: modelKey, Reason: "no active version"}
}
