package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stock-signals/internal/domain"
	"stock-signals/internal/fusion"
	"stock-signals/internal/indicator"
	"stock-signals/internal/inflection"
	"stock-signals/internal/ml/inference"

	"go.opentelemetry.io/otel/trace"
)

type BarStore interface {
	GetBars(ctx context.Context, symbol string, limit int) ([]domain.PriceBar, error)
}

type SignalStore interface {
	InsertSignal(ctx context.Context, signal domain.CombinedSignal) (domain.CombinedSignal, error)
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.CombinedSignal, error)
}

type SignalCache interface {
	Get(ctx context.Context, symbol string) (*domain.CombinedSignal, error)
	Set(ctx context.Context, signal domain.CombinedSignal) error
}

type Predictor interface {
	Predict(ctx context.Context, frame *indicator.Frame) (inference.Prediction, error)
}

type Alerter interface {
	SignalAlert(signal domain.CombinedSignal)
}

type SignalService struct {
	tracer      trace.Tracer
	bars        BarStore
	signals     SignalStore
	cache       SignalCache
	predictor   Predictor
	scorer      *inflection.Scorer
	engine      *indicator.Engine
	fusionCfg   fusion.Config
	alerter     Alerter
	historyBars int
	now         func() time.Time
}

func NewSignalService(
	tracer trace.Tracer,
	bars BarStore,
	signals SignalStore,
	cache SignalCache,
	predictor Predictor,
	scorer *inflection.Scorer,
	engine *indicator.Engine,
	fusionCfg fusion.Config,
	alerter Alerter,
	historyBars int,
	now func() time.Time,
) *SignalService {
	if historyBars <= 0 {
		historyBars = 400
	}
	if now == nil {
		now = time.Now
	}
	return &SignalService{
		tracer:      tracer,
		bars:        bars,
		signals:     signals,
		cache:       cache,
		predictor:   predictor,
		scorer:      scorer,
		engine:      engine,
		fusionCfg:   fusionCfg,
		alerter:     alerter,
		historyBars: historyBars,
		now:         now,
	}
}

// SetAlerter installs the alert sink after construction. The bot needs the
// service to exist before it can hand back its dispatcher.
func (s *SignalService) SetAlerter(alerter Alerter) {
	s.alerter = alerter
}

// ScoreSymbol runs the full pipeline for one symbol: indicators, classifier,
// milestone scorer, fusion, then persistence, cache and alerting.
func (s *SignalService) ScoreSymbol(ctx context.Context, symbol string) (domain.CombinedSignal, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.score-symbol")
	defer span.End()

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, symbol); err == nil && cached != nil {
			return *cached, nil
		}
	}

	bars, err := s.bars.GetBars(ctx, symbol, s.historyBars)
	if err != nil {
		return domain.CombinedSignal{}, fmt.Errorf("load bars for %s: %w", symbol, err)
	}

	frame, err := s.engine.Compute(symbol, bars)
	if err != nil {
		return domain.CombinedSignal{}, err
	}
	pred, err := s.predictor.Predict(ctx, frame)
	if err != nil {
		return domain.CombinedSignal{}, err
	}
	inflSig, err := s.scorer.Score(symbol, bars)
	if err != nil {
		return domain.CombinedSignal{}, err
	}

	fused := fusion.Fuse(s.fusionCfg, pred.MLScore, inflSig.Strength)

	signal := domain.CombinedSignal{
		Symbol:          symbol,
		MLScore:         fused.MLScore,
		InflectionScore: fused.InflectionScore,
		CombinedScore:   fused.CombinedScore,
		Action:          fused.Action,
		Confidence:      fused.Confidence,
		Timestamp:       s.now().UTC(),
		Details:         buildDetails(pred, inflSig, s.scorer.Statuses(inflSig.ElapsedDays)),
	}

	if s.signals != nil {
		stored, err := s.signals.InsertSignal(ctx, signal)
		if err != nil {
			return domain.CombinedSignal{}, fmt.Errorf("store signal for %s: %w", symbol, err)
		}
		signal = stored
	}
	if s.cache != nil {
		// cache writes are best-effort
		_ = s.cache.Set(ctx, signal)
	}
	if s.alerter != nil && (signal.Action == domain.ActionStrongBuy || signal.Action == domain.ActionSell) {
		s.alerter.SignalAlert(signal)
	}

	return signal, nil
}

// ScoreBatch scores each symbol independently: one symbol's failure lands in
// the error map without touching its siblings.
func (s *SignalService) ScoreBatch(ctx context.Context, symbols []string) (map[string]domain.CombinedSignal, map[string]error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.score-batch")
	defer span.End()

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

func (s *SignalService) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.CombinedSignal, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.list-signals")
	defer span.End()

	if s.signals == nil {
		return nil, nil
	}
	return s.signals.ListSignals(ctx, filter)
}

func buildDetails(pred inference.Prediction, inflSig domain.InflectionSignal, statuses []inflection.MilestoneStatus) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class=%s model=%s/v%d", pred.PredictedClass, pred.ModelKey, pred.ModelVersion)
	fmt.Fprintf(&sb, " anchor=%s elapsed=%d", inflSig.AnchorDate.Format("2006-01-02"), inflSig.ElapsedDays)
	if days := inflSig.TriggeredDays(); len(days) > 0 {
		fmt.Fprintf(&sb, " milestones=%v", days)
	}
	for _, st := range statuses {
		if st.Status == inflection.StatusApproaching {
			fmt.Fprintf(&sb, " next=%d", st.Day)
			break
		}
	}
	if pred.HasAnomaly {
		fmt.Fprintf(&sb, " anomaly=%.2f", pred.AnomalyScore)
	}
	return sb.String()
}
