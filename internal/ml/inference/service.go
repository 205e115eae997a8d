package inference

import (
	"context"
	"fmt"

	"stock-signals/internal/domain"
	"stock-signals/internal/indicator"
	"stock-signals/internal/ml/common"
	"stock-signals/internal/ml/features"
	"stock-signals/internal/ml/models/forest"
	"stock-signals/internal/ml/models/iforest"

	"go.opentelemetry.io/otel/trace"
)

type ModelRegistry interface {
	GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error)
}

type Service struct {
	tracer   trace.Tracer
	registry ModelRegistry
	builder  *features.Builder
}

// Prediction is the classifier output for the latest bar of one symbol.
type Prediction struct {
	Symbol         string
	ModelKey       string
	ModelVersion   int
	Classes        []string
	Probabilities  []float64
	PredictedClass string
	MLScore        float64
	AnomalyScore   float64
	HasAnomaly     bool
}

func NewService(tracer trace.Tracer, registry ModelRegistry, builder *features.Builder) *Service {
	return &Service{tracer: tracer, registry: registry, builder: builder}
}

// Predict scores the final row of an indicator frame with the active model
// for the symbol. The configured feature ordering must match the trained one
// exactly; a mismatch fails instead of realigning.
func (s *Service) Predict(ctx context.Context, frame *indicator.Frame) (Prediction, error) {
	ctx, span := s.tracer.Start(ctx, "ml-inference.predict")
	defer span.End()

	symbol := frame.Symbol
	modelKey := common.ForestModelKey(symbol)

	active, err := s.registry.GetActiveModel(ctx, modelKey)
	if err != nil {
		return Prediction{}, err
	}
	model, err := forest.UnmarshalBinary(active.ArtifactBlob)
	if err != nil {
		return Prediction{}, &domain.ModelStateError{ModelKey: modelKey, Reason: fmt.Sprintf("corrupt artifact: %v", err)}
	}
	if err := model.ValidateFeatures(s.builder.FeatureNames()); err != nil {
		return Prediction{}, err
	}

	vec, err := s.builder.LatestVector(frame)
	if err != nil {
		return Prediction{}, err
	}
	probs, err := model.PredictProba(vec)
	if err != nil {
		return Prediction{}, &domain.ModelStateError{ModelKey: modelKey, Reason: err.Error()}
	}

	classes := model.Classes()
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}

	pred := Prediction{
		Symbol:         symbol,
		ModelKey:       modelKey,
		ModelVersion:   active.Version,
		Classes:        classes,
		Probabilities:  probs,
		PredictedClass: classes[best],
		MLScore:        common.Round1(common.Clamp01(probs[common.ClassUp]) * 100),
	}

	if score, ok := s.anomalyScore(ctx, symbol, vec); ok {
		pred.AnomalyScore = score
		pred.HasAnomaly = true
	}

	return pred, nil
}

// anomalyScore is best-effort: a missing or stale annotator never fails the
// prediction.
func (s *Service) anomalyScore(ctx context.Context, symbol string, vec []float64) (float64, bool) {
	active, err := s.registry.GetActiveModel(ctx, common.IForestModelKey(symbol))
	if err != nil {
		return 0, false
	}
	model, err := iforest.UnmarshalBinary(active.ArtifactBlob)
	if err != nil {
		return 0, false
	}
	if err := model.ValidateFeatures(s.builder.FeatureNames()); err != nil {
		return 0, false
	}
	return model.PredictScore(vec), true
}
