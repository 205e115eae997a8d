package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"stock-signals/internal/domain"
	"stock-signals/internal/indicator"
	"stock-signals/internal/ml/common"
	"stock-signals/internal/ml/features"
	"stock-signals/internal/ml/models/forest"
	"stock-signals/internal/ml/models/iforest"

	"go.opentelemetry.io/otel/trace"
)

type BarStore interface {
	GetBars(ctx context.Context, symbol string, limit int) ([]domain.PriceBar, error)
}

type ModelRegistry interface {
	NextVersion(ctx context.Context, modelKey string) (int, error)
	InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error)
	GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error)
	ActivateModel(ctx context.Context, modelKey string, version int) error
}

type Config struct {
	HistoryBars     int
	MinTrainRows    int
	TestSplit       float64
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	Seed            int64
	EnableAnomaly   bool
	IForestTrees    int
	IForestSamples  int
}

type Service struct {
	tracer   trace.Tracer
	bars     BarStore
	registry ModelRegistry
	engine   *indicator.Engine
	builder  *features.Builder
	cfg      Config
}

// ClassMetrics is the held-out precision/recall/F1 for one label class.
type ClassMetrics struct {
	Class     string  `json:"class"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

type Metrics struct {
	Accuracy  float64        `json:"accuracy"`
	PerClass  []ClassMetrics `json:"per_class"`
	Confusion [][]int        `json:"confusion"`
	TestCount int            `json:"n_test"`
}

type Result struct {
	Symbol       string
	ModelKey     string
	Version      int
	SampleCount  int
	TestCount    int
	Metrics      Metrics
	FeatureNames []string
	Importances  []float64
	Promoted     bool
	PromoteError error
	AnomalyKey   string
}

func NewService(
	tracer trace.Tracer,
	bars BarStore,
	registry ModelRegistry,
	engine *indicator.Engine,
	builder *features.Builder,
	cfg Config,
) *Service {
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 400
	}
	if cfg.MinTrainRows <= 0 {
		cfg.MinTrainRows = 120
	}
	if cfg.TestSplit <= 0 || cfg.TestSplit >= 1 {
		cfg.TestSplit = 0.2
	}
	if cfg.Trees <= 0 {
		cfg.Trees = forest.DefaultTrainOptions().NumTrees
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = forest.DefaultTrainOptions().MaxDepth
	}
	if cfg.MinSamplesSplit <= 0 {
		cfg.MinSamplesSplit = forest.DefaultTrainOptions().MinSamplesSplit
	}
	if cfg.Seed == 0 {
		cfg.Seed = forest.DefaultTrainOptions().Seed
	}
	if cfg.IForestTrees <= 0 {
		cfg.IForestTrees = iforest.DefaultTrainOptions().NumTrees
	}
	if cfg.IForestSamples <= 0 {
		cfg.IForestSamples = iforest.DefaultTrainOptions().SampleSize
	}
	return &Service{tracer: tracer, bars: bars, registry: registry, engine: engine, builder: builder, cfg: cfg}
}

// TrainAll trains every symbol independently. A failing symbol lands in the
// error map and never aborts its siblings.
func (s *Service) TrainAll(ctx context.Context, symbols []string, now time.Time) (map[string]Result, map[string]error) {
	_, span := s.tracer.Start(ctx, "ml-training.train-all")
	defer span.End()

	results := make(map[string]Result, len(symbols))
	failures := make(map[string]error)
	for _, symbol := range symbols {
		result, err := s.TrainSymbol(ctx, symbol, now)
		if err != nil {
			failures[symbol] = err
			continue
		}
		results[symbol] = result
	}
	return results, failures
}

func (s *Service) TrainSymbol(ctx context.Context, symbol string, now time.Time) (Result, error) {
	_, span := s.tracer.Start(ctx, "ml-training.train-symbol")
	defer span.End()

	bars, err := s.bars.GetBars(ctx, symbol, s.cfg.HistoryBars)
	if err != nil {
		return Result{}, fmt.Errorf("load bars for %s: %w", symbol, err)
	}

	frame, err := s.engine.Compute(symbol, bars)
	if err != nil {
		return Result{}, err
	}
	ds, err := s.builder.Build(frame)
	if err != nil {
		return Result{}, err
	}
	if ds.Len() < s.cfg.MinTrainRows {
		return Result{}, &domain.InsufficientDataError{Symbol: symbol, Op: "training", Needed: s.cfg.MinTrainRows, Got: ds.Len()}
	}

	trainX, trainY, testX, testY := seededSplit(ds.X, ds.Y, s.cfg.TestSplit, s.cfg.Seed)

	opts := forest.TrainOptions{
		NumTrees:        s.cfg.Trees,
		MaxDepth:        s.cfg.MaxDepth,
		MinSamplesSplit: s.cfg.MinSamplesSplit,
		Seed:            s.cfg.Seed,
	}
	modelKey := common.ForestModelKey(symbol)
	trainedFrom := ds.Dates[0]
	trainedTo := ds.Dates[len(ds.Dates)-1]

	model, err := forest.Train(trainX, trainY, ds.FeatureNames, ds.Classes, modelKey, symbol, trainedFrom, trainedTo, opts)
	if err != nil {
		return Result{}, fmt.Errorf("train %s: %w", modelKey, err)
	}
	blob, err := model.MarshalBinary()
	if err != nil {
		return Result{}, fmt.Errorf("marshal %s: %w", modelKey, err)
	}

	metrics, err := evaluate(model, testX, testY, ds.Classes)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Symbol:       symbol,
		ModelKey:     modelKey,
		SampleCount:  ds.Len(),
		TestCount:    len(testY),
		Metrics:      metrics,
		FeatureNames: model.FeatureNames(),
		Importances:  model.Importances(),
	}

	version, err := s.persist(ctx, modelKey, blob, "json/forest-v1", metrics, ds.Len(), len(testY), now, opts)
	if err != nil {
		return Result{}, err
	}
	result.Version = version

	promote, promoteErr := s.shouldPromote(ctx, modelKey, metrics.Accuracy)
	if promoteErr != nil {
		result.PromoteError = promoteErr
	} else if promote {
		if err := s.registry.ActivateModel(ctx, modelKey, version); err != nil {
			result.PromoteError = err
		} else {
			result.Promoted = true
		}
	}

	if s.cfg.EnableAnomaly {
		anomalyKey, err := s.trainAnomaly(ctx, symbol, ds, now)
		if err != nil {
			// the annotator is best-effort; the classifier result stands
			result.PromoteError = err
		} else {
			result.AnomalyKey = anomalyKey
		}
	}

	return result, nil
}

func (s *Service) trainAnomaly(ctx context.Context, symbol string, ds *features.Dataset, now time.Time) (string, error) {
	modelKey := common.IForestModelKey(symbol)
	model, err := iforest.Train(ds.X, ds.FeatureNames, modelKey, symbol,
		ds.Dates[0], ds.Dates[len(ds.Dates)-1],
		iforest.TrainOptions{NumTrees: s.cfg.IForestTrees, SampleSize: s.cfg.IForestSamples})
	if err != nil {
		return "", fmt.Errorf("train %s: %w", modelKey, err)
	}
	blob, err := model.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", modelKey, err)
	}

	version, err := s.registry.NextVersion(ctx, modelKey)
	if err != nil {
		return "", err
	}
	hyperJSON, _ := json.Marshal(map[string]any{
		"num_trees":   s.cfg.IForestTrees,
		"sample_size": s.cfg.IForestSamples,
	})
	if _, err := s.registry.InsertModelVersion(ctx, domain.ModelVersion{
		ModelKey:        modelKey,
		Version:         version,
		SchemaVersion:   forest.SchemaVersion,
		TrainedAt:       now.UTC(),
		SampleCount:     ds.Len(),
		MetricsJSON:     "{}",
		HyperparamsJSON: string(hyperJSON),
		ArtifactFormat:  "json/iforest-v1",
		ArtifactBlob:    blob,
	}); err != nil {
		return "", err
	}
	// the annotator always tracks the freshest data
	if err := s.registry.ActivateModel(ctx, modelKey, version); err != nil {
		return "", err
	}
	return modelKey, nil
}

func (s *Service) persist(
	ctx context.Context,
	modelKey string,
	artifact []byte,
	artifactFormat string,
	metrics Metrics,
	sampleCount, testCount int,
	now time.Time,
	opts forest.TrainOptions,
) (int, error) {
	version, err := s.registry.NextVersion(ctx, modelKey)
	if err != nil {
		return 0, err
	}
	metricJSON, _ := json.Marshal(metrics)
	hyperJSON, _ := json.Marshal(opts)

	if _, err := s.registry.InsertModelVersion(ctx, domain.ModelVersion{
		ModelKey:        modelKey,
		Version:         version,
		SchemaVersion:   forest.SchemaVersion,
		TrainedAt:       now.UTC(),
		SampleCount:     sampleCount,
		TestCount:       testCount,
		MetricsJSON:     string(metricJSON),
		HyperparamsJSON: string(hyperJSON),
		ArtifactFormat:  artifactFormat,
		ArtifactBlob:    artifact,
	}); err != nil {
		return 0, err
	}
	return version, nil
}

// shouldPromote activates the new version when it is the first for the key or
// at least matches the active accuracy; a stale active model never blocks an
// equally accurate retrain on fresher data.
func (s *Service) shouldPromote(ctx context.Context, modelKey string, newAccuracy float64) (bool, error) {
	active, err := s.registry.GetActiveModel(ctx, modelKey)
	if err != nil {
		var stateErr *domain.ModelStateError
		if errors.As(err, &stateErr) {
			return true, nil
		}
		return false, err
	}
	if active == nil {
		return true, nil
	}
	activeAccuracy, ok := metricValue(active.MetricsJSON, "accuracy")
	if !ok {
		return true, nil
	}
	return newAccuracy >= activeAccuracy, nil
}

// seededSplit shuffles row indices with a dedicated source so the same seed
// and data always produce the same partitions.
func seededSplit(x [][]float64, y []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	n := len(x)
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	testN := int(math.Round(float64(n) * testRatio))
	if testN < 1 {
		testN = 1
	}
	if testN >= n {
		testN = n - 1
	}

	for i, idx := range perm {
		if i < testN {
			testX = append(testX, x[idx])
			testY = append(testY, y[idx])
		} else {
			trainX = append(trainX, x[idx])
			trainY = append(trainY, y[idx])
		}
	}
	return trainX, trainY, testX, testY
}

func evaluate(model *forest.Model, testX [][]float64, testY []int, classes []string) (Metrics, error) {
	k := len(classes)
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}

	correct := 0
	for i := range testX {
		pred, err := model.PredictClass(testX[i])
		if err != nil {
			return Metrics{}, err
		}
		confusion[testY[i]][pred]++
		if pred == testY[i] {
			correct++
		}
	}

	metrics := Metrics{
		Confusion: confusion,
		TestCount: len(testY),
	}
	if len(testY) > 0 {
		metrics.Accuracy = float64(correct) / float64(len(testY))
	}

	for c := 0; c < k; c++ {
		tp := confusion[c][c]
		fp, fn, support := 0, 0, 0
		for other := 0; other < k; other++ {
			support += confusion[c][other]
			if other == c {
				continue
			}
			fp += confusion[other][c]
			fn += confusion[c][other]
		}
		cm := ClassMetrics{Class: classes[c], Support: support}
		if tp+fp > 0 {
			cm.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			cm.Recall = float64(tp) / float64(tp+fn)
		}
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		metrics.PerClass = append(metrics.PerClass, cm)
	}

	return metrics, nil
}

func metricValue(metricsJSON, key string) (float64, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(metricsJSON), &m); err != nil {
		return 0, false
	}
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}
