package iforest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	goiforest "github.com/narumiruna/go-iforest/pkg/iforest"

	"stock-signals/internal/domain"
)

// The anomaly annotator trains on the same daily feature matrix as the
// classifier and scores how unusual the latest market state is. Scores are
// diagnostics only and never feed the fused recommendation.

// SchemaVersion guards the artifact layout. Bump on any change to the
// normalizer encoding or metadata fields.
const SchemaVersion = 1

type TrainOptions struct {
	NumTrees   int
	SampleSize int
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		NumTrees:   100,
		SampleSize: 256,
	}
}

// Artifact carries the fitted forest plus the per-feature z-score normalizer.
// Feature names are stored in training order so inference can refuse a
// reordered feature set.
type Artifact struct {
	SchemaVersion int                   `json:"schema_version"`
	ModelKey      string                `json:"model_key"`
	Symbol        string                `json:"symbol"`
	FeatureNames  []string              `json:"feature_names"`
	Means         []float64             `json:"means"`
	Stds          []float64             `json:"stds"`
	Options       goiforest.Options     `json:"options"`
	Trees         []*goiforest.TreeNode `json:"trees"`
	TrainedFrom   time.Time             `json:"trained_from"`
	TrainedTo     time.Time             `json:"trained_to"`
}

type Model struct {
	artifact Artifact
	forest   *goiforest.IsolationForest
}

func Train(
	samples [][]float64,
	featureNames []string,
	modelKey string,
	symbol string,
	trainedFrom, trainedTo time.Time,
	opts TrainOptions,
) (*Model, error) {
	if len(samples) == 0 {
		return nil, errors.New("empty training dataset")
	}
	if len(samples[0]) == 0 {
		return nil, errors.New("empty feature vectors")
	}
	if len(featureNames) != len(samples[0]) {
		return nil, errors.New("feature names must match the vector width")
	}
	if opts.NumTrees <= 0 {
		opts.NumTrees = DefaultTrainOptions().NumTrees
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultTrainOptions().SampleSize
	}

	means, stds := fitNormalizer(samples)
	normalized := normalizeBatch(samples, means, stds)

	options := goiforest.Options{
		DetectionType: goiforest.DetectionTypeThreshold,
		Threshold:     0.6,
		NumTrees:      opts.NumTrees,
		SampleSize:    opts.SampleSize,
	}
	forest := goiforest.NewWithOptions(options)
	forest.Fit(normalized)

	a := Artifact{
		SchemaVersion: SchemaVersion,
		ModelKey:      modelKey,
		Symbol:        symbol,
		FeatureNames:  append([]string(nil), featureNames...),
		Means:         means,
		Stds:          stds,
		Options:       *forest.Options,
		Trees:         forest.Trees,
		TrainedFrom:   trainedFrom.UTC(),
		TrainedTo:     trainedTo.UTC(),
	}
	return &Model{artifact: a, forest: forest}, nil
}

// ValidateFeatures enforces the trained feature ordering exactly, the same
// contract the classifier artifact carries. Reordered or missing features
// fail instead of being silently aligned.
func (m *Model) ValidateFeatures(names []string) error {
	if len(names) != len(m.artifact.FeatureNames) {
		return &domain.ConfigurationError{
			Field:  "feature_names",
			Reason: fmt.Sprintf("annotator trained on %d features, input has %d", len(m.artifact.FeatureNames), len(names)),
		}
	}
	for i, name := range names {
		if name != m.artifact.FeatureNames[i] {
			return &domain.ConfigurationError{
				Field:  "feature_names",
				Reason: fmt.Sprintf("annotator expects %q at position %d, got %q", m.artifact.FeatureNames[i], i, name),
			}
		}
	}
	return nil
}

// PredictScore returns the anomaly score in [0,1] for one feature vector.
// Out-of-range and non-finite scores clamp rather than fail: the annotator
// must never break the scoring pipeline.
func (m *Model) PredictScore(sample []float64) float64 {
	if m == nil || m.forest == nil || len(sample) != len(m.artifact.Means) {
		return 0
	}
	normalized := normalize(sample, m.artifact.Means, m.artifact.Stds)
	scores := m.forest.Score([][]float64{normalized})
	if len(scores) == 0 {
		return 0
	}
	score := scores[0]
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a Artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if a.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported artifact schema %d", a.SchemaVersion)
	}
	if len(a.Means) == 0 || len(a.Means) != len(a.Stds) || len(a.Trees) == 0 {
		return nil, errors.New("invalid artifact")
	}
	if len(a.FeatureNames) != len(a.Means) {
		return nil, errors.New("invalid artifact")
	}
	forest := goiforest.NewWithOptions(a.Options)
	forest.Trees = a.Trees
	return &Model{artifact: a, forest: forest}, nil
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.artifact.FeatureNames))
	copy(out, m.artifact.FeatureNames)
	return out
}

// fitNormalizer computes per-column mean and standard deviation. A constant
// column gets std 1 so its z-score collapses to zero instead of dividing by
// zero.
func fitNormalizer(samples [][]float64) ([]float64, []float64) {
	featureCount := len(samples[0])
	means := make([]float64, featureCount)
	stds := make([]float64, featureCount)
	for j := 0; j < featureCount; j++ {
		for i := range samples {
			means[j] += samples[i][j]
		}
		means[j] /= float64(len(samples))
		for i := range samples {
			d := samples[i][j] - means[j]
			stds[j] += d * d
		}
		stds[j] = math.Sqrt(stds[j] / float64(len(samples)))
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

func normalizeBatch(samples [][]float64, means, stds []float64) [][]float64 {
	out := make([][]float64, len(samples))
	for i := range samples {
		out[i] = normalize(samples[i], means, stds)
	}
	return out
}

func normalize(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / stds[i]
	}
	return out
}
