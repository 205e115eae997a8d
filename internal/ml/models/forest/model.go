package forest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"stock-signals/internal/domain"
)

// SchemaVersion guards the artifact layout. Bump on any change to the tree
// encoding or metadata fields.
const SchemaVersion = 1

type TrainOptions struct {
	NumTrees        int   `json:"num_trees"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	Seed            int64 `json:"seed"`
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		NumTrees:        100,
		MaxDepth:        10,
		MinSamplesSplit: 5,
		Seed:            42,
	}
}

// treeNode is one CART node. Leaves carry the class distribution and have no
// children; internal nodes route on Feature <= Threshold to the left.
type treeNode struct {
	Feature   int       `json:"f,omitempty"`
	Threshold float64   `json:"t,omitempty"`
	Left      *treeNode `json:"l,omitempty"`
	Right     *treeNode `json:"r,omitempty"`
	Probs     []float64 `json:"p,omitempty"`
}

func (n *treeNode) leaf() bool { return n.Left == nil && n.Right == nil }

type Artifact struct {
	SchemaVersion int          `json:"schema_version"`
	ModelKey      string       `json:"model_key"`
	Symbol        string       `json:"symbol"`
	FeatureNames  []string     `json:"feature_names"`
	Classes       []string     `json:"classes"`
	Options       TrainOptions `json:"options"`
	Trees         []*treeNode  `json:"trees"`
	Importances   []float64    `json:"importances"`
	TrainedFrom   time.Time    `json:"trained_from"`
	TrainedTo     time.Time    `json:"trained_to"`
}

type Model struct {
	artifact Artifact
}

// Train fits a seeded random forest. Identical inputs and options always
// produce an identical artifact: every random draw comes from per-tree
// sources derived from the configured seed.
func Train(
	x [][]float64,
	y []int,
	featureNames []string,
	classes []string,
	modelKey string,
	symbol string,
	trainedFrom, trainedTo time.Time,
	opts TrainOptions,
) (*Model, error) {
	if len(x) == 0 || len(y) != len(x) {
		return nil, errors.New("empty or misaligned training dataset")
	}
	if len(featureNames) == 0 || len(featureNames) != len(x[0]) {
		return nil, errors.New("feature names must match the vector width")
	}
	if len(classes) == 0 {
		return nil, errors.New("empty class list")
	}
	for i, label := range y {
		if label < 0 || label >= len(classes) {
			return nil, fmt.Errorf("label %d at row %d outside class range", label, i)
		}
	}
	if opts.NumTrees <= 0 {
		opts.NumTrees = DefaultTrainOptions().NumTrees
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultTrainOptions().MaxDepth
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}

	numFeatures := len(featureNames)
	subsetSize := int(math.Ceil(math.Sqrt(float64(numFeatures))))
	importances := make([]float64, numFeatures)
	trees := make([]*treeNode, opts.NumTrees)

	for t := 0; t < opts.NumTrees; t++ {
		rng := rand.New(rand.NewSource(opts.Seed + int64(t)))
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = rng.Intn(len(x))
		}
		builder := &treeBuilder{
			x:           x,
			y:           y,
			numClasses:  len(classes),
			maxDepth:    opts.MaxDepth,
			minSplit:    opts.MinSamplesSplit,
			subsetSize:  subsetSize,
			numFeatures: numFeatures,
			rng:         rng,
			importances: importances,
			total:       len(sample),
		}
		trees[t] = builder.build(sample, 0)
	}

	normalizeImportances(importances)

	a := Artifact{
		SchemaVersion: SchemaVersion,
		ModelKey:      modelKey,
		Symbol:        symbol,
		FeatureNames:  append([]string(nil), featureNames...),
		Classes:       append([]string(nil), classes...),
		Options:       opts,
		Trees:         trees,
		Importances:   importances,
		TrainedFrom:   trainedFrom.UTC(),
		TrainedTo:     trainedTo.UTC(),
	}
	return &Model{artifact: a}, nil
}

// PredictProba averages the leaf class distributions across all trees.
func (m *Model) PredictProba(sample []float64) ([]float64, error) {
	if m == nil || len(m.artifact.Trees) == 0 {
		return nil, errors.New("untrained model")
	}
	if len(sample) != len(m.artifact.FeatureNames) {
		return nil, fmt.Errorf("expected %d features, got %d", len(m.artifact.FeatureNames), len(sample))
	}

	probs := make([]float64, len(m.artifact.Classes))
	for _, tree := range m.artifact.Trees {
		node := tree
		for !node.leaf() {
			if sample[node.Feature] <= node.Threshold {
				node = node.Left
			} else {
				node = node.Right
			}
		}
		for c, p := range node.Probs {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(m.artifact.Trees))
	}
	return probs, nil
}

// PredictClass returns the argmax class index of PredictProba.
func (m *Model) PredictClass(sample []float64) (int, error) {
	probs, err := m.PredictProba(sample)
	if err != nil {
		return 0, err
	}
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return best, nil
}

// ValidateFeatures enforces the trained feature ordering exactly. Reordered
// or missing features fail instead of being silently aligned.
func (m *Model) ValidateFeatures(names []string) error {
	if len(names) != len(m.artifact.FeatureNames) {
		return &domain.ConfigurationError{
			Field:  "feature_names",
			Reason: fmt.Sprintf("model trained on %d features, input has %d", len(m.artifact.FeatureNames), len(names)),
		}
	}
	for i, name := range names {
		if name != m.artifact.FeatureNames[i] {
			return &domain.ConfigurationError{
				Field:  "feature_names",
				Reason: fmt.Sprintf("position %d: model trained on %q, input has %q", i, m.artifact.FeatureNames[i], name),
			}
		}
	}
	return nil
}

func (m *Model) FeatureNames() []string {
	out := make([]string, len(m.artifact.FeatureNames))
	copy(out, m.artifact.FeatureNames)
	return out
}

func (m *Model) Classes() []string {
	out := make([]string, len(m.artifact.Classes))
	copy(out, m.artifact.Classes)
	return out
}

// Importances reports the normalized impurity-decrease share per feature.
// The values sum to 1.0 whenever any split occurred during training.
func (m *Model) Importances() []float64 {
	out := make([]float64, len(m.artifact.Importances))
	copy(out, m.artifact.Importances)
	return out
}

func (m *Model) Options() TrainOptions { return m.artifact.Options }

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
	if len(a.Trees) == 0 || len(a.FeatureNames) == 0 || len(a.Classes) == 0 {
		return nil, errors.New("invalid artifact")
	}
	return &Model{artifact: a}, nil
}

type treeBuilder struct {
	x           [][]float64
	y           []int
	numClasses  int
	maxDepth    int
	minSplit    int
	subsetSize  int
	numFeatures int
	rng         *rand.Rand
	importances []float64
	total       int
}

func (b *treeBuilder) build(indices []int, depth int) *treeNode {
	counts := b.classCounts(indices)
	if depth >= b.maxDepth || len(indices) < b.minSplit || pure(counts) {
		return b.leafNode(counts, len(indices))
	}

	feature, threshold, gain, left, right := b.bestSplit(indices, counts)
	if feature < 0 || len(left) == 0 || len(right) == 0 {
		return b.leafNode(counts, len(indices))
	}

	b.importances[feature] += gain * float64(len(indices)) / float64(b.total)

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.build(left, depth+1),
		Right:     b.build(right, depth+1),
	}
}

func (b *treeBuilder) leafNode(counts []int, n int) *treeNode {
	probs := make([]float64, b.numClasses)
	if n > 0 {
		for c, count := range counts {
			probs[c] = float64(count) / float64(n)
		}
	}
	return &treeNode{Probs: probs}
}

// bestSplit scans a seeded sqrt-sized feature subset in ascending feature
// order so identical seeds always pick identical splits.
func (b *treeBuilder) bestSplit(indices []int, counts []int) (int, float64, float64, []int, []int) {
	subset := b.rng.Perm(b.numFeatures)[:b.subsetSize]
	sort.Ints(subset)

	parentGini := gini(counts, len(indices))
	bestFeature := -1
	var bestThreshold, bestGain float64
	n := float64(len(indices))

	sorted := make([]int, len(indices))
	for _, f := range subset {
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			if b.x[sorted[i]][f] != b.x[sorted[j]][f] {
				return b.x[sorted[i]][f] < b.x[sorted[j]][f]
			}
			return sorted[i] < sorted[j]
		})

		leftCounts := make([]int, b.numClasses)
		rightCounts := append([]int(nil), counts...)
		for i := 0; i < len(sorted)-1; i++ {
			label := b.y[sorted[i]]
			leftCounts[label]++
			rightCounts[label]--

			curr := b.x[sorted[i]][f]
			next := b.x[sorted[i+1]][f]
			if curr == next {
				continue
			}

			leftN := i + 1
			rightN := len(sorted) - leftN
			weighted := (float64(leftN)*gini(leftCounts, leftN) + float64(rightN)*gini(rightCounts, rightN)) / n
			gain := parentGini - weighted
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (curr + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return -1, 0, 0, nil, nil
	}

	var left, right []int
	for _, idx := range indices {
		if b.x[idx][bestFeature] <= bestThreshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return bestFeature, bestThreshold, bestGain, left, right
}

func (b *treeBuilder) classCounts(indices []int) []int {
	counts := make([]int, b.numClasses)
	for _, idx := range indices {
		counts[b.y[idx]]++
	}
	return counts
}

func pure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func normalizeImportances(importances []float64) {
	var sum float64
	for _, v := range importances {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range importances {
		importances[i] /= sum
	}
}
