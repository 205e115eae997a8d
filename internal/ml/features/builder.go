package features

import (
	"fmt"
	"math"
	"time"

	"stock-signals/internal/domain"
	"stock-signals/internal/indicator"
	"stock-signals/internal/ml/common"
)

// DefaultFeatureNames is the trained feature ordering. The artifact embeds
// this list and inference validates against it, so order changes require a
// retrain.
var DefaultFeatureNames = []string{
	"sma_20",
	"sma_60",
	"rsi_14",
	"macd",
	"macd_hist",
	"roc_5",
	"roc_20",
	"bb_position",
}

const (
	DefaultHorizon       = 1
	DefaultFlatTolerance = 0.005
)

// Config selects the feature columns and labeling scheme. FlatTolerance is a
// fractional band around zero forward return treated as flat; with zero
// tolerance any nonzero move labels directionally and only an exactly flat
// close keeps the flat label.
type Config struct {
	FeatureNames  []string
	Horizon       int
	FlatTolerance float64
}

func (c Config) withDefaults() Config {
	if len(c.FeatureNames) == 0 {
		c.FeatureNames = DefaultFeatureNames
	}
	if c.Horizon <= 0 {
		c.Horizon = DefaultHorizon
	}
	if c.FlatTolerance < 0 {
		c.FlatTolerance = 0
	}
	return c
}

// Dataset is a row-aligned feature matrix with ternary class labels.
type Dataset struct {
	Symbol       string
	FeatureNames []string
	Classes      []string
	X            [][]float64
	Y            []int
	Dates        []time.Time
}

func (d *Dataset) Len() int { return len(d.X) }

type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

func (b *Builder) FeatureNames() []string { return b.cfg.FeatureNames }

// Build assembles the labeled training set from an indicator frame. Rows with
// any undefined feature or label are dropped; the label compares the close
// Horizon rows ahead against the current close within the flat band.
func (b *Builder) Build(frame *indicator.Frame) (*Dataset, error) {
	columns, err := b.columnSet(frame)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Symbol:       frame.Symbol,
		FeatureNames: append([]string(nil), b.cfg.FeatureNames...),
		Classes:      common.Classes,
	}

	for row := 0; row+b.cfg.Horizon < frame.Len(); row++ {
		vec, ok := rowVector(columns, row)
		if !ok {
			continue
		}
		label, ok := b.label(frame.Closes[row], frame.Closes[row+b.cfg.Horizon])
		if !ok {
			continue
		}
		ds.X = append(ds.X, vec)
		ds.Y = append(ds.Y, label)
		ds.Dates = append(ds.Dates, frame.Dates[row])
	}

	if len(ds.X) == 0 {
		return nil, &domain.DataQualityError{Symbol: frame.Symbol, Reason: "no rows survive feature warm-up and labeling"}
	}
	return ds, nil
}

// LatestVector extracts the feature vector for the final frame row, for
// inference. Fails when any configured feature is still in warm-up there.
func (b *Builder) LatestVector(frame *indicator.Frame) ([]float64, error) {
	if frame.Len() == 0 {
		return nil, &domain.DataQualityError{Symbol: frame.Symbol, Reason: "empty indicator frame"}
	}
	columns, err := b.columnSet(frame)
	if err != nil {
		return nil, err
	}
	vec, ok := rowVector(columns, frame.Len()-1)
	if !ok {
		return nil, &domain.DataQualityError{Symbol: frame.Symbol, Reason: "latest row has undefined features"}
	}
	return vec, nil
}

// columnSet resolves the configured feature names against the frame. The
// error for an unknown name lists the frame's columns in computation order.
func (b *Builder) columnSet(frame *indicator.Frame) ([][]float64, error) {
	columns := make([][]float64, len(b.cfg.FeatureNames))
	for i, name := range b.cfg.FeatureNames {
		col := frame.Column(name)
		if col == nil {
			return nil, &domain.ConfigurationError{
				Field:  "feature_names",
				Reason: fmt.Sprintf("unknown indicator column %q, frame has %v", name, frame.ColumnNames()),
			}
		}
		columns[i] = col
	}
	return columns, nil
}

func (b *Builder) label(current, future float64) (int, bool) {
	if current == 0 || math.IsNaN(current) || math.IsNaN(future) {
		return 0, false
	}
	ret := future/current - 1
	switch {
	case ret > b.cfg.FlatTolerance:
		return common.ClassUp, true
	case ret < -b.cfg.FlatTolerance:
		return common.ClassDown, true
	default:
		return common.ClassFlat, true
	}
}

func rowVector(columns [][]float64, row int) ([]float64, bool) {
	vec := make([]float64, len(columns))
	for i, col := range columns {
		v := col[row]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
		vec[i] = v
	}
	return vec, true
}
