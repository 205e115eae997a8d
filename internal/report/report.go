// Package report renders the training diagnostics as a plain-text artifact
// for human review. Nothing downstream parses it.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stock-signals/internal/ml/training"
)

const rule = "============================================================"

// Render formats one training result as the performance report text.
func Render(result training.Result, generatedAt time.Time) string {
	var sb strings.Builder

	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, "        MODEL PERFORMANCE REPORT")
	fmt.Fprintln(&sb, rule)
	fmt.Fprintf(&sb, "generated: %s\n", generatedAt.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "symbol:    %s\n", result.Symbol)
	fmt.Fprintf(&sb, "model:     %s v%d\n", result.ModelKey, result.Version)
	fmt.Fprintf(&sb, "samples:   %d (held out: %d)\n", result.SampleCount, result.TestCount)
	fmt.Fprintf(&sb, "promoted:  %t\n", result.Promoted)
	fmt.Fprintln(&sb)

	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, " CLASSIFICATION PERFORMANCE")
	fmt.Fprintln(&sb, rule)
	fmt.Fprintf(&sb, "accuracy: %.3f\n", result.Metrics.Accuracy)
	fmt.Fprintln(&sb)
	fmt.Fprintf(&sb, "%-10s %10s %10s %10s %10s\n", "class", "precision", "recall", "f1", "support")
	for _, cm := range result.Metrics.PerClass {
		fmt.Fprintf(&sb, "%-10s %10.3f %10.3f %10.3f %10d\n", cm.Class, cm.Precision, cm.Recall, cm.F1, cm.Support)
	}
	fmt.Fprintln(&sb)

	fmt.Fprintln(&sb, rule)
	fmt.Fprintln(&sb, " CONFUSION MATRIX (rows: actual, cols: predicted)")
	fmt.Fprintln(&sb, rule)
	for _, row := range result.Metrics.Confusion {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%6d", v)
		}
		fmt.Fprintf(&sb, "  [%s]\n", strings.Join(cells, " "))
	}
	fmt.Fprintln(&sb)

	if len(result.Importances) > 0 {
		fmt.Fprintln(&sb, rule)
		fmt.Fprintln(&sb, " FEATURE IMPORTANCES")
		fmt.Fprintln(&sb, rule)
		type pair struct {
			name  string
			value float64
		}
		pairs := make([]pair, 0, len(result.Importances))
		for i, v := range result.Importances {
			name := fmt.Sprintf("f%d", i)
			if i < len(result.FeatureNames) {
				name = result.FeatureNames[i]
			}
			pairs = append(pairs, pair{name: name, value: v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].value != pairs[j].value {
				return pairs[i].value > pairs[j].value
			}
			return pairs[i].name < pairs[j].name
		})
		for _, p := range pairs {
			fmt.Fprintf(&sb, "  %-15s: %.4f\n", p.name, p.value)
		}
		fmt.Fprintln(&sb)
	}

	fmt.Fprintln(&sb, rule)
	return sb.String()
}
