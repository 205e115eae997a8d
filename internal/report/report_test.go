package report

import (
	"strings"
	"testing"
	"time"

	"stock-signals/internal/ml/training"
)

func TestRenderContainsAllSections(t *testing.T) {
	result := training.Result{
		Symbol:      "005930",
		ModelKey:    "forest_005930",
		Version:     3,
		SampleCount: 240,
		TestCount:   48,
		Promoted:    true,
		Metrics: training.Metrics{
			Accuracy: 0.625,
			PerClass: []training.ClassMetrics{
				{Class: "down", Precision: 0.6, Recall: 0.5, F1: 0.545, Support: 16},
				{Class: "flat", Precision: 0.5, Recall: 0.4, F1: 0.444, Support: 10},
				{Class: "up", Precision: 0.7, Recall: 0.8, F1: 0.747, Support: 22},
			},
			Confusion: [][]int{{8, 4, 4}, {2, 4, 4}, {2, 2, 18}},
			TestCount: 48,
		},
		FeatureNames: []string{"rsi_14", "macd"},
		Importances:  []float64{0.3, 0.7},
	}

	text := Render(result, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	for _, want := range []string{
		"MODEL PERFORMANCE REPORT",
		"symbol:    005930",
		"forest_005930 v3",
		"accuracy: 0.625",
		"CONFUSION MATRIX",
		"FEATURE IMPORTANCES",
		"macd",
		"rsi_14",
		"2025-03-01 09:00:00",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}

	// importances ordered by weight
	if strings.Index(text, "macd") > strings.Index(text, "rsi_14") {
		t.Fatal("expected macd (0.7) listed before rsi_14 (0.3)")
	}
}
