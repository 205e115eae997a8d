package common

import "math"

const (
	ModelKeyForest  = "forest"
	ModelKeyIForest = "iforest"
)

// Labels for the ternary forward-return target. Index order is the class
// order used by every trained artifact.
var Classes = []string{"down", "flat", "up"}

const (
	ClassDown = 0
	ClassFlat = 1
	ClassUp   = 2
)

func ForestModelKey(symbol string) string {
	return ModelKeyForest + "_" + sanitizeSymbol(symbol)
}

func IForestModelKey(symbol string) string {
	return ModelKeyIForest + "_" + sanitizeSymbol(symbol)
}

func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round1 rounds to one decimal, the precision of every published score.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func sanitizeSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		ch := symbol[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return "unknown"
	}
	return string(out)
}
