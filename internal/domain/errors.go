package domain

import "fmt"

// DataQualityError reports malformed or unusable input data for a symbol:
// missing closes, NaN contamination, unordered dates, empty series.
type DataQualityError struct {
	Symbol string
	Reason string
}

func (e *DataQualityError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("data quality: %s", e.Reason)
	}
	return fmt.Sprintf("data quality for %s: %s", e.Symbol, e.Reason)
}

// ConfigurationError reports invalid parameters: bad windows or thresholds,
// weight sets that do not sum to one, feature-schema mismatches.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration: %s", e.Reason)
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// ModelStateError reports a missing, corrupt, or incompatible persisted model.
type ModelStateError struct {
	ModelKey string
	Reason   string
}

func (e *ModelStateError) Error() string {
	if e.ModelKey == "" {
		return fmt.Sprintf("model state: %s", e.Reason)
	}
	return fmt.Sprintf("model %s: %s", e.ModelKey, e.Reason)
}

// InsufficientDataError reports a series too short for the requested
// computation. Needed carries the minimum row count, Got the actual.
type InsufficientDataError struct {
	Symbol string
	Op     string
	Needed int
	Got    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s %s: need %d rows, got %d", e.Symbol, e.Op, e.Needed, e.Got)
}
