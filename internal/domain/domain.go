package domain

import "time"

// DefaultSymbols is the stock watchlist the service scores when no explicit
// symbol list is configured.
var DefaultSymbols = []string{"005930", "000660", "373220"}

// PriceBar is one daily OHLCV row. Close is mandatory; the other price
// fields are optional and carry math.NaN() when the source omitted them.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type Action string

const (
	ActionStrongBuy Action = "STRONG_BUY"
	ActionBuy       Action = "BUY"
	ActionHold      Action = "HOLD"
	ActionSell      Action = "SELL"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionStrongBuy, ActionBuy, ActionHold, ActionSell:
		return true
	default:
		return false
	}
}

type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// MilestoneHit records one elapsed-day milestone that fired during scoring.
type MilestoneHit struct {
	Day    int    `json:"day"`
	Weight int    `json:"weight"`
	Tag    string `json:"tag"`
}

// InflectionSignal is the output of the milestone scorer. Strength is the
// clamped sum of the triggered milestone weights; immutable once produced.
type InflectionSignal struct {
	Symbol      string         `json:"symbol"`
	AsOfDate    time.Time      `json:"as_of_date"`
	AnchorDate  time.Time      `json:"anchor_date"`
	ElapsedDays int            `json:"elapsed_days"`
	Strength    int            `json:"strength"`
	Triggered   []MilestoneHit `json:"triggered_milestones"`
}

func (s InflectionSignal) TriggeredDays() []int {
	days := make([]int, len(s.Triggered))
	for i, hit := range s.Triggered {
		days[i] = hit.Day
	}
	return days
}

// CombinedSignal is the fused recommendation for one symbol at one point in
// time. Field names and value ranges are a compatibility contract with the
// downstream execution system; records are never mutated after creation.
type CombinedSignal struct {
	ID              int64      `json:"id,omitempty"`
	Symbol          string     `json:"symbol"`
	MLScore         float64    `json:"ml_score"`
	InflectionScore float64    `json:"inflection_score"`
	CombinedScore   float64    `json:"combined_score"`
	Action          Action     `json:"action"`
	Confidence      Confidence `json:"confidence"`
	Timestamp       time.Time  `json:"timestamp"`
	Details         string     `json:"details,omitempty"`
}

type SignalFilter struct {
	Symbol string
	Action Action
	Limit  int
}

// ModelVersion is one persisted training run: an opaque artifact blob plus
// the metadata the registry needs to version and promote it.
type ModelVersion struct {
	ModelKey        string
	Version         int
	SchemaVersion   int
	TrainedAt       time.Time
	SampleCount     int
	TestCount       int
	MetricsJSON     string
	HyperparamsJSON string
	ArtifactFormat  string
	ArtifactBlob    []byte
	IsActive        bool
}
