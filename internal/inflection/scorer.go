package inflection

import (
	"fmt"
	"math"
	"time"

	"stock-signals/internal/domain"
)

// Milestone is one entry of the elapsed-day table. Weight is signed: the
// longer reversal milestones carry positive weight, the exhaustion milestones
// past day 60 warn with negative weight.
type Milestone struct {
	Day    int
	Weight int
	Tag    string
}

// DefaultMilestones is the nine-point table. Weights are tuned so a single
// strong milestone moves the strength well clear of zero while the clamp at
// +-100 still binds when several trigger together.
var DefaultMilestones = []Milestone{
	{Day: 9, Weight: 10, Tag: "weak reversal"},
	{Day: 13, Weight: 15, Tag: "correction end"},
	{Day: 26, Weight: 25, Tag: "alignment entry"},
	{Day: 33, Weight: 25, Tag: "major advance"},
	{Day: 42, Weight: 30, Tag: "third wave"},
	{Day: 51, Weight: 40, Tag: "force majeure"},
	{Day: 65, Weight: -30, Tag: "trend reversal warning"},
	{Day: 77, Weight: -35, Tag: "long-cycle inflection"},
	{Day: 88, Weight: -45, Tag: "major top"},
}

// MilestoneStatus describes where the elapsed count sits relative to one
// table entry.
type MilestoneStatus struct {
	Day    int    `json:"day"`
	Status string `json:"status"` // approaching, active, passed
}

const (
	StatusApproaching = "approaching"
	StatusActive      = "active"
	StatusPassed      = "passed"

	defaultLowWindow = 20
	defaultLookback  = 88
)

// Config controls milestone matching and low anchoring. Zero values take
// defaults; Tolerance 0 means exact-day matching only.
type Config struct {
	Milestones []Milestone
	Tolerance  int
	LowWindow  int
	Lookback   int
}

func (c Config) withDefaults() Config {
	if len(c.Milestones) == 0 {
		c.Milestones = DefaultMilestones
	}
	if c.LowWindow <= 0 {
		c.LowWindow = defaultLowWindow
	}
	if c.Lookback <= 0 {
		c.Lookback = defaultLookback
	}
	return c
}

type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) (*Scorer, error) {
	cfg = cfg.withDefaults()
	if cfg.Tolerance < 0 {
		return nil, &domain.ConfigurationError{Field: "milestone_tolerance", Reason: "must be >= 0"}
	}
	seen := make(map[int]bool, len(cfg.Milestones))
	for _, m := range cfg.Milestones {
		if m.Day <= 0 {
			return nil, &domain.ConfigurationError{Field: "milestones", Reason: fmt.Sprintf("day %d must be positive", m.Day)}
		}
		if seen[m.Day] {
			return nil, &domain.ConfigurationError{Field: "milestones", Reason: fmt.Sprintf("duplicate day %d", m.Day)}
		}
		seen[m.Day] = true
	}
	return &Scorer{cfg: cfg}, nil
}

// ScoreElapsed evaluates the table for one elapsed trading-day count. Pure:
// the same (elapsed, table, tolerance) always yields the same strength and
// triggered set. Overlapping milestones sum their signed weights before the
// clamp.
func (s *Scorer) ScoreElapsed(symbol string, asOf, anchor time.Time, elapsed int) domain.InflectionSignal {
	sig := domain.InflectionSignal{
		Symbol:      symbol,
		AsOfDate:    asOf,
		AnchorDate:  anchor,
		ElapsedDays: elapsed,
	}

	total := 0
	for _, m := range s.cfg.Milestones {
		if elapsed < m.Day-s.cfg.Tolerance || elapsed > m.Day+s.cfg.Tolerance {
			continue
		}
		total += m.Weight
		sig.Triggered = append(sig.Triggered, domain.MilestoneHit{Day: m.Day, Weight: m.Weight, Tag: m.Tag})
	}
	if total > 100 {
		total = 100
	}
	if total < -100 {
		total = -100
	}
	sig.Strength = total
	return sig
}

// Score anchors the elapsed-day count on the most recent significant low in
// the lookback and evaluates the milestone table there. Bars must be in
// ascending date order.
func (s *Scorer) Score(symbol string, bars []domain.PriceBar) (domain.InflectionSignal, error) {
	if len(bars) == 0 {
		return domain.InflectionSignal{}, &domain.DataQualityError{Symbol: symbol, Reason: "empty price series"}
	}

	anchorIdx := s.anchorIndex(bars)
	asOf := bars[len(bars)-1].Date
	anchor := bars[anchorIdx].Date
	elapsed := len(bars) - 1 - anchorIdx
	return s.ScoreElapsed(symbol, asOf, anchor, elapsed), nil
}

// ScoreFromAnchor is Score with an explicit anchor date overriding low
// detection. The anchor must fall on a bar in the series.
func (s *Scorer) ScoreFromAnchor(symbol string, bars []domain.PriceBar, anchor time.Time) (domain.InflectionSignal, error) {
	if len(bars) == 0 {
		return domain.InflectionSignal{}, &domain.DataQualityError{Symbol: symbol, Reason: "empty price series"}
	}
	for i := len(bars) - 1; i >= 0; i-- {
		if bars[i].Date.Equal(anchor) {
			asOf := bars[len(bars)-1].Date
			return s.ScoreElapsed(symbol, asOf, anchor, len(bars)-1-i), nil
		}
	}
	return domain.InflectionSignal{}, &domain.DataQualityError{Symbol: symbol, Reason: fmt.Sprintf("anchor date %s not in series", anchor.Format("2006-01-02"))}
}

// Statuses reports approaching/active/passed for every table entry at the
// given elapsed count, for diagnostics output.
func (s *Scorer) Statuses(elapsed int) []MilestoneStatus {
	out := make([]MilestoneStatus, 0, len(s.cfg.Milestones))
	for _, m := range s.cfg.Milestones {
		status := StatusActive
		switch {
		case elapsed < m.Day-s.cfg.Tolerance:
			status = StatusApproaching
		case elapsed > m.Day+s.cfg.Tolerance:
			status = StatusPassed
		}
		out = append(out, MilestoneStatus{Day: m.Day, Status: status})
	}
	return out
}

// anchorIndex locates the most recent significant low inside the lookback: a
// bar whose low is the minimum of the centered window around it. Falls back
// to the start of the lookback when no bar qualifies.
func (s *Scorer) anchorIndex(bars []domain.PriceBar) int {
	start := 0
	if len(bars) > s.cfg.Lookback {
		start = len(bars) - s.cfg.Lookback
	}

	half := s.cfg.LowWindow / 2
	best := -1
	for i := len(bars) - 1; i >= start; i-- {
		low := barLow(bars[i])
		if math.IsNaN(low) {
			continue
		}
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(bars)-1 {
			hi = len(bars) - 1
		}
		isMin := true
		for j := lo; j <= hi; j++ {
			if other := barLow(bars[j]); !math.IsNaN(other) && other < low {
				isMin = false
				break
			}
		}
		if isMin {
			best = i
			break
		}
	}
	if best < 0 {
		return start
	}
	return best
}

// barLow prefers the intraday low, falling back to the close when the source
// omitted it.
func barLow(bar domain.PriceBar) float64 {
	if !math.IsNaN(bar.Low) && bar.Low != 0 {
		return bar.Low
	}
	return bar.Close
}
