package fusion

import (
	"fmt"
	"math"

	"stock-signals/internal/domain"
)

// Defaults for the weighted combination and the action ladder.
const (
	DefaultWeightML         = 0.6
	DefaultWeightInflection = 0.4
	DefaultStrongBuyAt      = 70.0
	DefaultBuyAt            = 50.0
	DefaultSellAt           = 30.0
	DefaultHighAgreement    = 10.0
	DefaultMediumAgreement  = 25.0

	weightEpsilon = 1e-9
)

type Config struct {
	WeightML         float64
	WeightInflection float64
	StrongBuyAt      float64
	BuyAt            float64
	SellAt           float64
	HighAgreement    float64
	MediumAgreement  float64
}

func DefaultConfig() Config {
	return Config{
		WeightML:         DefaultWeightML,
		WeightInflection: DefaultWeightInflection,
		StrongBuyAt:      DefaultStrongBuyAt,
		BuyAt:            DefaultBuyAt,
		SellAt:           DefaultSellAt,
		HighAgreement:    DefaultHighAgreement,
		MediumAgreement:  DefaultMediumAgreement,
	}
}

func (c Config) Validate() error {
	if math.Abs(c.WeightML+c.WeightInflection-1) > weightEpsilon {
		return &domain.ConfigurationError{
			Field:  "fusion_weights",
			Reason: fmt.Sprintf("weights %.4f + %.4f must sum to 1", c.WeightML, c.WeightInflection),
		}
	}
	if c.WeightML < 0 || c.WeightInflection < 0 {
		return &domain.ConfigurationError{Field: "fusion_weights", Reason: "weights must be non-negative"}
	}
	if !(c.StrongBuyAt > c.BuyAt && c.BuyAt > c.SellAt) {
		return &domain.ConfigurationError{
			Field:  "action_thresholds",
			Reason: fmt.Sprintf("thresholds %.1f/%.1f/%.1f must be strictly descending", c.StrongBuyAt, c.BuyAt, c.SellAt),
		}
	}
	if c.HighAgreement < 0 || c.MediumAgreement < c.HighAgreement {
		return &domain.ConfigurationError{Field: "agreement_bands", Reason: "bands must be 0 <= high <= medium"}
	}
	return nil
}

// Result carries the combined score with its inputs. InflectionScore is the
// normalized strength on the [0,100] scale the combination uses.
type Result struct {
	MLScore         float64
	InflectionScore float64
	CombinedScore   float64
	Action          domain.Action
	Confidence      domain.Confidence
}

// Fuse is a pure total function over (mlScore in [0,100], strength in
// [-100,100]). Strength normalizes via (s+100)/2, the combined score is the
// weighted average rounded to two decimals, and the ladder resolves ties with
// the highest matching boundary.
func Fuse(cfg Config, mlScore float64, inflectionStrength int) Result {
	normalized := (float64(inflectionStrength) + 100) / 2
	combined := round2(mlScore*cfg.WeightML + normalized*cfg.WeightInflection)

	var action domain.Action
	switch {
	case combined >= cfg.StrongBuyAt:
		action = domain.ActionStrongBuy
	case combined >= cfg.BuyAt:
		action = domain.ActionBuy
	case combined <= cfg.SellAt:
		action = domain.ActionSell
	default:
		action = domain.ActionHold
	}

	disagreement := math.Abs(mlScore - normalized)
	var confidence domain.Confidence
	switch {
	case disagreement <= cfg.HighAgreement:
		confidence = domain.ConfidenceHigh
	case disagreement <= cfg.MediumAgreement:
		confidence = domain.ConfidenceMedium
	default:
		confidence = domain.ConfidenceLow
	}

	return Result{
		MLScore:         mlScore,
		InflectionScore: normalized,
		CombinedScore:   combined,
		Action:          action,
		Confidence:      confidence,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
