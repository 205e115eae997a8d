package fusion

import (
	"errors"
	"testing"

	"stock-signals/internal/domain"
)

func TestFuseReferenceExample(t *testing.T) {
	res := Fuse(DefaultConfig(), 75.3, 70)

	if res.InflectionScore != 85.0 {
		t.Fatalf("expected normalized inflection 85.0, got %.2f", res.InflectionScore)
	}
	if res.CombinedScore != 79.18 {
		t.Fatalf("expected combined 79.18, got %.2f", res.CombinedScore)
	}
	if res.Action != domain.ActionStrongBuy {
		t.Fatalf("expected STRONG_BUY, got %s", res.Action)
	}
	if res.Confidence != domain.ConfidenceHigh {
		t.Fatalf("expected HIGH confidence at disagreement 9.7, got %s", res.Confidence)
	}
}

func TestFuseBoundaryTies(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name     string
		ml       float64
		strength int
		action   domain.Action
	}{
		{"exactly strong buy", 70, 40, domain.ActionStrongBuy}, // 70*0.6 + 70*0.4 = 70.00
		{"exactly buy", 50, 0, domain.ActionBuy},               // 50*0.6 + 50*0.4 = 50.00
		{"exactly sell", 30, -40, domain.ActionSell},           // 30*0.6 + 30*0.4 = 30.00
		{"hold between bands", 40, -20, domain.ActionHold},     // 40.00
	}
	for _, tc := range cases {
		if res := Fuse(cfg, tc.ml, tc.strength); res.Action != tc.action {
			t.Fatalf("%s: expected %s, got %s (combined %.2f)", tc.name, tc.action, res.Action, res.CombinedScore)
		}
	}
}

func TestFuseConfidenceBands(t *testing.T) {
	cfg := DefaultConfig()

	// strength 0 normalizes to 50
	if res := Fuse(cfg, 60, 0); res.Confidence != domain.ConfidenceHigh {
		t.Fatalf("expected HIGH at disagreement 10, got %s", res.Confidence)
	}
	if res := Fuse(cfg, 75, 0); res.Confidence != domain.ConfidenceMedium {
		t.Fatalf("expected MEDIUM at disagreement 25, got %s", res.Confidence)
	}
	if res := Fuse(cfg, 80, 0); res.Confidence != domain.ConfidenceLow {
		t.Fatalf("expected LOW at disagreement 30, got %s", res.Confidence)
	}
}

func TestFuseExtremes(t *testing.T) {
	cfg := DefaultConfig()

	res := Fuse(cfg, 100, 100)
	if res.CombinedScore != 100 || res.Action != domain.ActionStrongBuy {
		t.Fatalf("expected combined 100 STRONG_BUY, got %.2f %s", res.CombinedScore, res.Action)
	}

	res = Fuse(cfg, 0, -100)
	if res.CombinedScore != 0 || res.Action != domain.ActionSell {
		t.Fatalf("expected combined 0 SELL, got %.2f %s", res.CombinedScore, res.Action)
	}
}

func TestConfigValidate(t *testing.T) {
	var cfgErr *domain.ConfigurationError

	bad := DefaultConfig()
	bad.WeightML = 0.7
	if err := bad.Validate(); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for weights not summing to 1, got %v", err)
	}

	bad = DefaultConfig()
	bad.BuyAt = 80
	if err := bad.Validate(); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for unordered thresholds, got %v", err)
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}
