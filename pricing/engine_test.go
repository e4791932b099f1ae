package pricing

import (
	"strings"
	"testing"

	models "salla-repricer/database/models_pkg"
)

func testPolicy() Policy {
	return Policy{
		MinMarginPct:      10,
		RiskTolerance:     "low",
		Preferred:         StrategyAuto,
		MinConfidence:     0.5,
		UndercutDecrement: 2,
		PremiumFactor:     1.05,
		HealthyMarginPct:  20,
		SmallChangePct:    10,
		LargeChangePct:    20,
	}
}

func quote(price, confidence float64) models.CompetitorQuote {
	return models.CompetitorQuote{Price: price, Confidence: confidence, IsValid: true}
}

func TestDecideMarginFloorFallback(t *testing.T) {
	// Worked example: cost 100, lowest quote 95, undercut would price at 93
	// for a -7% margin; the 10% floor raises it to 110 at medium risk.
	product := &models.Product{CurrentPrice: 100, CostPrice: 100}
	quotes := []models.CompetitorQuote{quote(95, 0.9)}

	d := Decide(product, quotes, testPolicy())

	if d.Strategy != StrategyUndercut {
		t.Errorf("strategy = %s, expected undercut", d.Strategy)
	}
	if d.SuggestedPrice != 110 {
		t.Errorf("suggested = %.2f, expected 110 (margin floor)", d.SuggestedPrice)
	}
	if d.MarginPct != 10 {
		t.Errorf("margin = %.2f, expected 10", d.MarginPct)
	}
	if d.Risk != RiskMedium {
		t.Errorf("risk = %s, expected medium", d.Risk)
	}
	if !strings.Contains(d.Reasoning, "floor") {
		t.Errorf("reasoning should record the fallback, got %q", d.Reasoning)
	}
}

func TestDecideStrategies(t *testing.T) {
	tests := []struct {
		name      string
		product   *models.Product
		quotes    []models.CompetitorQuote
		modify    func(*Policy)
		strategy  Strategy
		suggested float64
		risk      Risk
	}{
		{
			name:      "undercut when priced above market",
			product:   &models.Product{CurrentPrice: 200, CostPrice: 100},
			quotes:    []models.CompetitorQuote{quote(185, 0.9), quote(205, 0.9)},
			strategy:  StrategyUndercut,
			suggested: 183, // lowest 185 - 2
			risk:      RiskLow,
		},
		{
			name:      "match when at market",
			product:   &models.Product{CurrentPrice: 150, CostPrice: 100},
			quotes:    []models.CompetitorQuote{quote(148, 0.9), quote(160, 0.9)},
			strategy:  StrategyMatch,
			suggested: 148,
			risk:      RiskLow,
		},
		{
			name:    "premium for high risk tolerance below market",
			product: &models.Product{CurrentPrice: 150, CostPrice: 100},
			quotes:  []models.CompetitorQuote{quote(160, 0.9), quote(170, 0.9)},
			modify: func(p *Policy) {
				p.RiskTolerance = "high"
			},
			strategy:  StrategyPremium,
			suggested: 173.25, // avg 165 * 1.05
			risk:      RiskMedium,
		},
		{
			name:    "pinned premium demoted to match when most expensive",
			product: &models.Product{CurrentPrice: 300, CostPrice: 100},
			quotes:  []models.CompetitorQuote{quote(200, 0.9)},
			modify: func(p *Policy) {
				p.Preferred = StrategyPremium
				p.LargeChangePct = 50
			},
			strategy:  StrategyMatch,
			suggested: 200,
			risk:      RiskMedium,
		},
		{
			name:      "hold on zero usable quotes",
			product:   &models.Product{CurrentPrice: 150, CostPrice: 100},
			quotes:    []models.CompetitorQuote{quote(90, 0.2), {Price: 100, Confidence: 0.9, IsValid: false}},
			strategy:  StrategyHold,
			suggested: 150,
			risk:      RiskMedium,
		},
		{
			name:      "undercut clamped at zero",
			product:   &models.Product{CurrentPrice: 2, CostPrice: 0.5},
			quotes:    []models.CompetitorQuote{quote(1.5, 0.9)},
			strategy:  StrategyUndercut,
			suggested: 0.55, // clamp to 0, then 10% floor over cost
			risk:      RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := testPolicy()
			if tt.modify != nil {
				tt.modify(&policy)
			}

			d := Decide(tt.product, tt.quotes, policy)

			if d.Strategy != tt.strategy {
				t.Errorf("strategy = %s, expected %s", d.Strategy, tt.strategy)
			}
			if d.SuggestedPrice != tt.suggested {
				t.Errorf("suggested = %.2f, expected %.2f", d.SuggestedPrice, tt.suggested)
			}
			if d.Risk != tt.risk {
				t.Errorf("risk = %s, expected %s", d.Risk, tt.risk)
			}
		})
	}
}

func TestDecideRiskClassification(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		quotes  []models.CompetitorQuote
		risk    Risk
	}{
		{
			name:    "unknown cost is always high",
			product: &models.Product{CurrentPrice: 150, CostPrice: 0},
			quotes:  []models.CompetitorQuote{quote(148, 0.9)},
			risk:    RiskHigh,
		},
		{
			name:    "large price change is high",
			product: &models.Product{CurrentPrice: 300, CostPrice: 100},
			quotes:  []models.CompetitorQuote{quote(150, 0.9)},
			risk:    RiskHigh, // undercut at 148 is a -50% move
		},
		{
			name:    "healthy margin small change is low",
			product: &models.Product{CurrentPrice: 150, CostPrice: 100},
			quotes:  []models.CompetitorQuote{quote(149, 0.9)},
			risk:    RiskLow,
		},
		{
			name:    "borderline margin is medium",
			product: &models.Product{CurrentPrice: 115, CostPrice: 100},
			quotes:  []models.CompetitorQuote{quote(114, 0.9)},
			risk:    RiskMedium, // 14% margin sits between floor and healthy band
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.product, tt.quotes, testPolicy())
			if d.Risk != tt.risk {
				t.Errorf("risk = %s, expected %s (decision %+v)", d.Risk, tt.risk, d)
			}
		})
	}
}

// Every decision must satisfy the margin invariant unless classified high.
func TestDecideMarginInvariant(t *testing.T) {
	policy := testPolicy()
	products := []*models.Product{
		{CurrentPrice: 100, CostPrice: 100},
		{CurrentPrice: 50, CostPrice: 40},
		{CurrentPrice: 500, CostPrice: 10},
		{CurrentPrice: 10, CostPrice: 9.99},
	}
	quoteSets := [][]models.CompetitorQuote{
		{quote(95, 0.9)},
		{quote(5, 0.9), quote(600, 0.9)},
		{quote(45, 0.55), quote(44, 0.51)},
	}

	for _, p := range products {
		for _, qs := range quoteSets {
			d := Decide(p, qs, policy)
			if d.Strategy == StrategyHold {
				continue
			}
			if d.MarginPct < policy.MinMarginPct && d.Risk != RiskHigh {
				t.Errorf("margin %.2f%% below floor but risk %s (product %+v quotes %+v)",
					d.MarginPct, d.Risk, p, qs)
			}
		}
	}
}
