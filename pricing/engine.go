// Package pricing turns a product, its competitor quotes, and the tenant's
// policy into a bounded, auditable recommendation. The engine is a pure
// function: no I/O, no retries, no clock.
package pricing

import (
	"fmt"

	models "salla-repricer/database/models_pkg"
	"salla-repricer/helpers"
)

// Strategy is the closed set of pricing strategies
type Strategy string

const (
	StrategyUndercut Strategy = "undercut"
	StrategyMatch    Strategy = "match"
	StrategyPremium  Strategy = "premium"
	StrategyHold     Strategy = "hold"
	// StrategyAuto lets the engine pick based on market position
	StrategyAuto Strategy = "auto"
)

// Risk is the closed set of risk classifications. Every branch that assigns
// or consumes a Risk switches over all three values.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Policy carries the tenant's constraints and the platform thresholds.
// Percentages are whole-number percent (10 means 10%).
type Policy struct {
	MinMarginPct  float64
	RiskTolerance string
	Preferred     Strategy // StrategyAuto unless the tenant pinned one

	MinConfidence     float64
	UndercutDecrement float64
	PremiumFactor     float64
	HealthyMarginPct  float64
	SmallChangePct    float64
	LargeChangePct    float64
}

// Decision is the engine's immutable output
type Decision struct {
	Strategy       Strategy
	Risk           Risk
	SuggestedPrice float64
	MarginPct      float64
	PriceChangePct float64
	QuotesUsed     int
	LowestQuote    float64
	AverageQuote   float64
	Reasoning      string
}

// Decide computes the pricing recommendation for one product.
func Decide(product *models.Product, quotes []models.CompetitorQuote, policy Policy) Decision {
	usable := filterQuotes(quotes, policy.MinConfidence)

	// Insufficient data degrades to hold at medium risk; the controller will
	// not execute a hold.
	if len(usable) == 0 {
		return Decision{
			Strategy:       StrategyHold,
			Risk:           RiskMedium,
			SuggestedPrice: product.CurrentPrice,
			MarginPct:      marginPct(product.CurrentPrice, product.CostPrice),
			QuotesUsed:     0,
			Reasoning:      fmt.Sprintf("no usable competitor quotes (threshold %.2f): holding current price", policy.MinConfidence),
		}
	}

	lowest, average := quoteStats(usable)
	strategy := selectStrategy(product, lowest, average, policy)

	var suggested float64
	switch strategy {
	case StrategyUndercut:
		suggested = lowest - policy.UndercutDecrement
		if suggested < 0 {
			suggested = 0
		}
	case StrategyMatch:
		suggested = lowest
	case StrategyPremium:
		suggested = average * policy.PremiumFactor
	default: // StrategyHold
		suggested = product.CurrentPrice
	}
	suggested = helpers.RoundPrice(suggested)

	reasoning := fmt.Sprintf("%s against %d quotes (lowest %s, avg %s)",
		strategy, len(usable), helpers.FormatSAR(lowest), helpers.FormatSAR(average))

	// Margin floor: fall back to the minimum-margin price rather than sell
	// below the tenant's floor.
	margin := marginPct(suggested, product.CostPrice)
	if product.CostPrice > 0 && margin < policy.MinMarginPct {
		floor := helpers.RoundPrice(product.CostPrice * (1 + policy.MinMarginPct/100))
		reasoning += fmt.Sprintf("; %.1f%% margin below %.1f%% floor, raised to %s",
			margin, policy.MinMarginPct, helpers.FormatSAR(floor))
		suggested = floor
		margin = marginPct(suggested, product.CostPrice)
	}

	change := changePct(product.CurrentPrice, suggested)

	return Decision{
		Strategy:       strategy,
		Risk:           classifyRisk(product, margin, change, policy),
		SuggestedPrice: suggested,
		MarginPct:      margin,
		PriceChangePct: change,
		QuotesUsed:     len(usable),
		LowestQuote:    lowest,
		AverageQuote:   average,
		Reasoning:      reasoning,
	}
}

// filterQuotes drops invalid, non-positive, and low-confidence observations
func filterQuotes(quotes []models.CompetitorQuote, minConfidence float64) []models.CompetitorQuote {
	usable := make([]models.CompetitorQuote, 0, len(quotes))
	for _, q := range quotes {
		if !q.IsValid || q.Price <= 0 {
			continue
		}
		if q.Confidence < minConfidence {
			continue
		}
		usable = append(usable, q)
	}
	return usable
}

func quoteStats(quotes []models.CompetitorQuote) (lowest, average float64) {
	lowest = quotes[0].Price
	sum := 0.0
	for _, q := range quotes {
		if q.Price < lowest {
			lowest = q.Price
		}
		sum += q.Price
	}
	return lowest, sum / float64(len(quotes))
}

// selectStrategy picks the strategy for this market position. A pinned
// premium strategy is demoted to match when the tenant is already the most
// expensive; premium pricing from the top of the market only drifts further
// from it.
func selectStrategy(product *models.Product, lowest, average float64, policy Policy) Strategy {
	premiumAllowed := product.CurrentPrice <= average

	switch policy.Preferred {
	case StrategyUndercut, StrategyMatch, StrategyHold:
		return policy.Preferred
	case StrategyPremium:
		if premiumAllowed {
			return StrategyPremium
		}
		return StrategyMatch
	}

	// Auto: expensive tenants move toward the market, cheap tenants with an
	// appetite for risk take the premium, everyone else matches.
	if product.CurrentPrice > average {
		return StrategyUndercut
	}
	if premiumAllowed && policy.RiskTolerance == "high" {
		return StrategyPremium
	}
	return StrategyMatch
}

// classifyRisk applies the closed low/medium/high taxonomy
func classifyRisk(product *models.Product, margin, change float64, policy Policy) Risk {
	// Unknown cost means the margin is unverifiable: never auto-execute
	if product.CostPrice <= 0 || product.CurrentPrice <= 0 {
		return RiskHigh
	}
	if margin < policy.MinMarginPct {
		return RiskHigh
	}
	if abs(change) > policy.LargeChangePct {
		return RiskHigh
	}
	if margin > policy.HealthyMarginPct && abs(change) < policy.SmallChangePct {
		return RiskLow
	}
	return RiskMedium
}

func marginPct(price, cost float64) float64 {
	if cost <= 0 {
		return 0
	}
	return (price - cost) / cost * 100
}

func changePct(current, suggested float64) float64 {
	if current <= 0 {
		return 0
	}
	return (suggested - current) / current * 100
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
