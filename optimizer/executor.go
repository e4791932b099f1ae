// Package optimizer contains the per-tenant run pipeline: the coordinator
// that sequences discover, decide and execute for one tenant, and the
// execution controller that applies risk policy before any price reaches
// the store API.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"salla-repricer/auth"
	"salla-repricer/config"
	models "salla-repricer/database/models_pkg"
	"salla-repricer/guard"
	"salla-repricer/helpers"
	"salla-repricer/pricing"
	"salla-repricer/store"
)

// ErrCredentialsRevoked marks a tenant whose refreshed credentials were
// rejected outright. The run coordinator stops the remaining products and
// deactivates the tenant; nothing more can execute until re-onboarding.
var ErrCredentialsRevoked = errors.New("tenant credentials revoked")

// priceUpdater is the store API surface the executor needs.
type priceUpdater interface {
	UpdatePrice(ctx context.Context, accessToken, productID string, newPrice float64) error
}

// tokenSource hands out fresh credentials and performs the one in-run
// refresh allowed on an auth failure.
type tokenSource interface {
	EnsureFresh(ctx context.Context, tenantID string) (*models.TokenRecord, error)
	Refresh(ctx context.Context, tenantID string) (*models.TokenRecord, error)
}

// outcomeRecorder is the audit surface the executor writes through.
type outcomeRecorder interface {
	RecordOutcome(decisionID int64, action string, finalPrice *float64, executedAt time.Time) error
	LogActivity(tenantID, activityType, description string, metadata map[string]interface{}) error
}

// Executor applies the risk policy to a saved pricing decision and, when
// execution is permitted, pushes the new price through the breaker and
// rate limiter to the store API. Every path records an outcome on the
// decision row.
type Executor struct {
	storeAPI priceUpdater
	tokens   tokenSource
	audit    outcomeRecorder
	breakers *guard.BreakerRegistry
	limiter  *guard.RateLimiter
	cfg      config.OptimizerConfig

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewExecutor creates an execution controller
func NewExecutor(storeAPI priceUpdater, tokens tokenSource, auditRepo outcomeRecorder, breakers *guard.BreakerRegistry, limiter *guard.RateLimiter, cfg config.OptimizerConfig) *Executor {
	return &Executor{
		storeAPI: storeAPI,
		tokens:   tokens,
		audit:    auditRepo,
		breakers: breakers,
		limiter:  limiter,
		cfg:      cfg,
		sleep:    sleepCtx,
		now:      time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// allowAutoExecute decides whether a decision of the given risk level may
// be applied without human approval. High risk never auto-executes.
func allowAutoExecute(mode string, risk string) bool {
	if risk == string(pricing.RiskHigh) {
		return false
	}
	switch mode {
	case models.AutomationFull:
		return true
	case models.AutomationSemi:
		return risk == string(pricing.RiskLow)
	default: // manual
		return false
	}
}

// Execute applies a saved decision and returns the action taken, one of
// the models.Action* constants. Errors that exhaust the retry budget are
// recorded as failed on the decision row; the returned error is only for
// logging, the run continues either way.
func (e *Executor) Execute(ctx context.Context, tenant *models.Tenant, decision *models.PricingDecision) (string, error) {
	if decision.Strategy == string(pricing.StrategyHold) {
		return e.skip(decision, "hold strategy, no price change")
	}
	if decision.SuggestedPrice == decision.OldPrice {
		return e.skip(decision, "suggested price equals current price")
	}
	if decision.RiskLevel == string(pricing.RiskHigh) {
		return e.skip(decision, "high risk, manual review required")
	}
	if !allowAutoExecute(tenant.AutomationMode, decision.RiskLevel) {
		return e.skip(decision, fmt.Sprintf("%s risk not auto-executed in %s mode", decision.RiskLevel, tenant.AutomationMode))
	}

	token, err := e.tokens.EnsureFresh(ctx, tenant.TenantID)
	if err != nil {
		return e.fail(tenant, decision, fmt.Sprintf("no usable credentials: %v", err))
	}

	breaker := e.breakers.Get(tenant.TenantID, guard.TargetStoreAPI)
	refreshed := false

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		callErr := breaker.Call(func() error {
			if werr := e.limiter.Wait(ctx, tenant.TenantID, guard.TargetStoreAPI); werr != nil {
				return werr
			}
			return e.storeAPI.UpdatePrice(ctx, token.AccessToken, decision.ProductID, decision.SuggestedPrice)
		})
		if callErr == nil {
			return e.succeed(tenant, decision)
		}

		if errors.Is(callErr, guard.ErrCircuitOpen) {
			return e.fail(tenant, decision, "circuit breaker open for store API")
		}
		if errors.Is(callErr, guard.ErrRateLimitExceeded) {
			return e.fail(tenant, decision, "rate limit wait exceeded maximum")
		}
		if ctx.Err() != nil {
			return e.fail(tenant, decision, "run deadline reached before update completed")
		}

		switch store.Classify(callErr) {
		case store.KindRateLimited:
			var apiErr *store.APIError
			if errors.As(callErr, &apiErr) && apiErr.RetryAfter > 0 {
				e.limiter.Hint(tenant.TenantID, guard.TargetStoreAPI, apiErr.RetryAfter)
			}
		case store.KindTransient:
			if attempt < e.cfg.MaxAttempts {
				if serr := e.sleep(ctx, guard.Delay(attempt, e.cfg.BackoffBase, e.cfg.BackoffCeiling)); serr != nil {
					return e.fail(tenant, decision, "run deadline reached during backoff")
				}
			}
		case store.KindAuth:
			if refreshed {
				return e.failRevoked(tenant, decision, "store API rejected refreshed credentials")
			}
			refreshed = true
			token, err = e.tokens.Refresh(ctx, tenant.TenantID)
			if err != nil {
				var authErr *auth.AuthError
				if errors.As(err, &authErr) {
					// The ledger has already deactivated the tenant.
					return e.failRevoked(tenant, decision, fmt.Sprintf("token refresh rejected: %v", err))
				}
				return e.fail(tenant, decision, fmt.Sprintf("token refresh failed: %v", err))
			}
		case store.KindNotFound:
			return e.fail(tenant, decision, "product no longer exists in store")
		case store.KindValidation:
			return e.fail(tenant, decision, fmt.Sprintf("store API rejected update: %v", callErr))
		}

		log.Warnf("⚠️ Price update attempt %d/%d for %s/%s failed: %v",
			attempt, e.cfg.MaxAttempts, tenant.TenantID, decision.ProductID, callErr)
	}

	return e.fail(tenant, decision, fmt.Sprintf("retries exhausted after %d attempts", e.cfg.MaxAttempts))
}

func (e *Executor) succeed(tenant *models.Tenant, decision *models.PricingDecision) (string, error) {
	now := e.now()
	price := decision.SuggestedPrice
	if err := e.audit.RecordOutcome(decision.ID, models.ActionUpdated, &price, now); err != nil {
		log.Errorf("❌ Failed to record outcome for decision %d: %v", decision.ID, err)
	}

	description := fmt.Sprintf("Price updated from %s to %s (%s)",
		helpers.FormatSAR(decision.OldPrice), helpers.FormatSAR(price), decision.Strategy)
	metadata := map[string]interface{}{
		"product_id": decision.ProductID,
		"old_price":  decision.OldPrice,
		"new_price":  price,
		"strategy":   decision.Strategy,
		"risk_level": decision.RiskLevel,
	}
	// Medium-risk executions get the full reasoning in the audit trail.
	if decision.RiskLevel == string(pricing.RiskMedium) {
		metadata["reasoning"] = decision.Reasoning
	}
	if err := e.audit.LogActivity(tenant.TenantID, "price_updated", description, metadata); err != nil {
		log.Errorf("❌ Failed to log price update for %s: %v", tenant.TenantID, err)
	}

	log.Infof("✅ %s: %s", tenant.TenantID, description)
	return models.ActionUpdated, nil
}

func (e *Executor) skip(decision *models.PricingDecision, reason string) (string, error) {
	if err := e.audit.RecordOutcome(decision.ID, models.ActionSkipped, nil, e.now()); err != nil {
		log.Errorf("❌ Failed to record outcome for decision %d: %v", decision.ID, err)
	}
	log.Infof("⏭️ Decision %d skipped: %s", decision.ID, reason)
	return models.ActionSkipped, nil
}

func (e *Executor) fail(tenant *models.Tenant, decision *models.PricingDecision, reason string) (string, error) {
	if err := e.audit.RecordOutcome(decision.ID, models.ActionFailed, nil, e.now()); err != nil {
		log.Errorf("❌ Failed to record outcome for decision %d: %v", decision.ID, err)
	}
	if err := e.audit.LogActivity(tenant.TenantID, "price_update_failed", reason, map[string]interface{}{
		"product_id": decision.ProductID,
		"decision":   decision.ID,
	}); err != nil {
		log.Errorf("❌ Failed to log update failure for %s: %v", tenant.TenantID, err)
	}
	return models.ActionFailed, fmt.Errorf("price update for %s/%s: %s", tenant.TenantID, decision.ProductID, reason)
}

// failRevoked records the failure like fail and additionally marks the error
// so the coordinator aborts the remaining products for the tenant.
func (e *Executor) failRevoked(tenant *models.Tenant, decision *models.PricingDecision, reason string) (string, error) {
	action, err := e.fail(tenant, decision, reason)
	return action, fmt.Errorf("%v: %w", err, ErrCredentialsRevoked)
}
