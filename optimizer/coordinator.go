package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"salla-repricer/cache"
	"salla-repricer/config"
	models "salla-repricer/database/models_pkg"
	"salla-repricer/pricing"
)

// tenantDirectory is the tenant-repo surface the coordinator needs.
type tenantDirectory interface {
	Get(tenantID string) (*models.Tenant, error)
	TouchLastRun(tenantID string, at time.Time) error
	Deactivate(tenantID string) error
}

// catalogStore persists discovered products and observed quotes.
type catalogStore interface {
	UpsertProduct(p *models.Product) error
	ListTracked(tenantID string) ([]models.Product, error)
	SaveQuotes(quotes []models.CompetitorQuote) error
}

// runAudit persists run records, decisions and activity entries.
type runAudit interface {
	CreateRun(run *models.OptimizationRun) error
	FinalizeRun(run *models.OptimizationRun) error
	SaveDecision(d *models.PricingDecision) error
	LogActivity(tenantID, activityType, description string, metadata map[string]interface{}) error
}

// MarketProvider supplies catalog discovery and competitor search. Any
// search failure degrades to zero quotes, never a run failure.
type MarketProvider interface {
	Discover(ctx context.Context, tenant *models.Tenant) ([]models.Product, error)
	Search(ctx context.Context, product *models.Product) ([]models.CompetitorQuote, error)
}

// decisionExecutor applies a saved decision, returning the action taken.
type decisionExecutor interface {
	Execute(ctx context.Context, tenant *models.Tenant, decision *models.PricingDecision) (string, error)
}

// RunEvent is pushed to dashboard subscribers as a run progresses.
type RunEvent struct {
	Type      string                 `json:"type"`
	TenantID  string                 `json:"tenant_id"`
	RunID     int64                  `json:"run_id"`
	ProductID string                 `json:"product_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	At        time.Time              `json:"at"`
}

// Run event types
const (
	EventRunStarted       = "run_started"
	EventDecisionRecorded = "decision_recorded"
	EventRunCompleted     = "run_completed"
	EventRunFailed        = "run_failed"
)

// EventPublisher fans run events out to connected clients. A nil publisher
// disables events.
type EventPublisher interface {
	PublishRunEvent(evt RunEvent)
}

// Coordinator sequences one tenant's optimization run: acquire the
// exclusivity lease, discover the catalog, decide a price per product,
// hand each decision to the executor, and finalize the run record.
// Products are processed sequentially so the audit trail stays in
// deterministic order.
type Coordinator struct {
	tenants  tenantDirectory
	catalog  catalogStore
	audit    runAudit
	market   MarketProvider
	executor decisionExecutor
	leases   *cache.LeaseManager
	events   EventPublisher
	cfg      config.OptimizerConfig

	now func() time.Time
}

// NewCoordinator creates a tenant run coordinator
func NewCoordinator(tenants tenantDirectory, catalog catalogStore, auditRepo runAudit, market MarketProvider, executor decisionExecutor, leases *cache.LeaseManager, events EventPublisher, cfg config.OptimizerConfig) *Coordinator {
	return &Coordinator{
		tenants:  tenants,
		catalog:  catalog,
		audit:    auditRepo,
		market:   market,
		executor: executor,
		leases:   leases,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run executes one optimization run for the tenant. If another run holds
// the tenant's lease the call returns immediately without creating a run
// record. runType is one of the models.RunType* constants.
func (c *Coordinator) Run(ctx context.Context, tenantID, runType string) error {
	tenant, err := c.tenants.Get(tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}
	if !tenant.IsActive {
		log.Infof("⏭️ Tenant %s is inactive, skipping run", tenantID)
		return nil
	}

	lease, ok := c.leases.Acquire(ctx, tenantID, c.cfg.LeaseTTL)
	if !ok {
		log.Infof("🔒 Tenant %s already has a run in progress, skipping", tenantID)
		return nil
	}
	defer c.leases.Release(context.Background(), lease)

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.MaxRunDuration)
	defer cancel()

	run := &models.OptimizationRun{
		TenantID:  tenantID,
		RunType:   runType,
		Status:    models.RunStatusRunning,
		StartedAt: c.now().UTC(),
	}
	if err := c.audit.CreateRun(run); err != nil {
		return fmt.Errorf("failed to create run record for %s: %w", tenantID, err)
	}

	log.Infof("🚀 Starting %s optimization run %d for tenant %s", runType, run.ID, tenantID)
	c.publish(RunEvent{Type: EventRunStarted, TenantID: tenantID, RunID: run.ID})

	if err := c.execute(runCtx, tenant, run); err != nil {
		c.finalize(run, models.RunStatusFailed, err.Error())
		c.publish(RunEvent{Type: EventRunFailed, TenantID: tenantID, RunID: run.ID, Data: map[string]interface{}{
			"error": err.Error(),
		}})
		return err
	}

	c.finalize(run, models.RunStatusCompleted, "")
	if err := c.tenants.TouchLastRun(tenantID, run.StartedAt); err != nil {
		log.Errorf("❌ Failed to update last run time for %s: %v", tenantID, err)
	}
	c.publish(RunEvent{Type: EventRunCompleted, TenantID: tenantID, RunID: run.ID, Data: map[string]interface{}{
		"products_analyzed": run.ProductsAnalyzed,
		"products_updated":  run.ProductsUpdated,
		"products_skipped":  run.ProductsSkipped,
	}})
	return nil
}

// execute walks the discover, decide, execute pipeline, mutating the run's
// counters. Per-product failures never abort the remaining products; only
// repository errors and the run deadline do.
func (c *Coordinator) execute(ctx context.Context, tenant *models.Tenant, run *models.OptimizationRun) error {
	products, err := c.discover(ctx, tenant)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		log.Infof("📭 Tenant %s has no tracked products", tenant.TenantID)
		return nil
	}

	policy := c.policyFor(tenant)

	for i := range products {
		if ctx.Err() != nil {
			return fmt.Errorf("run abandoned after %s: %w", c.cfg.MaxRunDuration, ctx.Err())
		}
		product := &products[i]

		quotes := c.gatherQuotes(ctx, product)
		run.CompetitorsFound += len(quotes)

		decision := pricing.Decide(product, quotes, policy)
		record := &models.PricingDecision{
			TenantID:       tenant.TenantID,
			ProductID:      product.ProductID,
			OldPrice:       product.CurrentPrice,
			SuggestedPrice: decision.SuggestedPrice,
			Strategy:       string(decision.Strategy),
			RiskLevel:      string(decision.Risk),
			MarginPct:      decision.MarginPct,
			ActionTaken:    models.ActionPending,
			Reasoning:      decision.Reasoning,
			DecidedAt:      c.now().UTC(),
		}
		if err := c.audit.SaveDecision(record); err != nil {
			return fmt.Errorf("failed to save decision for %s: %w", product.ProductID, err)
		}
		run.ProductsAnalyzed++

		action, execErr := c.executor.Execute(ctx, tenant, record)
		switch action {
		case models.ActionUpdated:
			run.ProductsUpdated++
		case models.ActionSkipped:
			run.ProductsSkipped++
		default:
			if execErr != nil {
				log.Warnf("⚠️ %v", execErr)
			}
		}

		c.publish(RunEvent{
			Type:      EventDecisionRecorded,
			TenantID:  tenant.TenantID,
			RunID:     run.ID,
			ProductID: product.ProductID,
			Data: map[string]interface{}{
				"strategy":        record.Strategy,
				"risk_level":      record.RiskLevel,
				"old_price":       record.OldPrice,
				"suggested_price": record.SuggestedPrice,
				"action":          action,
			},
		})

		// Revoked credentials fail every remaining product the same way;
		// stop here and pull the tenant out of scheduling.
		if errors.Is(execErr, ErrCredentialsRevoked) {
			c.revokeTenant(tenant)
			return fmt.Errorf("run stopped: %w", execErr)
		}
	}
	return nil
}

// revokeTenant deactivates a tenant whose credentials the store has proven
// unrecoverable. Re-onboarding with fresh tokens reactivates it.
func (c *Coordinator) revokeTenant(tenant *models.Tenant) {
	log.Errorf("🚫 Credentials revoked for tenant %s, deactivating", tenant.TenantID)
	if err := c.tenants.Deactivate(tenant.TenantID); err != nil {
		log.Errorf("❌ Failed to deactivate tenant %s: %v", tenant.TenantID, err)
	}
}

// discover refreshes the catalog from the store API, then reads back the
// tracked set. A discovery failure degrades to the already-known catalog
// rather than failing the run.
func (c *Coordinator) discover(ctx context.Context, tenant *models.Tenant) ([]models.Product, error) {
	found, err := c.market.Discover(ctx, tenant)
	if err != nil {
		log.Warnf("⚠️ Discovery failed for %s, using known catalog: %v", tenant.TenantID, err)
	} else {
		for i := range found {
			if err := c.catalog.UpsertProduct(&found[i]); err != nil {
				return nil, fmt.Errorf("failed to upsert product %s: %w", found[i].ProductID, err)
			}
		}
	}

	tracked, err := c.catalog.ListTracked(tenant.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked products: %w", err)
	}
	return tracked, nil
}

// gatherQuotes searches competitor prices for one product. Failures are
// logged and degrade to zero quotes, which the engine turns into a hold.
func (c *Coordinator) gatherQuotes(ctx context.Context, product *models.Product) []models.CompetitorQuote {
	quotes, err := c.market.Search(ctx, product)
	if err != nil {
		log.Warnf("⚠️ Competitor search failed for %s/%s: %v", product.TenantID, product.ProductID, err)
		return nil
	}
	if len(quotes) == 0 {
		return nil
	}
	if err := c.catalog.SaveQuotes(quotes); err != nil {
		log.Errorf("❌ Failed to save %d quotes for %s: %v", len(quotes), product.ProductID, err)
	}
	return quotes
}

func (c *Coordinator) policyFor(tenant *models.Tenant) pricing.Policy {
	return pricing.Policy{
		MinMarginPct:      tenant.MinMarginPct,
		RiskTolerance:     tenant.RiskTolerance,
		Preferred:         pricing.StrategyAuto,
		MinConfidence:     c.cfg.MinConfidence,
		UndercutDecrement: c.cfg.UndercutDecrement,
		PremiumFactor:     c.cfg.PremiumFactor,
		HealthyMarginPct:  c.cfg.HealthyMarginPct,
		SmallChangePct:    c.cfg.SmallChangePct,
		LargeChangePct:    c.cfg.LargeChangePct,
	}
}

func (c *Coordinator) finalize(run *models.OptimizationRun, status, errorMessage string) {
	completed := c.now().UTC()
	run.Status = status
	run.CompletedAt = &completed
	run.DurationSeconds = int(completed.Sub(run.StartedAt).Seconds())
	run.ErrorMessage = errorMessage

	if err := c.audit.FinalizeRun(run); err != nil {
		log.Errorf("❌ Failed to finalize run %d: %v", run.ID, err)
		return
	}

	if status == models.RunStatusCompleted {
		log.Infof("🏁 Run %d for %s completed in %ds: %d analyzed, %d updated, %d skipped",
			run.ID, run.TenantID, run.DurationSeconds,
			run.ProductsAnalyzed, run.ProductsUpdated, run.ProductsSkipped)
	} else {
		log.Errorf("💥 Run %d for %s failed after %ds: %s", run.ID, run.TenantID, run.DurationSeconds, errorMessage)
	}

	if err := c.audit.LogActivity(run.TenantID, "optimization_run", fmt.Sprintf("Optimization run %s", status), map[string]interface{}{
		"run_id":            run.ID,
		"run_type":          run.RunType,
		"status":            status,
		"products_analyzed": run.ProductsAnalyzed,
		"products_updated":  run.ProductsUpdated,
		"products_skipped":  run.ProductsSkipped,
		"duration_seconds":  run.DurationSeconds,
	}); err != nil {
		log.Errorf("❌ Failed to log run activity for %s: %v", run.TenantID, err)
	}
}

func (c *Coordinator) publish(evt RunEvent) {
	if c.events == nil {
		return
	}
	evt.At = c.now().UTC()
	c.events.PublishRunEvent(evt)
}
