package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"salla-repricer/cache"
	"salla-repricer/config"
	models "salla-repricer/database/models_pkg"
)

type fakeDirectory struct {
	tenant        *models.Tenant
	lastRunSets   int
	deactivations int
}

func (f *fakeDirectory) Get(tenantID string) (*models.Tenant, error) {
	if f.tenant == nil || f.tenant.TenantID != tenantID {
		return nil, errors.New("tenant not found")
	}
	return f.tenant, nil
}

func (f *fakeDirectory) TouchLastRun(tenantID string, at time.Time) error {
	f.lastRunSets++
	return nil
}

func (f *fakeDirectory) Deactivate(tenantID string) error {
	f.deactivations++
	return nil
}

type fakeCatalog struct {
	tracked     []models.Product
	upserts     []models.Product
	savedQuotes []models.CompetitorQuote
	listErr     error
}

func (f *fakeCatalog) UpsertProduct(p *models.Product) error {
	f.upserts = append(f.upserts, *p)
	return nil
}

func (f *fakeCatalog) ListTracked(tenantID string) ([]models.Product, error) {
	return f.tracked, f.listErr
}

func (f *fakeCatalog) SaveQuotes(quotes []models.CompetitorQuote) error {
	f.savedQuotes = append(f.savedQuotes, quotes...)
	return nil
}

type fakeRunAudit struct {
	runs        []*models.OptimizationRun
	finalized   []models.OptimizationRun
	decisions   []*models.PricingDecision
	activities  []recordedActivity
	decisionErr error
}

func (f *fakeRunAudit) CreateRun(run *models.OptimizationRun) error {
	run.ID = int64(len(f.runs) + 1)
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRunAudit) FinalizeRun(run *models.OptimizationRun) error {
	f.finalized = append(f.finalized, *run)
	return nil
}

func (f *fakeRunAudit) SaveDecision(d *models.PricingDecision) error {
	if f.decisionErr != nil {
		return f.decisionErr
	}
	d.ID = int64(len(f.decisions) + 1)
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeRunAudit) LogActivity(tenantID, activityType, description string, metadata map[string]interface{}) error {
	f.activities = append(f.activities, recordedActivity{activityType, description, metadata})
	return nil
}

type fakeMarket struct {
	discovered  []models.Product
	discoverErr error
	quotes      map[string][]models.CompetitorQuote
	searchErr   error
}

func (f *fakeMarket) Discover(ctx context.Context, tenant *models.Tenant) ([]models.Product, error) {
	return f.discovered, f.discoverErr
}

func (f *fakeMarket) Search(ctx context.Context, product *models.Product) ([]models.CompetitorQuote, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.quotes[product.ProductID], nil
}

type fakeDecisionExecutor struct {
	actions map[string]string // productID -> action
	errs    map[string]error  // productID -> returned error
	calls   []string
}

func (f *fakeDecisionExecutor) Execute(ctx context.Context, tenant *models.Tenant, decision *models.PricingDecision) (string, error) {
	f.calls = append(f.calls, decision.ProductID)
	if err, ok := f.errs[decision.ProductID]; ok {
		return models.ActionFailed, err
	}
	if action, ok := f.actions[decision.ProductID]; ok {
		return action, nil
	}
	return models.ActionSkipped, nil
}

type capturedEvents struct {
	events []RunEvent
}

func (c *capturedEvents) PublishRunEvent(evt RunEvent) {
	c.events = append(c.events, evt)
}

func testCoordinatorConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		MaxRunDuration:    time.Minute,
		LeaseTTL:          time.Minute,
		MinConfidence:     0.5,
		UndercutDecrement: 2.0,
		PremiumFactor:     1.05,
		HealthyMarginPct:  20,
		SmallChangePct:    10,
		LargeChangePct:    20,
	}
}

func activeTenant() *models.Tenant {
	return &models.Tenant{
		TenantID:       "tenant-1",
		AutomationMode: models.AutomationFull,
		MinMarginPct:   10,
		RiskTolerance:  "low",
		IsActive:       true,
	}
}

func trackedProduct(id string, price, cost float64) models.Product {
	return models.Product{
		TenantID:     "tenant-1",
		ProductID:    id,
		Name:         "product " + id,
		CurrentPrice: price,
		CostPrice:    cost,
		IsTracked:    true,
	}
}

func quoteFor(productID string, price float64) models.CompetitorQuote {
	return models.CompetitorQuote{
		TenantID:   "tenant-1",
		ProductID:  productID,
		Source:     "Competitor",
		Price:      price,
		Confidence: 0.9,
		IsValid:    true,
	}
}

func TestRunCompletesAndCounts(t *testing.T) {
	dir := &fakeDirectory{tenant: activeTenant()}
	catalog := &fakeCatalog{tracked: []models.Product{
		trackedProduct("p1", 150, 100),
		trackedProduct("p2", 80, 60),
	}}
	auditLog := &fakeRunAudit{}
	mkt := &fakeMarket{
		discovered: catalog.tracked,
		quotes: map[string][]models.CompetitorQuote{
			"p1": {quoteFor("p1", 140), quoteFor("p1", 145)},
			"p2": {quoteFor("p2", 75)},
		},
	}
	exec := &fakeDecisionExecutor{actions: map[string]string{
		"p1": models.ActionUpdated,
		"p2": models.ActionSkipped,
	}}
	events := &capturedEvents{}

	c := NewCoordinator(dir, catalog, auditLog, mkt, exec, cache.NewLeaseManager(nil), events, testCoordinatorConfig())
	if err := c.Run(context.Background(), "tenant-1", models.RunTypeManual); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(auditLog.finalized) != 1 {
		t.Fatalf("expected 1 finalized run, got %d", len(auditLog.finalized))
	}
	run := auditLog.finalized[0]
	if run.Status != models.RunStatusCompleted {
		t.Errorf("status = %q", run.Status)
	}
	if run.RunType != models.RunTypeManual {
		t.Errorf("run type = %q", run.RunType)
	}
	if run.ProductsAnalyzed != 2 || run.ProductsUpdated != 1 || run.ProductsSkipped != 1 {
		t.Errorf("counts = %d/%d/%d", run.ProductsAnalyzed, run.ProductsUpdated, run.ProductsSkipped)
	}
	if run.CompetitorsFound != 3 {
		t.Errorf("competitors found = %d, expected 3", run.CompetitorsFound)
	}
	if run.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	if len(catalog.upserts) != 2 {
		t.Errorf("upserted %d products, expected 2", len(catalog.upserts))
	}
	if len(catalog.savedQuotes) != 3 {
		t.Errorf("saved %d quotes, expected 3", len(catalog.savedQuotes))
	}
	if dir.lastRunSets != 1 {
		t.Errorf("last run touched %d times", dir.lastRunSets)
	}
	if exec.calls[0] != "p1" || exec.calls[1] != "p2" {
		t.Errorf("execution order = %v", exec.calls)
	}

	// run_started, one decision per product, run_completed
	types := make([]string, 0, len(events.events))
	for _, evt := range events.events {
		types = append(types, evt.Type)
	}
	want := []string{EventRunStarted, EventDecisionRecorded, EventDecisionRecorded, EventRunCompleted}
	if len(types) != len(want) {
		t.Fatalf("event types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %q, expected %q", i, types[i], want[i])
		}
	}
}

func TestRunSkipsWhenLeaseHeld(t *testing.T) {
	leases := cache.NewLeaseManager(nil)
	held, ok := leases.Acquire(context.Background(), "tenant-1", time.Minute)
	if !ok {
		t.Fatal("setup lease acquisition failed")
	}
	defer leases.Release(context.Background(), held)

	auditLog := &fakeRunAudit{}
	c := NewCoordinator(&fakeDirectory{tenant: activeTenant()}, &fakeCatalog{}, auditLog,
		&fakeMarket{}, &fakeDecisionExecutor{}, leases, nil, testCoordinatorConfig())

	if err := c.Run(context.Background(), "tenant-1", models.RunTypeScheduled); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// Busy tenant: no run row, no activity.
	if len(auditLog.runs) != 0 {
		t.Errorf("created %d run records while lease held", len(auditLog.runs))
	}
}

func TestRunSkipsInactiveTenant(t *testing.T) {
	tenant := activeTenant()
	tenant.IsActive = false

	auditLog := &fakeRunAudit{}
	c := NewCoordinator(&fakeDirectory{tenant: tenant}, &fakeCatalog{}, auditLog,
		&fakeMarket{}, &fakeDecisionExecutor{}, cache.NewLeaseManager(nil), nil, testCoordinatorConfig())

	if err := c.Run(context.Background(), "tenant-1", models.RunTypeScheduled); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(auditLog.runs) != 0 {
		t.Errorf("created %d run records for an inactive tenant", len(auditLog.runs))
	}
}

func TestRunReleasesLeaseAfterCompletion(t *testing.T) {
	leases := cache.NewLeaseManager(nil)
	c := NewCoordinator(&fakeDirectory{tenant: activeTenant()}, &fakeCatalog{}, &fakeRunAudit{},
		&fakeMarket{}, &fakeDecisionExecutor{}, leases, nil, testCoordinatorConfig())

	if err := c.Run(context.Background(), "tenant-1", models.RunTypeScheduled); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lease, ok := leases.Acquire(context.Background(), "tenant-1", time.Minute)
	if !ok {
		t.Fatal("lease still held after run completed")
	}
	leases.Release(context.Background(), lease)
}

func TestRunDegradesWhenDiscoveryFails(t *testing.T) {
	catalog := &fakeCatalog{tracked: []models.Product{trackedProduct("p1", 150, 100)}}
	auditLog := &fakeRunAudit{}
	mkt := &fakeMarket{discoverErr: errors.New("store API down")}

	c := NewCoordinator(&fakeDirectory{tenant: activeTenant()}, catalog, auditLog,
		mkt, &fakeDecisionExecutor{}, cache.NewLeaseManager(nil), nil, testCoordinatorConfig())

	if err := c.Run(context.Background(), "tenant-1", models.RunTypeScheduled); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if auditLog.finalized[0].Status != models.RunStatusCompleted {
		t.Errorf("status = %q, discovery failure should not fail the run", auditLog.finalized[0].Status)
	}
	if auditLog.finalized[0].ProductsAnalyzed != 1 {
		t.Errorf("analyzed = %d, expected the known catalog", auditLog.finalized[0].ProductsAnalyzed)
	}
}

func TestRunHoldsOnSearchFailure(t *testing.T) {
	catalog := &fakeCatalog{tracked: []models.Product{trackedProduct("p1", 150, 100)}}
	auditLog := &fakeRunAudit{}
	mkt := &fakeMarket{discovered: catalog.tracked, searchErr: errors.New("search provider down")}

	c := NewCoordinator(&fakeDirectory{tenant: activeTenant()}, catalog, auditLog,
		mkt, &fakeDecisionExecutor{}, cache.NewLeaseManager(nil), nil, testCoordinatorConfig())

	if err := c.Run(context.Background(), "tenant-1", models.RunTypeScheduled); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(auditLog.decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(auditLog.decisions))
	}
	d := auditLog.decisions[0]
	if d.Strategy != "hold" {
		t.Errorf("strategy = %q, expected hold with zero quotes", d.Strategy)
	}
	if d.RiskLevel != "medium" {
		t.Errorf("risk = %q, expected medium with zero quotes", d.RiskLevel)
	}
}

func TestRunFailsWhenAbandoned(t *testing.T) {
	catalog := &fakeCatalog{tracked: []models.Product{trackedProduct("p1", 150, 100)}}
	auditLog := &fakeRunAudit{}
	c := NewCoordinator(&fakeDirectory{tenant: activeTenant()}, catalog, auditLog,
		&fakeMarket{discovered: catalog.tracked}, &fakeDecisionExecutor{}, cache.NewLeaseManager(nil), nil, testCoordinatorConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx, "tenant-1", models.RunTypeScheduled)
	if err == nil {
		t.Fatal("expected an error for an abandoned run")
	}
	if len(auditLog.finalized) != 1 || auditLog.finalized[0].Status != models.RunStatusFailed {
		t.Errorf("finalized = %+v", auditLog.finalized)
	}
	if !strings.Contains(auditLog.finalized[0].ErrorMessage, "abandoned") {
		t.Errorf("error message = %q", auditLog.finalized[0].ErrorMessage)
	}
}

func TestRunStopsWhenCredentialsRevoked(t *testing.T) {
	dir := &fakeDirectory{tenant: activeTenant()}
	catalog := &fakeCatalog{tracked: []models.Product{
		trackedProduct("p1", 150, 100),
		trackedProduct("p2", 80, 60),
		trackedProduct("p3", 40, 20),
	}}
	auditLog := &fakeRunAudit{}
	exec := &fakeDecisionExecutor{errs: map[string]error{
		"p1": fmt.Errorf("store API rejected refreshed credentials: %w", ErrCredentialsRevoked),
	}}

	c := NewCoordinator(dir, catalog, auditLog, &fakeMarket{discovered: catalog.tracked},
		exec, cache.NewLeaseManager(nil), nil, testCoordinatorConfig())

	err := c.Run(context.Background(), "tenant-1", models.RunTypeScheduled)
	if err == nil {
		t.Fatal("expected an error when credentials are revoked")
	}
	if !errors.Is(err, ErrCredentialsRevoked) {
		t.Errorf("err = %v", err)
	}

	// The first rejection stops the run; p2 and p3 never reach the store.
	if len(exec.calls) != 1 {
		t.Errorf("executor called for %v, expected only p1", exec.calls)
	}
	if dir.deactivations != 1 {
		t.Errorf("deactivations = %d, expected 1", dir.deactivations)
	}
	if len(auditLog.finalized) != 1 || auditLog.finalized[0].Status != models.RunStatusFailed {
		t.Errorf("finalized = %+v", auditLog.finalized)
	}
}

func TestRunFailsOnDecisionPersistError(t *testing.T) {
	catalog := &fakeCatalog{tracked: []models.Product{trackedProduct("p1", 150, 100)}}
	auditLog := &fakeRunAudit{decisionErr: errors.New("db down")}
	c := NewCoordinator(&fakeDirectory{tenant: activeTenant()}, catalog, auditLog,
		&fakeMarket{discovered: catalog.tracked}, &fakeDecisionExecutor{}, cache.NewLeaseManager(nil), nil, testCoordinatorConfig())

	err := c.Run(context.Background(), "tenant-1", models.RunTypeScheduled)
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(auditLog.finalized) != 1 || auditLog.finalized[0].Status != models.RunStatusFailed {
		t.Errorf("finalized = %+v", auditLog.finalized)
	}
}
