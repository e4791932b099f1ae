package models

import "time"

// Automation modes control how much of a tenant's pricing the optimizer may
// apply without a human in the loop.
const (
	AutomationManual = "manual"
	AutomationSemi   = "semi"
	AutomationFull   = "full"
)

// OptimizationRun statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// OptimizationRun types
const (
	RunTypeScheduled = "scheduled"
	RunTypeManual    = "manual"
	RunTypeTriggered = "triggered"
)

// Actions recorded on a PricingDecision after the execution phase
const (
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
	ActionFailed  = "failed"
	ActionPending = "pending"
)

// Tenant represents one onboarded Salla store. The tenant is the unit of data
// isolation: every product, quote, decision, run, and log row is scoped by
// TenantID and no query ever crosses tenants.
//
// Key Fields:
//   - TenantID: the Salla store ID, unique across the platform
//   - MinMarginPct: hard floor for profit margin, always > 0
//   - AutomationMode: manual, semi, or full (see execution policy)
//   - CadenceHours: interval between automatic optimization runs
//   - IsActive: cleared on unrecoverable auth failure; inactive tenants are
//     excluded from all scheduling until re-onboarded
type Tenant struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID string `gorm:"size:50;uniqueIndex;not null" json:"tenant_id"`

	StoreName   string `gorm:"size:255;not null" json:"store_name"`
	StoreDomain string `gorm:"size:255" json:"store_domain"`
	OwnerEmail  string `gorm:"size:255" json:"owner_email"`

	MinMarginPct   float64 `gorm:"type:decimal(5,2);default:10.0" json:"min_margin_pct"`
	AutomationMode string  `gorm:"size:20;default:manual" json:"automation_mode"`
	CadenceHours   int     `gorm:"default:12" json:"cadence_hours"`
	RiskTolerance  string  `gorm:"size:20;default:low" json:"risk_tolerance"`

	SubscriptionPlan string     `gorm:"size:50;default:free" json:"subscription_plan"`
	IsActive         bool       `gorm:"default:true;index" json:"is_active"`
	LastRunAt        *time.Time `gorm:"index" json:"last_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Tenant
func (Tenant) TableName() string {
	return "tenants"
}

// NeedsRun reports whether the tenant is due for a cadence-driven run at now.
func (t *Tenant) NeedsRun(now time.Time) bool {
	if !t.IsActive || t.AutomationMode == AutomationManual {
		return false
	}
	if t.LastRunAt == nil {
		return true
	}
	return now.Sub(*t.LastRunAt) >= time.Duration(t.CadenceHours)*time.Hour
}

// Product is one tracked catalog item in a tenant's store. Products are
// upserted by discovery and never deleted, only untracked.
type Product struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  string `gorm:"size:50;not null;uniqueIndex:idx_tenant_product;index:idx_tenant_tracked" json:"tenant_id"`
	ProductID string `gorm:"size:50;not null;uniqueIndex:idx_tenant_product" json:"product_id"`

	Name     string `gorm:"size:500;not null" json:"name"`
	Category string `gorm:"size:255" json:"category"`
	SKU      string `gorm:"size:100" json:"sku"`

	CurrentPrice float64 `gorm:"type:decimal(10,2);not null" json:"current_price"`
	CostPrice    float64 `gorm:"type:decimal(10,2)" json:"cost_price"`

	IsTracked bool `gorm:"default:true;index:idx_tenant_tracked" json:"is_tracked"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Product
func (Product) TableName() string {
	return "products"
}

// CompetitorQuote is one external price observation for a tenant's product.
// Quotes are created per run and superseded by newer observations, never
// mutated in place.
//
// Key Fields:
//   - Source: competitor store name as reported by the search provider
//   - Confidence: reliability estimate in [0,1]; low-confidence quotes are
//     discarded by the pricing engine before any statistic is computed
type CompetitorQuote struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  string `gorm:"size:50;not null;index:idx_tenant_product_quote" json:"tenant_id"`
	ProductID string `gorm:"size:50;not null;index:idx_tenant_product_quote" json:"product_id"`

	Source     string  `gorm:"size:255;not null" json:"source"`
	SourceURL  string  `json:"source_url,omitempty"`
	Platform   string  `gorm:"size:50;default:Salla" json:"platform"`
	Price      float64 `gorm:"type:decimal(10,2);not null" json:"price"`
	Confidence float64 `gorm:"type:decimal(3,2);default:0.8" json:"confidence"`
	IsValid    bool    `gorm:"default:true" json:"is_valid"`

	ObservedAt time.Time `gorm:"index" json:"observed_at"`
}

// TableName specifies the table name for CompetitorQuote
func (CompetitorQuote) TableName() string {
	return "competitor_quotes"
}

// PricingDecision is the audit trail of one computed recommendation.
// Decisions are immutable after creation except for the execution outcome
// (ActionTaken, FinalPrice, ExecutedAt) recorded by the controller.
type PricingDecision struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  string `gorm:"size:50;not null;index:idx_tenant_decisions" json:"tenant_id"`
	ProductID string `gorm:"size:50;not null" json:"product_id"`

	OldPrice       float64  `gorm:"type:decimal(10,2);not null" json:"old_price"`
	SuggestedPrice float64  `gorm:"type:decimal(10,2);not null" json:"suggested_price"`
	FinalPrice     *float64 `gorm:"type:decimal(10,2)" json:"final_price,omitempty"`

	Strategy  string  `gorm:"size:50" json:"strategy"`   // undercut, match, premium, hold
	RiskLevel string  `gorm:"size:20" json:"risk_level"` // low, medium, high
	MarginPct float64 `gorm:"type:decimal(5,2)" json:"margin_pct"`

	ActionTaken string `gorm:"size:50;index" json:"action_taken"` // updated, skipped, failed, pending
	Reasoning   string `gorm:"type:text" json:"reasoning"`

	DecidedAt  time.Time  `gorm:"index:idx_tenant_decisions;index" json:"decided_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

// TableName specifies the table name for PricingDecision
func (PricingDecision) TableName() string {
	return "pricing_decisions"
}

// OptimizationRun is the history record of one coordinator execution.
// The per-tenant lease guarantees at most one row in status running per
// tenant at any instant.
type OptimizationRun struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID string `gorm:"size:50;not null;index:idx_tenant_runs" json:"tenant_id"`

	RunType string `gorm:"size:50;default:scheduled" json:"run_type"`
	Status  string `gorm:"size:50;default:running;index" json:"status"`

	ProductsAnalyzed int `gorm:"default:0" json:"products_analyzed"`
	ProductsUpdated  int `gorm:"default:0" json:"products_updated"`
	ProductsSkipped  int `gorm:"default:0" json:"products_skipped"`
	CompetitorsFound int `gorm:"default:0" json:"competitors_found"`

	DurationSeconds int    `json:"duration_seconds"`
	ErrorMessage    string `gorm:"type:text" json:"error_message,omitempty"`

	StartedAt   time.Time  `gorm:"index:idx_tenant_runs;index" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for OptimizationRun
func (OptimizationRun) TableName() string {
	return "optimization_runs"
}

// ActivityLogEntry is an append-only audit event. Metadata holds a marshaled
// JSON object.
type ActivityLogEntry struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID string `gorm:"size:50;not null;index:idx_tenant_activity" json:"tenant_id"`

	ActivityType string `gorm:"size:100;not null;index" json:"activity_type"`
	Description  string `gorm:"type:text" json:"description"`
	Metadata     string `gorm:"type:text" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_tenant_activity;index" json:"created_at"`
}

// TableName specifies the table name for ActivityLogEntry
func (ActivityLogEntry) TableName() string {
	return "activity_logs"
}

// TokenRecord holds one tenant's OAuth credential pair. ExpiresAt only ever
// advances on refresh; the record is invalidated (tenant deactivated) on an
// unrecoverable auth failure.
type TokenRecord struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID string `gorm:"size:50;uniqueIndex;not null" json:"tenant_id"`

	AccessToken  string    `gorm:"type:text;not null" json:"-"`
	RefreshToken string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for TokenRecord
func (TokenRecord) TableName() string {
	return "token_records"
}

// IsExpiringWithin reports whether the access token expires inside the given
// horizon measured from now.
func (tr *TokenRecord) IsExpiringWithin(now time.Time, horizon time.Duration) bool {
	return tr.ExpiresAt.Before(now.Add(horizon))
}
