package audit

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"salla-repricer/database"
	models "salla-repricer/database/models_pkg"
)

// Repository handles database operations for pricing decisions, optimization
// runs, and the activity log
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new audit repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ---------------------------------------------------------------------------
// Pricing decisions

// SaveDecision persists one computed recommendation
func (r *Repository) SaveDecision(d *models.PricingDecision) error {
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now().UTC()
	}
	return database.WrapDBError("SaveDecision", r.db.Create(d).Error)
}

// RecordOutcome stamps the execution result onto an existing decision.
// The recommendation fields themselves are immutable.
func (r *Repository) RecordOutcome(decisionID int64, action string, finalPrice *float64, executedAt time.Time) error {
	updates := map[string]interface{}{
		"action_taken": action,
		"executed_at":  executedAt,
	}
	if finalPrice != nil {
		updates["final_price"] = *finalPrice
	}
	res := r.db.Model(&models.PricingDecision{}).Where("id = ?", decisionID).Updates(updates)
	if res.Error != nil {
		return database.WrapDBError("RecordOutcome", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundError("pricing decision", decisionID)
	}
	return nil
}

// ListDecisions retrieves a tenant's decisions with optional filters
func (r *Repository) ListDecisions(tenantID, productID, action string, limit int) ([]models.PricingDecision, error) {
	var list []models.PricingDecision
	query := r.db.Where("tenant_id = ?", tenantID).Order("decided_at DESC")
	if productID != "" {
		query = query.Where("product_id = ?", productID)
	}
	if action != "" {
		query = query.Where("action_taken = ?", action)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, database.WrapDBError("ListDecisions", err)
	}
	return list, nil
}

// ---------------------------------------------------------------------------
// Optimization runs

// CreateRun inserts a run row in status running
func (r *Repository) CreateRun(run *models.OptimizationRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Status = models.RunStatusRunning
	return database.WrapDBError("CreateRun", r.db.Create(run).Error)
}

// FinalizeRun closes a run with its outcome and statistics
func (r *Repository) FinalizeRun(run *models.OptimizationRun) error {
	now := time.Now().UTC()
	if run.CompletedAt == nil {
		run.CompletedAt = &now
	}
	run.DurationSeconds = int(run.CompletedAt.Sub(run.StartedAt).Seconds())
	err := r.db.Model(&models.OptimizationRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":            run.Status,
		"completed_at":      run.CompletedAt,
		"duration_seconds":  run.DurationSeconds,
		"products_analyzed": run.ProductsAnalyzed,
		"products_updated":  run.ProductsUpdated,
		"products_skipped":  run.ProductsSkipped,
		"competitors_found": run.CompetitorsFound,
		"error_message":     run.ErrorMessage,
	}).Error
	return database.WrapDBError("FinalizeRun", err)
}

// GetRunningRun returns the tenant's run currently in status running, or nil
func (r *Repository) GetRunningRun(tenantID string) (*models.OptimizationRun, error) {
	var run models.OptimizationRun
	err := r.db.Where("tenant_id = ? AND status = ?", tenantID, models.RunStatusRunning).
		Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetRunningRun", err)
	}
	return &run, nil
}

// ListRuns retrieves a tenant's run history, newest first
func (r *Repository) ListRuns(tenantID string, limit int) ([]models.OptimizationRun, error) {
	var list []models.OptimizationRun
	query := r.db.Where("tenant_id = ?", tenantID).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, database.WrapDBError("ListRuns", err)
	}
	return list, nil
}

// DeleteRunsBefore removes finished runs started before the cutoff
func (r *Repository) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("started_at < ? AND status <> ?", cutoff, models.RunStatusRunning).
		Delete(&models.OptimizationRun{})
	if res.Error != nil {
		return 0, database.WrapDBError("DeleteRunsBefore", res.Error)
	}
	return res.RowsAffected, nil
}

// ---------------------------------------------------------------------------
// Activity log

// LogActivity appends an audit event. Metadata may be nil.
func (r *Repository) LogActivity(tenantID, activityType, description string, metadata map[string]interface{}) error {
	entry := models.ActivityLogEntry{
		TenantID:     tenantID,
		ActivityType: activityType,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return database.WrapDBError("LogActivity marshal", err)
		}
		entry.Metadata = string(raw)
	}
	return database.WrapDBError("LogActivity", r.db.Create(&entry).Error)
}

// ListActivity retrieves a tenant's audit trail, newest first
func (r *Repository) ListActivity(tenantID, activityType string, limit int) ([]models.ActivityLogEntry, error) {
	var list []models.ActivityLogEntry
	query := r.db.Where("tenant_id = ?", tenantID).Order("created_at DESC")
	if activityType != "" {
		query = query.Where("activity_type = ?", activityType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, database.WrapDBError("ListActivity", err)
	}
	return list, nil
}

// DeleteActivityBefore removes audit entries created before the cutoff
func (r *Repository) DeleteActivityBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.ActivityLogEntry{})
	if res.Error != nil {
		return 0, database.WrapDBError("DeleteActivityBefore", res.Error)
	}
	return res.RowsAffected, nil
}
