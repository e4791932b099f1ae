package tenants

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"salla-repricer/database"
	models "salla-repricer/database/models_pkg"
)

// Repository handles database operations for tenants and their token records
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new tenants repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create onboards a new tenant together with its initial token record.
// Both rows are written in one transaction so a tenant never exists without
// credentials.
func (r *Repository) Create(tenant *models.Tenant, token *models.TokenRecord) error {
	if tenant.TenantID == "" {
		return database.NewValidationError("tenant_id", "must not be empty")
	}
	if tenant.MinMarginPct <= 0 {
		return database.NewValidationError("min_margin_pct", "must be > 0")
	}
	if tenant.CadenceHours <= 0 {
		return database.NewValidationError("cadence_hours", "must be > 0")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return database.WrapDBError("Create tenant", err)
		}
		token.TenantID = tenant.TenantID
		if err := tx.Create(token).Error; err != nil {
			return database.WrapDBError("Create token record", err)
		}
		return nil
	})
}

// Get retrieves a tenant by its external id
func (r *Repository) Get(tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.Where("tenant_id = ?", tenantID).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.NewNotFoundError("tenant", tenantID)
	}
	if err != nil {
		return nil, database.WrapDBError("Get tenant", err)
	}
	return &tenant, nil
}

// ListActive returns all active tenants
func (r *Repository) ListActive() ([]models.Tenant, error) {
	var list []models.Tenant
	if err := r.db.Where("is_active = ?", true).Order("tenant_id").Find(&list).Error; err != nil {
		return nil, database.WrapDBError("ListActive", err)
	}
	return list, nil
}

// ListAll returns every tenant, active or not
func (r *Repository) ListAll() ([]models.Tenant, error) {
	var list []models.Tenant
	if err := r.db.Order("tenant_id").Find(&list).Error; err != nil {
		return nil, database.WrapDBError("ListAll", err)
	}
	return list, nil
}

// UpdateSettings applies the tenant-configurable policy fields
func (r *Repository) UpdateSettings(tenantID string, minMarginPct float64, mode string, cadenceHours int, riskTolerance string) error {
	if minMarginPct <= 0 {
		return database.NewValidationError("min_margin_pct", "must be > 0")
	}
	if cadenceHours <= 0 {
		return database.NewValidationError("cadence_hours", "must be > 0")
	}
	switch mode {
	case models.AutomationManual, models.AutomationSemi, models.AutomationFull:
	default:
		return database.NewValidationError("automation_mode", fmt.Sprintf("unknown mode %q", mode))
	}

	res := r.db.Model(&models.Tenant{}).Where("tenant_id = ?", tenantID).Updates(map[string]interface{}{
		"min_margin_pct":  minMarginPct,
		"automation_mode": mode,
		"cadence_hours":   cadenceHours,
		"risk_tolerance":  riskTolerance,
	})
	if res.Error != nil {
		return database.WrapDBError("UpdateSettings", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundError("tenant", tenantID)
	}
	return nil
}

// Deactivate marks a tenant inactive. Used on unrecoverable auth failure;
// the tenant row and its history are kept for re-onboarding.
func (r *Repository) Deactivate(tenantID string) error {
	res := r.db.Model(&models.Tenant{}).Where("tenant_id = ?", tenantID).Update("is_active", false)
	if res.Error != nil {
		return database.WrapDBError("Deactivate", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundError("tenant", tenantID)
	}
	return nil
}

// TouchLastRun stamps the tenant's last optimization run time
func (r *Repository) TouchLastRun(tenantID string, at time.Time) error {
	err := r.db.Model(&models.Tenant{}).Where("tenant_id = ?", tenantID).Update("last_run_at", at).Error
	return database.WrapDBError("TouchLastRun", err)
}

// GetToken retrieves the token record for a tenant
func (r *Repository) GetToken(tenantID string) (*models.TokenRecord, error) {
	var record models.TokenRecord
	err := r.db.Where("tenant_id = ?", tenantID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.NewNotFoundError("token record", tenantID)
	}
	if err != nil {
		return nil, database.WrapDBError("GetToken", err)
	}
	return &record, nil
}

// RotateToken replaces the credential pair after a successful refresh.
// ExpiresAt must only ever advance; a refresh response that would move it
// backwards is rejected.
func (r *Repository) RotateToken(tenantID, accessToken, refreshToken string, expiresAt time.Time) error {
	current, err := r.GetToken(tenantID)
	if err != nil {
		return err
	}
	if !expiresAt.After(current.ExpiresAt) {
		return database.NewValidationError("expires_at", "must advance on refresh")
	}

	err = r.db.Model(&models.TokenRecord{}).Where("tenant_id = ?", tenantID).Updates(map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_at":    expiresAt,
	}).Error
	return database.WrapDBError("RotateToken", err)
}

// ListTokensExpiringBefore returns token records of active tenants whose
// expiry falls before the given threshold.
func (r *Repository) ListTokensExpiringBefore(threshold time.Time) ([]models.TokenRecord, error) {
	var records []models.TokenRecord
	err := r.db.
		Joins("JOIN tenants ON tenants.tenant_id = token_records.tenant_id").
		Where("tenants.is_active = ? AND token_records.expires_at < ?", true, threshold).
		Find(&records).Error
	if err != nil {
		return nil, database.WrapDBError("ListTokensExpiringBefore", err)
	}
	return records, nil
}
