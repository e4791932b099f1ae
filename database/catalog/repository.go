package catalog

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"salla-repricer/database"
	models "salla-repricer/database/models_pkg"
)

// Repository handles database operations for products and competitor quotes
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new catalog repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertProduct creates or refreshes a product discovered in the tenant's
// store. Products are keyed (tenant_id, product_id) and never deleted.
func (r *Repository) UpsertProduct(p *models.Product) error {
	if p.TenantID == "" || p.ProductID == "" {
		return database.NewValidationError("product", "tenant_id and product_id are required")
	}
	if p.CurrentPrice < 0 {
		return database.NewValidationError("current_price", "must be >= 0")
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "category", "sku", "current_price", "cost_price", "updated_at",
		}),
	}).Create(p).Error
	return database.WrapDBError("UpsertProduct", err)
}

// GetProduct retrieves one product scoped by tenant
func (r *Repository) GetProduct(tenantID, productID string) (*models.Product, error) {
	var p models.Product
	err := r.db.Where("tenant_id = ? AND product_id = ?", tenantID, productID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, database.NewNotFoundError("product", productID)
	}
	if err != nil {
		return nil, database.WrapDBError("GetProduct", err)
	}
	return &p, nil
}

// ListTracked returns the tenant's tracked products ordered by product id so
// runs process them in a deterministic order.
func (r *Repository) ListTracked(tenantID string) ([]models.Product, error) {
	var list []models.Product
	err := r.db.Where("tenant_id = ? AND is_tracked = ?", tenantID, true).
		Order("product_id").Find(&list).Error
	if err != nil {
		return nil, database.WrapDBError("ListTracked", err)
	}
	return list, nil
}

// SetTracked toggles tracking without deleting the product row
func (r *Repository) SetTracked(tenantID, productID string, tracked bool) error {
	res := r.db.Model(&models.Product{}).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Update("is_tracked", tracked)
	if res.Error != nil {
		return database.WrapDBError("SetTracked", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundError("product", productID)
	}
	return nil
}

// SaveQuotes persists a batch of competitor observations for one product.
// Older quotes are left in place; readers pick the freshest by observed_at.
func (r *Repository) SaveQuotes(quotes []models.CompetitorQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	for i := range quotes {
		if quotes[i].Confidence < 0 || quotes[i].Confidence > 1 {
			return database.NewValidationError("confidence", "must be within [0,1]")
		}
		if quotes[i].ObservedAt.IsZero() {
			quotes[i].ObservedAt = time.Now().UTC()
		}
	}
	return database.WrapDBError("SaveQuotes", r.db.Create(&quotes).Error)
}

// ListQuotes returns the most recent quotes for a product, newest first
func (r *Repository) ListQuotes(tenantID, productID string, limit int) ([]models.CompetitorQuote, error) {
	var list []models.CompetitorQuote
	query := r.db.Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("observed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, database.WrapDBError("ListQuotes", err)
	}
	return list, nil
}

// DeleteQuotesBefore removes quotes last observed before the cutoff and
// returns the number deleted. Used by the retention sweep.
func (r *Repository) DeleteQuotesBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("observed_at < ?", cutoff).Delete(&models.CompetitorQuote{})
	if res.Error != nil {
		return 0, database.WrapDBError("DeleteQuotesBefore", res.Error)
	}
	return res.RowsAffected, nil
}
