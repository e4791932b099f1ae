// Package database provides connection management and per-concern
// repositories for the salla-repricer multi-tenant optimization service.
//
// This package includes:
//   - GORM/PostgreSQL connection management and schema migration
//   - A pooled database/sql connection for raw aggregate queries
//   - Typed error wrappers shared by all repositories
//
// Data Models:
//
//	All data models (Tenant, Product, CompetitorQuote, PricingDecision,
//	OptimizationRun, ActivityLogEntry, TokenRecord) are defined in the
//	models_pkg package to avoid circular import dependencies. Repositories
//	live in the tenants, catalog, and audit sub-packages; every query they
//	issue is scoped by tenant id.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "salla-repricer/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host string, port int, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// InitSchema migrates all tables
func (d *Database) InitSchema() error {
	err := d.db.AutoMigrate(
		&models.Tenant{},
		&models.Product{},
		&models.CompetitorQuote{},
		&models.PricingDecision{},
		&models.OptimizationRun{},
		&models.ActivityLogEntry{},
		&models.TokenRecord{},
	)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ============================================================================
// Backward Compatibility Type Aliases
// ============================================================================

// These type aliases let callers import entity types from the database
// package directly instead of reaching into models_pkg.

type Tenant = models.Tenant
type Product = models.Product
type CompetitorQuote = models.CompetitorQuote
type PricingDecision = models.PricingDecision
type OptimizationRun = models.OptimizationRun
type ActivityLogEntry = models.ActivityLogEntry
type TokenRecord = models.TokenRecord
