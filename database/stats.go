package database

import (
	"time"
)

// TenantStats is the aggregate dashboard rollup for one tenant
type TenantStats struct {
	TenantID         string     `json:"tenant_id"`
	TrackedProducts  int        `json:"tracked_products"`
	TotalProducts    int        `json:"total_products"`
	DecisionsLast30d int        `json:"decisions_last_30d"`
	UpdatedLast30d   int        `json:"updated_last_30d"`
	SkippedLast30d   int        `json:"skipped_last_30d"`
	FailedLast30d    int        `json:"failed_last_30d"`
	QuotesLast30d    int        `json:"quotes_last_30d"`
	CompletedRuns    int        `json:"completed_runs"`
	FailedRuns       int        `json:"failed_runs"`
	AvgRunSeconds    float64    `json:"avg_run_seconds"`
	LastRunAt        *time.Time `json:"last_run_at,omitempty"`
}

// GetTenantStats computes the rollup with plain SQL. All subqueries are
// scoped by tenant id.
func (db *StatsDB) GetTenantStats(tenantID string) (*TenantStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -30)

	stats := &TenantStats{TenantID: tenantID}

	query := `
		SELECT
			(SELECT COUNT(*) FROM products WHERE tenant_id = $1 AND is_tracked = true),
			(SELECT COUNT(*) FROM products WHERE tenant_id = $1),
			(SELECT COUNT(*) FROM pricing_decisions WHERE tenant_id = $1 AND decided_at >= $2),
			(SELECT COUNT(*) FROM pricing_decisions WHERE tenant_id = $1 AND decided_at >= $2 AND action_taken = 'updated'),
			(SELECT COUNT(*) FROM pricing_decisions WHERE tenant_id = $1 AND decided_at >= $2 AND action_taken = 'skipped'),
			(SELECT COUNT(*) FROM pricing_decisions WHERE tenant_id = $1 AND decided_at >= $2 AND action_taken = 'failed'),
			(SELECT COUNT(*) FROM competitor_quotes WHERE tenant_id = $1 AND observed_at >= $2),
			(SELECT COUNT(*) FROM optimization_runs WHERE tenant_id = $1 AND status = 'completed'),
			(SELECT COUNT(*) FROM optimization_runs WHERE tenant_id = $1 AND status = 'failed'),
			(SELECT COALESCE(AVG(duration_seconds), 0) FROM optimization_runs WHERE tenant_id = $1 AND status = 'completed'),
			(SELECT MAX(started_at) FROM optimization_runs WHERE tenant_id = $1)
	`

	var lastRun *time.Time
	err := db.conn.QueryRow(query, tenantID, cutoff).Scan(
		&stats.TrackedProducts,
		&stats.TotalProducts,
		&stats.DecisionsLast30d,
		&stats.UpdatedLast30d,
		&stats.SkippedLast30d,
		&stats.FailedLast30d,
		&stats.QuotesLast30d,
		&stats.CompletedRuns,
		&stats.FailedRuns,
		&stats.AvgRunSeconds,
		&lastRun,
	)
	if err != nil {
		return nil, WrapDBError("GetTenantStats", err)
	}
	stats.LastRunAt = lastRun

	return stats, nil
}

// PlatformStats is the cross-tenant operator rollup. It aggregates counts
// only; no tenant-owned payload data leaves its scope.
type PlatformStats struct {
	ActiveTenants   int `json:"active_tenants"`
	InactiveTenants int `json:"inactive_tenants"`
	RunningRuns     int `json:"running_runs"`
	RunsLast24h     int `json:"runs_last_24h"`
	FailuresLast24h int `json:"failures_last_24h"`
}

// GetPlatformStats computes the operator overview
func (db *StatsDB) GetPlatformStats() (*PlatformStats, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)

	stats := &PlatformStats{}
	query := `
		SELECT
			(SELECT COUNT(*) FROM tenants WHERE is_active = true),
			(SELECT COUNT(*) FROM tenants WHERE is_active = false),
			(SELECT COUNT(*) FROM optimization_runs WHERE status = 'running'),
			(SELECT COUNT(*) FROM optimization_runs WHERE started_at >= $1),
			(SELECT COUNT(*) FROM optimization_runs WHERE started_at >= $1 AND status = 'failed')
	`
	err := db.conn.QueryRow(query, cutoff).Scan(
		&stats.ActiveTenants,
		&stats.InactiveTenants,
		&stats.RunningRuns,
		&stats.RunsLast24h,
		&stats.FailuresLast24h,
	)
	if err != nil {
		return nil, WrapDBError("GetPlatformStats", err)
	}
	return stats, nil
}
