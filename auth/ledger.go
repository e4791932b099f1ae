// Package auth owns the per-tenant OAuth credential lifecycle: storage,
// proactive refresh, and deactivation of tenants whose credentials are
// unrecoverable.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	models "salla-repricer/database/models_pkg"
	"salla-repricer/guard"
)

// Refresher is the OAuth exchange the ledger depends on
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenData, error)
}

// tenantTokens is the tenant-repo surface the ledger needs.
type tenantTokens interface {
	GetToken(tenantID string) (*models.TokenRecord, error)
	RotateToken(tenantID, accessToken, refreshToken string, expiresAt time.Time) error
	Deactivate(tenantID string) error
	ListTokensExpiringBefore(threshold time.Time) ([]models.TokenRecord, error)
}

// activityLog records token lifecycle events in the audit trail.
type activityLog interface {
	LogActivity(tenantID, activityType, description string, metadata map[string]interface{}) error
}

// Ledger manages every tenant's token record. All state lives in the
// repository; the ledger itself is stateless and safe for concurrent use.
// The OAuth exchange runs under the tenant's breaker and rate limiter so a
// flapping token endpoint is backed off like any other external target.
type Ledger struct {
	oauth    Refresher
	tenants  tenantTokens
	audit    activityLog
	breakers *guard.BreakerRegistry
	limiter  *guard.RateLimiter
	horizon  time.Duration
	now      func() time.Time
}

// NewLedger creates a token ledger. horizon is how far ahead of expiry the
// proactive sweep refreshes.
func NewLedger(oauth Refresher, tenantRepo tenantTokens, auditRepo activityLog, breakers *guard.BreakerRegistry, limiter *guard.RateLimiter, horizon time.Duration) *Ledger {
	return &Ledger{
		oauth:    oauth,
		tenants:  tenantRepo,
		audit:    auditRepo,
		breakers: breakers,
		limiter:  limiter,
		horizon:  horizon,
		now:      time.Now,
	}
}

// Get returns the tenant's current token record
func (l *Ledger) Get(tenantID string) (*models.TokenRecord, error) {
	return l.tenants.GetToken(tenantID)
}

// EnsureFresh returns a token record valid for at least the next few
// minutes, refreshing first when the stored one is expired or about to be.
func (l *Ledger) EnsureFresh(ctx context.Context, tenantID string) (*models.TokenRecord, error) {
	record, err := l.tenants.GetToken(tenantID)
	if err != nil {
		return nil, err
	}
	if !record.IsExpiringWithin(l.now(), 5*time.Minute) {
		return record, nil
	}
	return l.Refresh(ctx, tenantID)
}

// Refresh rotates the tenant's credential pair. On an unrecoverable auth
// failure the tenant is deactivated and excluded from all future scheduling;
// on a transient failure the record is left untouched for the next sweep.
func (l *Ledger) Refresh(ctx context.Context, tenantID string) (*models.TokenRecord, error) {
	record, err := l.tenants.GetToken(tenantID)
	if err != nil {
		return nil, err
	}

	var data *TokenData
	breaker := l.breakers.Get(tenantID, guard.TargetOAuth)
	callErr := breaker.Call(func() error {
		if werr := l.limiter.Wait(ctx, tenantID, guard.TargetOAuth); werr != nil {
			return werr
		}
		var rerr error
		data, rerr = l.oauth.Refresh(ctx, record.RefreshToken)
		return rerr
	})
	if callErr != nil {
		var authErr *AuthError
		if errors.As(callErr, &authErr) {
			l.deactivate(tenantID, authErr)
			return nil, callErr
		}
		logrus.Warnf("⚠️  Token refresh for %s failed transiently, will retry next sweep: %v", tenantID, callErr)
		return nil, callErr
	}

	if err := l.tenants.RotateToken(tenantID, data.AccessToken, data.RefreshToken, data.ExpiresAt); err != nil {
		return nil, err
	}

	expiresIn := int64(time.Until(data.ExpiresAt).Seconds())
	if err := l.audit.LogActivity(tenantID, "token_refreshed", "OAuth token refreshed successfully",
		map[string]interface{}{"expires_in": expiresIn}); err != nil {
		logrus.Warnf("⚠️  Failed to log token refresh for %s: %v", tenantID, err)
	}

	logrus.Infof("✅ Token refreshed for tenant %s, expires %s", tenantID, data.ExpiresAt.Format(time.RFC3339))
	return l.tenants.GetToken(tenantID)
}

func (l *Ledger) deactivate(tenantID string, authErr *AuthError) {
	logrus.Errorf("❌ Unrecoverable auth failure for tenant %s, deactivating: %v", tenantID, authErr)

	if err := l.tenants.Deactivate(tenantID); err != nil {
		logrus.Errorf("❌ Failed to deactivate tenant %s: %v", tenantID, err)
	}
	if err := l.audit.LogActivity(tenantID, "auth_failure", "Token refresh rejected; tenant deactivated pending re-onboarding",
		map[string]interface{}{"status": authErr.Status, "message": authErr.Message}); err != nil {
		logrus.Warnf("⚠️  Failed to log auth failure for %s: %v", tenantID, err)
	}
}

// SweepExpiring proactively refreshes every active tenant whose token
// expires within the horizon. Returns refresh and failure counts.
func (l *Ledger) SweepExpiring(ctx context.Context) (refreshed, failed int) {
	threshold := l.now().Add(l.horizon)
	records, err := l.tenants.ListTokensExpiringBefore(threshold)
	if err != nil {
		logrus.Errorf("❌ Token sweep query failed: %v", err)
		return 0, 0
	}

	if len(records) == 0 {
		return 0, 0
	}
	logrus.Infof("🔄 Token sweep: %d tokens expiring within %s", len(records), l.horizon)

	for _, record := range records {
		if ctx.Err() != nil {
			return refreshed, failed
		}
		if _, err := l.Refresh(ctx, record.TenantID); err != nil {
			failed++
			continue
		}
		refreshed++
	}

	logrus.Infof("✅ Token sweep complete: %d refreshed, %d failed", refreshed, failed)
	return refreshed, failed
}
