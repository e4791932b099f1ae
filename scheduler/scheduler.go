package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"salla-repricer/config"
	models "salla-repricer/database/models_pkg"
)

// tenantLister is the tenant-repo surface the sweeps need.
type tenantLister interface {
	ListActive() ([]models.Tenant, error)
}

// tokenSweeper runs the proactive token refresh across active tenants.
type tokenSweeper interface {
	SweepExpiring(ctx context.Context) (refreshed, failed int)
}

// retentionStore deletes aged audit and market data.
type retentionStore interface {
	DeleteActivityBefore(cutoff time.Time) (int64, error)
	DeleteRunsBefore(cutoff time.Time) (int64, error)
}

// quoteStore prunes aged competitor quotes.
type quoteStore interface {
	DeleteQuotesBefore(cutoff time.Time) (int64, error)
}

// Scheduler owns the periodic triggers: the hourly cadence sweep, the
// coarse batch sweep, the token-refresh sweep and the retention sweep.
// Each sweep skips itself when a previous invocation is still running.
type Scheduler struct {
	tenants tenantLister
	ledger  tokenSweeper
	audit   retentionStore
	catalog quoteStore
	pool    *Pool
	cfg     config.OptimizerConfig
	now     func() time.Time
	done    chan bool

	cadenceBusy   atomic.Bool
	batchBusy     atomic.Bool
	tokenBusy     atomic.Bool
	retentionBusy atomic.Bool
}

// NewScheduler creates a scheduler
func NewScheduler(tenants tenantLister, ledger tokenSweeper, auditRepo retentionStore, catalogRepo quoteStore, pool *Pool, cfg config.OptimizerConfig) *Scheduler {
	return &Scheduler{
		tenants: tenants,
		ledger:  ledger,
		audit:   auditRepo,
		catalog: catalogRepo,
		pool:    pool,
		cfg:     cfg,
		now:     time.Now,
		done:    make(chan bool),
	}
}

// Start begins the periodic trigger loop. It blocks until Stop is called,
// so callers run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	log.Infof("⏰ Scheduler started (cadence %s, batch %s, tokens %s, retention %s)",
		s.cfg.CadenceSweepEvery, s.cfg.BatchSweepEvery, s.cfg.TokenSweepEvery, s.cfg.RetentionEvery)

	cadence := time.NewTicker(s.cfg.CadenceSweepEvery)
	batch := time.NewTicker(s.cfg.BatchSweepEvery)
	tokens := time.NewTicker(s.cfg.TokenSweepEvery)
	retention := time.NewTicker(s.cfg.RetentionEvery)
	defer cadence.Stop()
	defer batch.Stop()
	defer tokens.Stop()
	defer retention.Stop()

	// Refresh anything already near expiry before the first cadence tick.
	s.TokenSweep(ctx)

	for {
		select {
		case <-cadence.C:
			s.CadenceSweep()
		case <-batch.C:
			s.BatchSweep()
		case <-tokens.C:
			s.TokenSweep(ctx)
		case <-retention.C:
			s.RetentionSweep()
		case <-s.done:
			log.Info("⏰ Scheduler stopped")
			return
		case <-ctx.Done():
			log.Info("⏰ Scheduler stopped")
			return
		}
	}
}

// Stop stops the trigger loop
func (s *Scheduler) Stop() {
	s.done <- true
}

// TriggerRun enqueues a manual run for the tenant, bypassing the cadence
// predicate. The per-tenant lease still applies once a worker picks it up.
func (s *Scheduler) TriggerRun(tenantID string) bool {
	return s.pool.Enqueue(tenantID, models.RunTypeManual)
}

// CadenceSweep enqueues a run for every active tenant whose cadence
// interval has elapsed since its last run. Manual-mode tenants never
// qualify.
func (s *Scheduler) CadenceSweep() {
	if !s.cadenceBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.cadenceBusy.Store(false)

	tenants, err := s.tenants.ListActive()
	if err != nil {
		log.Errorf("❌ Cadence sweep failed to list tenants: %v", err)
		return
	}

	now := s.now()
	queued := 0
	for i := range tenants {
		if !tenants[i].NeedsRun(now) {
			continue
		}
		if s.pool.Enqueue(tenants[i].TenantID, models.RunTypeScheduled) {
			queued++
		}
	}
	log.Infof("⏰ Cadence sweep: %d of %d active tenants queued", queued, len(tenants))
}

// BatchSweep enqueues a run for every active non-manual tenant regardless
// of individual cadence. Coarse catch-all for tenants whose cadence runs
// were skipped.
func (s *Scheduler) BatchSweep() {
	if !s.batchBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.batchBusy.Store(false)

	tenants, err := s.tenants.ListActive()
	if err != nil {
		log.Errorf("❌ Batch sweep failed to list tenants: %v", err)
		return
	}

	queued := 0
	for i := range tenants {
		if tenants[i].AutomationMode == models.AutomationManual {
			continue
		}
		if s.pool.Enqueue(tenants[i].TenantID, models.RunTypeScheduled) {
			queued++
		}
	}
	log.Infof("⏰ Batch sweep: %d of %d active tenants queued", queued, len(tenants))
}

// TokenSweep proactively refreshes credentials near expiry
func (s *Scheduler) TokenSweep(ctx context.Context) {
	if !s.tokenBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.tokenBusy.Store(false)

	refreshed, failed := s.ledger.SweepExpiring(ctx)
	log.Infof("🔑 Token sweep: %d refreshed, %d failed", refreshed, failed)
}

// RetentionSweep deletes aged activity logs, competitor quotes and run
// records per the configured retention windows. Running runs are never
// deleted.
func (s *Scheduler) RetentionSweep() {
	if !s.retentionBusy.CompareAndSwap(false, true) {
		return
	}
	defer s.retentionBusy.Store(false)

	now := s.now()

	logs, err := s.audit.DeleteActivityBefore(now.AddDate(0, 0, -s.cfg.LogRetentionDays))
	if err != nil {
		log.Errorf("❌ Retention sweep failed on activity logs: %v", err)
	}
	quotes, err := s.catalog.DeleteQuotesBefore(now.AddDate(0, 0, -s.cfg.QuoteRetentionDays))
	if err != nil {
		log.Errorf("❌ Retention sweep failed on quotes: %v", err)
	}
	runs, err := s.audit.DeleteRunsBefore(now.AddDate(0, 0, -s.cfg.RunRetentionDays))
	if err != nil {
		log.Errorf("❌ Retention sweep failed on runs: %v", err)
	}

	log.Infof("🧹 Retention sweep: removed %d logs, %d quotes, %d runs", logs, quotes, runs)
}
