// Package scheduler decides which tenants are due for an optimization run
// and distributes the work across a bounded worker pool. It also owns the
// periodic token-refresh and data-retention sweeps.
package scheduler

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// TenantRunner executes one optimization run for a tenant.
type TenantRunner interface {
	Run(ctx context.Context, tenantID, runType string) error
}

type job struct {
	tenantID string
	runType  string
}

// Pool is a bounded worker pool consuming tenant run jobs from a queue.
// Enqueue never blocks: a full queue or an already-queued tenant makes the
// enqueue a no-op. Exclusivity during execution is the coordinator lease's
// job; the pending set only keeps the queue free of duplicates.
type Pool struct {
	runner  TenantRunner
	jobs    chan job
	workers int

	mu      sync.Mutex
	pending map[string]bool

	wg sync.WaitGroup
}

// NewPool creates a worker pool
func NewPool(runner TenantRunner, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		runner:  runner,
		jobs:    make(chan job, queueSize),
		workers: workers,
		pending: make(map[string]bool),
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}
	log.Infof("👷 Worker pool started with %d workers", p.workers)
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.jobs:
			p.mu.Lock()
			delete(p.pending, j.tenantID)
			p.mu.Unlock()

			if err := p.runner.Run(ctx, j.tenantID, j.runType); err != nil {
				log.Errorf("❌ Worker %d: run for %s failed: %v", id, j.tenantID, err)
			}
		}
	}
}

// Enqueue queues a run for the tenant. Returns false when the tenant is
// already queued or the queue is full; neither case blocks the caller.
func (p *Pool) Enqueue(tenantID, runType string) bool {
	p.mu.Lock()
	if p.pending[tenantID] {
		p.mu.Unlock()
		log.Debugf("⏭️ Tenant %s already queued, skipping enqueue", tenantID)
		return false
	}
	p.pending[tenantID] = true
	p.mu.Unlock()

	select {
	case p.jobs <- job{tenantID: tenantID, runType: runType}:
		return true
	default:
		p.mu.Lock()
		delete(p.pending, tenantID)
		p.mu.Unlock()
		log.Warnf("⚠️ Job queue full, dropping run for %s", tenantID)
		return false
	}
}

// QueuedCount returns how many tenants are currently queued
func (p *Pool) QueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Wait blocks until all workers have exited after ctx cancellation
func (p *Pool) Wait() {
	p.wg.Wait()
}
