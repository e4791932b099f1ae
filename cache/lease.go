package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// LeaseManager hands out TTL-bound exclusivity leases keyed by tenant id.
// Acquisition never blocks: a busy tenant is reported busy, not queued.
// The TTL means a crashed holder's lease self-expires and the tenant becomes
// schedulable again without manual intervention.
//
// Backed by Redis (SET NX PX) when configured so exclusivity holds across
// processes; a Redis error mid-flight reports busy rather than risking a
// second holder. Without Redis an in-process table backs the leases.
type LeaseManager struct {
	redis *RedisClient

	mu    sync.Mutex
	local map[string]localLease
}

type localLease struct {
	owner     string
	expiresAt time.Time
}

// Lease is a held exclusivity token. The owner value guards release: only
// the acquirer can release, an expired-and-reacquired lease is left alone.
type Lease struct {
	TenantID string
	Owner    string
}

// releaseScript deletes the key only while we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewLeaseManager creates a lease manager. redisClient may be nil.
func NewLeaseManager(redisClient *RedisClient) *LeaseManager {
	return &LeaseManager{
		redis: redisClient,
		local: make(map[string]localLease),
	}
}

func leaseKey(tenantID string) string {
	return "repricer:lease:" + tenantID
}

// Acquire attempts to take the tenant's run lease for ttl. Returns the lease
// and true on success, or nil and false when another run holds it.
func (lm *LeaseManager) Acquire(ctx context.Context, tenantID string, ttl time.Duration) (*Lease, bool) {
	owner := uuid.NewString()

	if lm.redis != nil && lm.redis.Raw() != nil {
		ok, err := lm.redis.Raw().SetNX(ctx, leaseKey(tenantID), owner, ttl).Result()
		if err != nil {
			// Redis unreachable mid-flight: another process may still hold
			// the lease, so fail closed. The tenant is retried next sweep.
			logrus.Warnf("⚠️  Lease acquisition for %s failed, treating as busy: %v", tenantID, err)
			return nil, false
		}
		if !ok {
			return nil, false
		}
		return &Lease{TenantID: tenantID, Owner: owner}, true
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := time.Now()
	if held, ok := lm.local[tenantID]; ok && held.expiresAt.After(now) {
		return nil, false
	}
	lm.local[tenantID] = localLease{owner: owner, expiresAt: now.Add(ttl)}
	return &Lease{TenantID: tenantID, Owner: owner}, true
}

// Release returns the lease if it is still held by this owner
func (lm *LeaseManager) Release(ctx context.Context, lease *Lease) {
	if lease == nil {
		return
	}

	if lm.redis != nil && lm.redis.Raw() != nil {
		if _, err := releaseScript.Run(ctx, lm.redis.Raw(), []string{leaseKey(lease.TenantID)}, lease.Owner).Result(); err != nil {
			// The TTL reclaims the lease if the delete never lands.
			logrus.Warnf("⚠️  Lease release for %s failed, TTL will reclaim it: %v", lease.TenantID, err)
		}
		return
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if held, ok := lm.local[lease.TenantID]; ok && held.owner == lease.Owner {
		delete(lm.local, lease.TenantID)
	}
}
