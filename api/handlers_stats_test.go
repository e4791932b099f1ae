package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salla-repricer/database"
)

type fakeStats struct {
	platformCalls int
	pingErr       error
}

func (f *fakeStats) GetTenantStats(tenantID string) (*database.TenantStats, error) {
	return &database.TenantStats{TenantID: tenantID}, nil
}

func (f *fakeStats) GetPlatformStats() (*database.PlatformStats, error) {
	f.platformCalls++
	return &database.PlatformStats{ActiveTenants: 3}, nil
}

func (f *fakeStats) Ping() error {
	return f.pingErr
}

type memoryCache struct {
	entries map[string][]byte
	sets    int
	deletes []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return errMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.sets++
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, key string) error {
	m.deletes = append(m.deletes, key)
	delete(m.entries, key)
	return nil
}

var errMiss = assertErr{}

func TestPlatformStatsServedFromCache(t *testing.T) {
	stats := &fakeStats{}
	rollups := newMemoryCache()
	s := &Server{stats: stats, cache: rollups}

	get := func() *database.PlatformStats {
		w := httptest.NewRecorder()
		s.handlePlatformStats(w, httptest.NewRequest("GET", "/api/stats", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var got database.PlatformStats
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return &got
	}

	first := get()
	second := get()

	if stats.platformCalls != 1 {
		t.Errorf("rollup computed %d times, second read must hit the cache", stats.platformCalls)
	}
	if rollups.sets != 1 {
		t.Errorf("cache writes = %d, expected 1", rollups.sets)
	}
	if first.ActiveTenants != 3 || second.ActiveTenants != 3 {
		t.Errorf("responses = %+v / %+v", first, second)
	}
}

func TestPlatformStatsWithoutCache(t *testing.T) {
	stats := &fakeStats{}
	s := &Server{stats: stats}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		s.handlePlatformStats(w, httptest.NewRequest("GET", "/api/stats", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
	if stats.platformCalls != 2 {
		t.Errorf("rollup computed %d times, expected 2 with caching disabled", stats.platformCalls)
	}
}

func TestInvalidateTenantStatsDropsKey(t *testing.T) {
	rollups := newMemoryCache()
	rollups.entries[tenantStatsKey("tenant-1")] = []byte(`{"tenant_id":"tenant-1"}`)
	s := &Server{cache: rollups}

	s.invalidateTenantStats(context.Background(), "tenant-1")

	if _, ok := rollups.entries[tenantStatsKey("tenant-1")]; ok {
		t.Error("cached rollup survived invalidation")
	}
	if len(rollups.deletes) != 1 || rollups.deletes[0] != tenantStatsKey("tenant-1") {
		t.Errorf("deletes = %v", rollups.deletes)
	}
}

func TestHealthDegradedWhenDatabaseUnreachable(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := &Server{stats: &fakeStats{}}
		w := httptest.NewRecorder()
		s.handleHealth(w, httptest.NewRequest("GET", "/api/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("database down", func(t *testing.T) {
		s := &Server{stats: &fakeStats{pingErr: assertErr{}}}
		w := httptest.NewRecorder()
		s.handleHealth(w, httptest.NewRequest("GET", "/api/health", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", w.Code)
		}
		var body map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["status"] != "degraded" {
			t.Errorf("status field = %v", body["status"])
		}
	})
}
