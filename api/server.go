// Package api is the HTTP trigger and read surface: tenant onboarding
// and settings, manual run triggers, run/decision/activity history, stats
// rollups and the websocket event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"salla-repricer/database"
	"salla-repricer/database/audit"
	"salla-repricer/database/catalog"
	"salla-repricer/database/tenants"
)

// RunTrigger enqueues a manual optimization run
type RunTrigger interface {
	TriggerRun(tenantID string) bool
}

// statsSource is the aggregate-rollup surface behind the stats endpoints.
type statsSource interface {
	GetTenantStats(tenantID string) (*database.TenantStats, error)
	GetPlatformStats() (*database.PlatformStats, error)
	Ping() error
}

// rollupCache holds recently computed stats rollups. Readers treat any
// error as a cache miss and recompute.
type rollupCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// statsCacheTTL bounds how stale a cached rollup may get
const statsCacheTTL = time.Minute

// Server handles HTTP API requests
type Server struct {
	tenantRepo  *tenants.Repository
	catalogRepo *catalog.Repository
	auditRepo   *audit.Repository
	stats       statsSource
	cache       rollupCache
	trigger     RunTrigger
	events      http.Handler
}

// NewServer creates a new API server instance. events may be nil when the
// websocket stream is disabled; cache may be nil when Redis is unavailable.
func NewServer(tenantRepo *tenants.Repository, catalogRepo *catalog.Repository, auditRepo *audit.Repository, stats statsSource, cache rollupCache, trigger RunTrigger, events http.Handler) *Server {
	return &Server{
		tenantRepo:  tenantRepo,
		catalogRepo: catalogRepo,
		auditRepo:   auditRepo,
		stats:       stats,
		cache:       cache,
		trigger:     trigger,
		events:      events,
	}
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Tenant onboarding and settings
	mux.HandleFunc("GET /api/tenants", s.handleListTenants)
	mux.HandleFunc("POST /api/tenants", s.handleCreateTenant)
	mux.HandleFunc("GET /api/tenants/{id}", s.handleGetTenant)
	mux.HandleFunc("PUT /api/tenants/{id}/settings", s.handleUpdateSettings)

	// Run trigger and history
	mux.HandleFunc("POST /api/tenants/{id}/optimize", s.handleTriggerOptimize)
	mux.HandleFunc("GET /api/tenants/{id}/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/tenants/{id}/decisions", s.handleListDecisions)
	mux.HandleFunc("GET /api/tenants/{id}/activity", s.handleListActivity)

	// Catalog
	mux.HandleFunc("GET /api/tenants/{id}/products", s.handleListProducts)
	mux.HandleFunc("PUT /api/tenants/{id}/products/{pid}/tracking", s.handleSetTracking)
	mux.HandleFunc("GET /api/tenants/{id}/products/{pid}/quotes", s.handleProductQuotes)

	// Stats rollups
	mux.HandleFunc("GET /api/tenants/{id}/stats", s.handleTenantStats)
	mux.HandleFunc("GET /api/stats", s.handlePlatformStats)

	// Run event stream
	if s.events != nil {
		mux.Handle("GET /api/events", s.events)
	}

	mux.HandleFunc("GET /api/health", s.handleHealth)

	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Infof("🚀 API server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debugf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.stats.Ping(); err != nil {
		log.Warnf("⚠️ Health check database ping failed: %v", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC(),
	})
}
