package api

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"salla-repricer/database"
)

func (s *Server) handleTriggerOptimize(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")

	tenant, err := s.tenantRepo.Get(tenantID)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	if !tenant.IsActive {
		respondWithError(w, http.StatusConflict, "tenant is inactive", nil)
		return
	}

	running, err := s.auditRepo.GetRunningRun(tenantID)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	if running != nil {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "a run is already in progress",
			"run_id": running.ID,
		})
		return
	}

	if !s.trigger.TriggerRun(tenantID) {
		// Already queued or the queue is full; either way nothing new starts.
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"queued":  false,
			"message": "a run is already queued for this tenant",
		})
		return
	}

	log.Infof("▶️ Manual optimization triggered for %s", tenantID)
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued": true,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	limit := getIntParam(r, "limit", 20, 200)

	runs, err := s.auditRepo.ListRuns(tenantID, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	limit := getIntParam(r, "limit", 50, 500)
	productID := r.URL.Query().Get("product_id")
	action := r.URL.Query().Get("action")

	decisions, err := s.auditRepo.ListDecisions(tenantID, productID, action, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	limit := getIntParam(r, "limit", 50, 500)
	activityType := r.URL.Query().Get("type")

	entries, err := s.auditRepo.ListActivity(tenantID, activityType, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"activity": entries,
		"count":    len(entries),
	})
}

func tenantStatsKey(tenantID string) string {
	return "repricer:stats:tenant:" + tenantID
}

const platformStatsKey = "repricer:stats:platform"

func (s *Server) handleTenantStats(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")

	if _, err := s.tenantRepo.Get(tenantID); err != nil {
		respondRepoError(w, err)
		return
	}

	if s.cache != nil {
		var cached database.TenantStats
		if err := s.cache.Get(r.Context(), tenantStatsKey(tenantID), &cached); err == nil {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	stats, err := s.stats.GetTenantStats(tenantID)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	s.cacheRollup(r.Context(), tenantStatsKey(tenantID), stats)
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePlatformStats(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		var cached database.PlatformStats
		if err := s.cache.Get(r.Context(), platformStatsKey, &cached); err == nil {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	stats, err := s.stats.GetPlatformStats()
	if err != nil {
		respondRepoError(w, err)
		return
	}
	s.cacheRollup(r.Context(), platformStatsKey, stats)
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) cacheRollup(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, statsCacheTTL); err != nil {
		log.Debugf("stats cache write for %s failed: %v", key, err)
	}
}

// invalidateTenantStats drops a cached rollup whose inputs just changed
func (s *Server) invalidateTenantStats(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, tenantStatsKey(tenantID)); err != nil {
		log.Debugf("stats cache invalidation for %s failed: %v", tenantID, err)
	}
}
