package api

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	models "salla-repricer/database/models_pkg"
)

// defaultTokenLifetime applies when onboarding omits the token expiry
const defaultTokenLifetime = 14 * 24 * time.Hour

type onboardRequest struct {
	TenantID    string `json:"tenant_id"`
	StoreName   string `json:"store_name"`
	StoreDomain string `json:"store_domain"`
	OwnerEmail  string `json:"owner_email"`

	MinMarginPct   float64 `json:"min_margin_pct"`
	AutomationMode string  `json:"automation_mode"`
	CadenceHours   int     `json:"cadence_hours"`
	RiskTolerance  string  `json:"risk_tolerance"`

	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Tenant
		err  error
	)
	if r.URL.Query().Get("include_inactive") == "true" {
		list, err = s.tenantRepo.ListAll()
	} else {
		list, err = s.tenantRepo.ListActive()
	}
	if err != nil {
		respondRepoError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tenants": list,
		"count":   len(list),
	})
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := s.tenantRepo.Get(r.PathValue("id"))
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tenant)
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "access_token and refresh_token are required", nil)
		return
	}

	// Policy defaults for fields onboarding omits
	if req.MinMarginPct == 0 {
		req.MinMarginPct = 10
	}
	if req.AutomationMode == "" {
		req.AutomationMode = models.AutomationManual
	}
	if req.CadenceHours == 0 {
		req.CadenceHours = 12
	}
	if req.RiskTolerance == "" {
		req.RiskTolerance = "low"
	}
	if !validAutomationMode(req.AutomationMode) {
		respondWithError(w, http.StatusBadRequest, "automation_mode must be manual, semi or full", nil)
		return
	}

	expiresAt := time.Now().UTC().Add(defaultTokenLifetime)
	if req.ExpiresAt != nil {
		expiresAt = req.ExpiresAt.UTC()
	}

	tenant := &models.Tenant{
		TenantID:       req.TenantID,
		StoreName:      req.StoreName,
		StoreDomain:    req.StoreDomain,
		OwnerEmail:     req.OwnerEmail,
		MinMarginPct:   req.MinMarginPct,
		AutomationMode: req.AutomationMode,
		CadenceHours:   req.CadenceHours,
		RiskTolerance:  req.RiskTolerance,
		IsActive:       true,
	}
	token := &models.TokenRecord{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    expiresAt,
	}

	if err := s.tenantRepo.Create(tenant, token); err != nil {
		respondRepoError(w, err)
		return
	}

	log.Infof("🏪 Tenant %s (%s) onboarded", tenant.TenantID, tenant.StoreName)
	respondJSON(w, http.StatusCreated, tenant)
}

type settingsRequest struct {
	MinMarginPct   float64 `json:"min_margin_pct"`
	AutomationMode string  `json:"automation_mode"`
	CadenceHours   int     `json:"cadence_hours"`
	RiskTolerance  string  `json:"risk_tolerance"`
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	// Omitted fields keep their current values
	current, err := s.tenantRepo.Get(tenantID)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	if req.MinMarginPct == 0 {
		req.MinMarginPct = current.MinMarginPct
	}
	if req.AutomationMode == "" {
		req.AutomationMode = current.AutomationMode
	}
	if req.CadenceHours == 0 {
		req.CadenceHours = current.CadenceHours
	}
	if req.RiskTolerance == "" {
		req.RiskTolerance = current.RiskTolerance
	}

	if err := s.tenantRepo.UpdateSettings(tenantID, req.MinMarginPct, req.AutomationMode, req.CadenceHours, req.RiskTolerance); err != nil {
		respondRepoError(w, err)
		return
	}

	tenant, err := s.tenantRepo.Get(tenantID)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tenant)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalogRepo.ListTracked(r.PathValue("id"))
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

type trackingRequest struct {
	Tracked *bool `json:"tracked"`
}

// handleSetTracking toggles a product in or out of the optimization set.
// Products are never deleted; an untracked product keeps its history.
func (s *Server) handleSetTracking(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	productID := r.PathValue("pid")

	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Tracked == nil {
		respondWithError(w, http.StatusBadRequest, "tracked is required", nil)
		return
	}

	if err := s.catalogRepo.SetTracked(tenantID, productID, *req.Tracked); err != nil {
		respondRepoError(w, err)
		return
	}
	// The tracked-product count feeds the stats rollup.
	s.invalidateTenantStats(r.Context(), tenantID)

	product, err := s.catalogRepo.GetProduct(tenantID, productID)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	log.Infof("📌 Product %s/%s tracking set to %v", tenantID, productID, *req.Tracked)
	respondJSON(w, http.StatusOK, product)
}

func (s *Server) handleProductQuotes(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("id")
	productID := r.PathValue("pid")
	limit := getIntParam(r, "limit", 20, 200)

	product, err := s.catalogRepo.GetProduct(tenantID, productID)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	quotes, err := s.catalogRepo.ListQuotes(tenantID, productID, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"product": product,
		"quotes":  quotes,
		"count":   len(quotes),
	})
}

func validAutomationMode(mode string) bool {
	switch mode {
	case models.AutomationManual, models.AutomationSemi, models.AutomationFull:
		return true
	}
	return false
}
