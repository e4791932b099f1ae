package market

import (
	"context"
	"fmt"
	"time"

	models "salla-repricer/database/models_pkg"
	"salla-repricer/guard"
	"salla-repricer/store"
)

// competitorLimit caps how many quotes one product search contributes.
const competitorLimit = 10

// TokenSource supplies a usable access token for store admin calls.
type TokenSource interface {
	EnsureFresh(ctx context.Context, tenantID string) (*models.TokenRecord, error)
}

// Provider is the market-intelligence surface consumed by the optimizer:
// catalog discovery through the store admin API and competitor search
// through the public product search. Both calls go through the tenant's
// breaker and rate limiter, keyed by their own target, so discovery
// failures trip the same store-API breaker the executor consults and a
// sick search endpoint never blocks the store API.
type Provider struct {
	storeAPI *store.Client
	search   *Client
	tokens   TokenSource
	breakers *guard.BreakerRegistry
	limiter  *guard.RateLimiter
}

func NewProvider(storeAPI *store.Client, search *Client, tokens TokenSource, breakers *guard.BreakerRegistry, limiter *guard.RateLimiter) *Provider {
	return &Provider{
		storeAPI: storeAPI,
		search:   search,
		tokens:   tokens,
		breakers: breakers,
		limiter:  limiter,
	}
}

// Discover lists the tenant's current catalog from the store API and maps
// it onto tracked product records. Products with a non-positive price are
// dropped, matching how the store reports drafts and unpriced variants.
func (p *Provider) Discover(ctx context.Context, tenant *models.Tenant) ([]models.Product, error) {
	token, err := p.tokens.EnsureFresh(ctx, tenant.TenantID)
	if err != nil {
		return nil, fmt.Errorf("discovery needs credentials: %w", err)
	}

	var listed []store.StoreProduct
	breaker := p.breakers.Get(tenant.TenantID, guard.TargetStoreAPI)
	callErr := breaker.Call(func() error {
		if werr := p.limiter.Wait(ctx, tenant.TenantID, guard.TargetStoreAPI); werr != nil {
			return werr
		}
		var lerr error
		listed, lerr = p.storeAPI.ListProducts(ctx, token.AccessToken)
		return lerr
	})
	if callErr != nil {
		return nil, fmt.Errorf("product discovery failed: %w", callErr)
	}

	products := make([]models.Product, 0, len(listed))
	for _, sp := range listed {
		if sp.Price.Amount <= 0 {
			continue
		}
		products = append(products, models.Product{
			TenantID:     tenant.TenantID,
			ProductID:    sp.ID,
			Name:         sp.Name,
			Category:     sp.Category,
			SKU:          sp.SKU,
			CurrentPrice: sp.Price.Amount,
			CostPrice:    sp.CostPrice,
			IsTracked:    true,
		})
	}
	return products, nil
}

// Search finds competitor quotes for one product. Callers treat any error
// as zero quotes; a failed search never fails a run.
func (p *Provider) Search(ctx context.Context, product *models.Product) ([]models.CompetitorQuote, error) {
	var hits []Quote
	breaker := p.breakers.Get(product.TenantID, guard.TargetMarketSearch)
	callErr := breaker.Call(func() error {
		if werr := p.limiter.Wait(ctx, product.TenantID, guard.TargetMarketSearch); werr != nil {
			return werr
		}
		var serr error
		hits, serr = p.search.Search(ctx, product.Name, competitorLimit)
		return serr
	})
	if callErr != nil {
		return nil, callErr
	}

	observedAt := time.Now().UTC()
	quotes := make([]models.CompetitorQuote, 0, len(hits))
	for _, hit := range hits {
		quotes = append(quotes, models.CompetitorQuote{
			TenantID:   product.TenantID,
			ProductID:  product.ProductID,
			Source:     hit.Source,
			SourceURL:  hit.SourceURL,
			Price:      hit.Price,
			Confidence: hit.Confidence,
			IsValid:    hit.IsValid,
			ObservedAt: observedAt,
		})
	}
	return quotes, nil
}
