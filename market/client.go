package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Price bounds outside which a search hit is treated as noise.
const (
	minSanePrice = 1.0
	maxSanePrice = 50000.0
)

// validThreshold is the minimum confidence for a quote to count as usable.
const validThreshold = 0.3

// Quote is a single competitor price observation returned by the
// public product search.
type Quote struct {
	Source     string
	SourceURL  string
	Title      string
	Price      float64
	Currency   string
	Confidence float64
	IsValid    bool
}

// Client queries the platform's public product search for competitor
// listings of a product. Results are scored for confidence so callers
// can drop low-quality matches.
type Client struct {
	searchURL  string
	httpClient *http.Client
}

func NewClient(searchURL string) *Client {
	return &Client{
		searchURL: strings.TrimRight(searchURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type searchResponse struct {
	Data []searchHit `json:"data"`
}

type searchHit struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Price struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"price"`
	Store struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	} `json:"store"`
}

// Search looks up competitor listings for the given product name.
// Hits are scored and sorted by confidence; at most limit quotes are
// returned. A failed or malformed search returns an error so the
// caller can degrade to zero quotes.
func (c *Client) Search(ctx context.Context, productName string, limit int) ([]Quote, error) {
	if strings.TrimSpace(productName) == "" {
		return nil, fmt.Errorf("empty product name")
	}
	if limit <= 0 {
		limit = 10
	}

	endpoint := fmt.Sprintf("%s?q=%s&per_page=%d",
		c.searchURL, url.QueryEscape(productName), limit*2)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("market search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	quotes := make([]Quote, 0, len(parsed.Data))
	for _, hit := range parsed.Data {
		q := scoreHit(hit, productName)
		if q.Source == "" || q.Price <= 0 {
			continue
		}
		quotes = append(quotes, q)
	}

	sortByConfidence(quotes)
	if len(quotes) > limit {
		quotes = quotes[:limit]
	}

	log.Infof("🔍 Market search for %q returned %d quotes", productName, len(quotes))
	return quotes, nil
}

// scoreHit turns a raw search hit into a scored quote. Confidence is
// built up from name overlap with the query, price sanity and the
// listing currency; anything below the validity threshold is kept but
// flagged invalid.
func scoreHit(hit searchHit, productName string) Quote {
	source := hit.Store.Name
	if source == "" {
		source = hit.Store.Domain
	}

	score := 0.5 * tokenOverlap(productName, hit.Name)
	if hit.Price.Amount >= minSanePrice && hit.Price.Amount <= maxSanePrice {
		score += 0.3
	}
	if hit.Price.Currency == "" || strings.EqualFold(hit.Price.Currency, "SAR") {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}

	return Quote{
		Source:     source,
		SourceURL:  hit.URL,
		Title:      hit.Name,
		Price:      hit.Price.Amount,
		Currency:   hit.Price.Currency,
		Confidence: score,
		IsValid:    score >= validThreshold,
	}
}

// tokenOverlap returns the fraction of query tokens that appear in the
// candidate title. Matching is case-insensitive on whole tokens.
func tokenOverlap(query, title string) float64 {
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(queryTokens) == 0 {
		return 0
	}

	titleTokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(title)) {
		titleTokens[tok] = true
	}

	matched := 0
	for _, tok := range queryTokens {
		if titleTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func sortByConfidence(quotes []Quote) {
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Confidence > quotes[j].Confidence
	})
}
