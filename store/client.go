package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client calls the Salla admin API. One client is shared by all tenants;
// the per-tenant access token is passed on every call.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Salla admin API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StoreProduct is one catalog item as the Salla API reports it
type StoreProduct struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	SKU   string `json:"sku"`
	Price struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"price"`
	CostPrice float64 `json:"cost_price"`
	Category  string  `json:"category"`
	Status    string  `json:"status"`
}

type listResponse struct {
	Success    bool           `json:"success"`
	Data       []StoreProduct `json:"data"`
	Pagination struct {
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_pages"`
	} `json:"pagination"`
}

// ListProducts retrieves the tenant's full catalog, following pagination
func (c *Client) ListProducts(ctx context.Context, accessToken string) ([]StoreProduct, error) {
	var all []StoreProduct

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/products?page=%d", c.baseURL, page)
		body, err := c.do(ctx, http.MethodGet, url, accessToken, nil)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode product list: %w", err)
		}
		all = append(all, resp.Data...)

		if resp.Pagination.TotalPages == 0 || resp.Pagination.CurrentPage >= resp.Pagination.TotalPages {
			break
		}
	}

	return all, nil
}

type updatePriceRequest struct {
	Price struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	} `json:"price"`
}

// UpdatePrice applies a new price to one product
func (c *Client) UpdatePrice(ctx context.Context, accessToken, productID string, newPrice float64) error {
	var req updatePriceRequest
	req.Price.Amount = newPrice
	req.Price.Currency = "SAR"

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal price update: %w", err)
	}

	url := fmt.Sprintf("%s/products/%s", c.baseURL, productID)
	_, err = c.do(ctx, http.MethodPut, url, accessToken, payload)
	return err
}

// do performs one authenticated request and converts non-2xx responses into
// classified APIErrors.
func (c *Client) do(ctx context.Context, method, url, accessToken string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("salla api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(raw),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, apiErr
	}

	return raw, nil
}

// errorMessage pulls the API's message field out of an error body, falling
// back to the raw body.
func errorMessage(raw []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}

// parseRetryAfter supports the delay-seconds form of the header
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
