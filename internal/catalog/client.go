package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/TexasJeff75/hs360-backend/internal/obs"
	"github.com/TexasJeff75/hs360-backend/internal/resilience"
)

// ErrProductNotFound is returned when the commerce platform has no product
// with the requested identifier.
var ErrProductNotFound = errors.New("catalog: product not found")

// Product mirrors the commerce-platform product payload. Price is the base
// catalog price used when no contract rule applies; CostPrice feeds margin
// calculations.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	CostPrice decimal.Decimal `json:"costPrice"`
	Variants  []Variant       `json:"variants"`
}

// Variant describes a product variant. CostPrice is optional and overrides
// the product-level cost when present.
type Variant struct {
	ID        int64            `json:"id"`
	SKU       string           `json:"sku"`
	CostPrice *decimal.Decimal `json:"costPrice,omitempty"`
}

// Client fetches product data from the commerce-platform REST API with
// retry, circuit breaking and Redis caching.
type Client struct {
	baseURL   string
	authToken string
	http      resilience.HTTPClient
	cache     *Cache
	logger    zerolog.Logger
}

// ClientConfig groups Client dependencies.
type ClientConfig struct {
	BaseURL     string
	AuthToken   string
	HTTPClient  *http.Client
	Breaker     *resilience.Breaker
	MaxAttempts int
	BaseBackoff time.Duration
	Timeout     time.Duration
	Cache       *Cache
	Logger      zerolog.Logger
}

// NewClient constructs a catalog client.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("catalog: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:   base,
		authToken: strings.TrimSpace(cfg.AuthToken),
		http: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     cfg.Breaker,
			MaxAttempts: cfg.MaxAttempts,
			BaseBackoff: cfg.BaseBackoff,
			Jitter:      0.2,
			Timeout:     cfg.Timeout,
		},
		cache:  cfg.Cache,
		logger: cfg.Logger,
	}, nil
}

// GetProduct returns the product with the given identifier. Results are
// cached; cache failures are logged and ignored.
func (c *Client) GetProduct(ctx context.Context, id int64) (Product, error) {
	key := productCacheKey(id)
	var cached Product
	if ok, err := c.cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	var product Product
	if err := c.getJSON(ctx, "/products/"+strconv.FormatInt(id, 10), &product); err != nil {
		return Product{}, err
	}
	if err := c.cache.SetJSON(ctx, key, product); err != nil {
		c.logger.Warn().Err(err).Int64("product_id", id).Msg("catalog cache write failed")
	}
	return product, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	result := "success"
	switch {
	case err != nil:
		result = "error"
	case resp.StatusCode == http.StatusNotFound:
		result = "not_found"
	case resp.StatusCode >= 400:
		result = "error"
	}
	observeCatalogCall(result, time.Since(start))
	if err != nil {
		return fmt.Errorf("catalog: request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrProductNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("catalog: request %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return nil
}

func observeCatalogCall(result string, elapsed time.Duration) {
	if obs.CatalogRequestsTotal != nil {
		obs.CatalogRequestsTotal.WithLabelValues(result).Inc()
	}
	if obs.CatalogRequestLatency != nil {
		obs.CatalogRequestLatency.WithLabelValues(result).Observe(obs.DurationMillis(elapsed))
	}
}

func productCacheKey(id int64) string {
	return "catalog:product:" + strconv.FormatInt(id, 10)
}
