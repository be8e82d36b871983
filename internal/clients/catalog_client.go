package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrCatalogUnavailable = errors.New("catalog service unavailable")
)

// Product is the slice of the catalog's product entity this engine cares
// about: existence and a display name for alert enrichment.
type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price,omitempty"`
}

// CatalogClient calls the catalog collaborator over HTTP. All calls go
// through a circuit breaker; a missing product counts as a successful call
// so lookups of dead ids cannot trip the breaker.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Product]
}

func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	settings := gobreaker.Settings{
		Name:    "catalog",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProductNotFound)
		},
	}

	return &CatalogClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[*Product](settings),
	}
}

func (c *CatalogClient) GetProduct(ctx context.Context, productID string) (*Product, error) {
	product, err := c.breaker.Execute(func() (*Product, error) {
		return c.getProduct(ctx, productID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	return product, err
}

func (c *CatalogClient) getProduct(ctx context.Context, productID string) (*Product, error) {
	url := fmt.Sprintf("%s/api/products/%s", c.baseURL, productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach catalog service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var product Product
		if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		return &product, nil

	case http.StatusNotFound:
		return nil, fmt.Errorf("%w (id=%s)", ErrProductNotFound, productID)

	case http.StatusGatewayTimeout, http.StatusServiceUnavailable:
		return nil, ErrCatalogUnavailable

	default:
		return nil, fmt.Errorf("unexpected response from catalog service: %s", resp.Status)
	}
}
