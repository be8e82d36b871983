package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProduct_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products/prod-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Product{ID: "prod-1", Name: "Laptop", Category: "electronics", Price: 999.99})
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 2*time.Second)
	product, err := client.GetProduct(context.Background(), "prod-1")
	require.NoError(t, err)

	assert.Equal(t, "prod-1", product.ID)
	assert.Equal(t, "Laptop", product.Name)
}

func TestGetProduct_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 2*time.Second)
	_, err := client.GetProduct(context.Background(), "prod-ghost")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetProduct_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 2*time.Second)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := client.GetProduct(ctx, "prod-ghost")
		assert.ErrorIs(t, err, ErrProductNotFound, "missing products are not failures")
	}
}

func TestGetProduct_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 2*time.Second)
	_, err := client.GetProduct(context.Background(), "prod-1")
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestGetProduct_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewCatalogClient(srv.URL, 2*time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.GetProduct(ctx, "prod-1")
		require.Error(t, err)
	}

	// Breaker is open now: the request never reaches the server
	_, err := client.GetProduct(ctx, "prod-1")
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.Equal(t, 5, calls)
}
