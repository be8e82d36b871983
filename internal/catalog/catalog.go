package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/retailgrid/inventory-engine/internal/cache"
	"github.com/retailgrid/inventory-engine/internal/clients"
)

// Client is the raw catalog lookup, satisfied by clients.CatalogClient.
type Client interface {
	GetProduct(ctx context.Context, productID string) (*clients.Product, error)
}

// CachedCatalog fronts the catalog client with a Redis name cache. Cache
// failures degrade to a direct lookup; missing products are never cached.
type CachedCatalog struct {
	client Client
	cache  cache.NameCache
	logger *zap.Logger
	sfg    singleflight.Group // collapses concurrent misses for one product
}

func NewCachedCatalog(client Client, nameCache cache.NameCache, logger *zap.Logger) *CachedCatalog {
	return &CachedCatalog{
		client: client,
		cache:  nameCache,
		logger: logger,
	}
}

// ProductName resolves a product's display name, proving its existence as a
// side effect. Returns clients.ErrProductNotFound for unknown ids.
func (c *CachedCatalog) ProductName(ctx context.Context, productID string) (string, error) {
	v, err, _ := c.sfg.Do(productID, func() (interface{}, error) {
		name, cacheErr := c.cache.Get(ctx, productID)
		if cacheErr == nil {
			return name, nil
		}
		if !errors.Is(cacheErr, cache.ErrCacheMiss) {
			c.logger.Warn("name cache get failed", zap.String("product_id", productID), zap.Error(cacheErr))
		}

		product, getErr := c.client.GetProduct(ctx, productID)
		if getErr != nil {
			return "", getErr
		}

		go func() {
			if setErr := c.cache.Set(context.Background(), productID, product.Name); setErr != nil {
				c.logger.Warn("name cache set failed", zap.String("product_id", productID), zap.Error(setErr))
			}
		}()

		return product.Name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
