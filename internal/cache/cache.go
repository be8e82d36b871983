package cache

import (
	"context"
	"errors"
)

// NameCache stores catalog display names so low-stock reports do not hammer
// the catalog on every run.
type NameCache interface {
	Get(ctx context.Context, productID string) (string, error)
	Set(ctx context.Context, productID string, name string) error
	Delete(ctx context.Context, productID string) error
}

var ErrCacheMiss = errors.New("cache miss")
