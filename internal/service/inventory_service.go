package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/retailgrid/inventory-engine/internal/domain"
	"github.com/retailgrid/inventory-engine/internal/repository"
)

const (
	// DefaultReservationTTL is how long a hold lives when the caller does
	// not pick a TTL.
	DefaultReservationTTL = 20 * time.Minute

	// DefaultLowStockThreshold mirrors the schema default for new records.
	DefaultLowStockThreshold = 10
)

// Catalog resolves product ids against the catalog collaborator. Existence
// checks and name enrichment both go through it.
type Catalog interface {
	ProductName(ctx context.Context, productID string) (string, error)
}

// InventoryService is the engine's operation surface: availability checks,
// stock mutation, the reservation lifecycle, expiry sweeps and the low-stock
// report. Consistency lives in the repository's transactions; this layer owns
// validation, the error taxonomy and collaborator calls.
type InventoryService struct {
	repo    repository.InventoryRepository
	catalog Catalog
	logger  *zap.Logger
	nowFn   func() time.Time
}

func NewInventoryService(repo repository.InventoryRepository, catalog Catalog, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// IsAvailable reports whether the product has at least quantity units free
// (on-hand minus active holds). A product with no inventory record yields
// false, never an error: absence of inventory means zero availability. The
// answer is a snapshot, not a hold.
func (s *InventoryService) IsAvailable(ctx context.Context, productID string, quantity int) (bool, error) {
	if productID == "" {
		return false, fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if quantity <= 0 {
		return false, fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}

	snap, err := s.repo.GetSnapshot(ctx, productID, s.nowFn())
	if errors.Is(err, repository.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get stock snapshot: %w", err)
	}

	return snap.Available() >= quantity, nil
}

// SetStock creates or replaces the record for (product, supplier). The
// product must exist in the catalog; clients.ErrProductNotFound propagates
// unchanged when it does not.
func (s *InventoryService) SetStock(ctx context.Context, p domain.SetStockParams) (*domain.InventoryRecord, error) {
	if p.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if p.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	if p.LowStockThreshold != nil && *p.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: low stock threshold must not be negative", ErrValidation)
	}

	if _, err := s.catalog.ProductName(ctx, p.ProductID); err != nil {
		return nil, err
	}

	rec, err := s.repo.UpsertRecord(ctx, p, s.nowFn())
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AdjustStock applies a signed delta to the product's stock. A delta that
// would drive the quantity negative is rejected whole; nothing is written.
func (s *InventoryService) AdjustStock(ctx context.Context, p domain.AdjustStockParams) (*domain.InventoryRecord, error) {
	if p.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if p.Delta == 0 {
		return nil, fmt.Errorf("%w: delta must not be zero", ErrValidation)
	}

	return s.repo.AdjustQuantity(ctx, p, s.nowFn())
}

// Reserve holds quantity units of the product until the TTL runs out or the
// hold is released. The availability re-check and the insert happen in one
// transaction under row locks, so concurrent reserves can never oversell.
func (s *InventoryService) Reserve(ctx context.Context, p domain.ReserveParams) (*domain.Reservation, error) {
	if p.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", ErrValidation)
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}

	now := s.nowFn()
	return s.repo.Reserve(ctx, p, now.Add(ttl), now)
}

// Release drops a reservation, returning its quantity to the free pool.
// Releasing an id that no longer exists is an error, not a no-op; callers
// must not release the same reservation twice.
func (s *InventoryService) Release(ctx context.Context, reservationID string) error {
	if reservationID == "" {
		return fmt.Errorf("%w: reservation id is required", ErrValidation)
	}
	return s.repo.Release(ctx, reservationID)
}

// SweepExpired purges every reservation past its expiry and reports the
// count. Safe to run concurrently with reserve and release, and on demand.
func (s *InventoryService) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.nowFn())
}

// ListLowStock reports every record at or below its own threshold, or at or
// below thresholdOverride when one is given. Zero-quantity records always
// qualify. Name enrichment is best effort: a failed catalog lookup logs and
// leaves the name empty rather than dropping the alert.
func (s *InventoryService) ListLowStock(ctx context.Context, thresholdOverride *int) ([]domain.LowStockAlert, error) {
	if thresholdOverride != nil && *thresholdOverride < 0 {
		return nil, fmt.Errorf("%w: threshold override must not be negative", ErrValidation)
	}

	records, err := s.repo.ListLowStock(ctx, thresholdOverride)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.LowStockAlert, 0, len(records))
	for _, rec := range records {
		name, nameErr := s.catalog.ProductName(ctx, rec.ProductID)
		if nameErr != nil {
			s.logger.Warn("catalog name lookup failed",
				zap.String("product_id", rec.ProductID),
				zap.Error(nameErr))
			name = ""
		}
		alerts = append(alerts, domain.LowStockAlert{
			ProductID:         rec.ProductID,
			ProductName:       name,
			CurrentQuantity:   rec.Quantity,
			LowStockThreshold: rec.LowStockThreshold,
			WarehouseLocation: rec.WarehouseLocation,
			SupplierID:        rec.SupplierID,
			LastUpdated:       rec.UpdatedAt,
		})
	}
	return alerts, nil
}
