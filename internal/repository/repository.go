package repository

import (
	"context"
	"errors"
	"time"

	"github.com/retailgrid/inventory-engine/internal/domain"
)

var (
	ErrRecordNotFound      = errors.New("inventory record not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidAdjustment   = errors.New("adjustment would drive quantity negative")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is one audit record waiting for delivery. Rows are inserted
// in the same transaction as the mutation they describe and drained by the
// publisher.
type OutboxEvent struct {
	ID          string
	EventType   string
	ProductID   string
	Payload     []byte // JSON, already marshaled
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// InventoryRepository is the storage contract for the engine. Every method
// takes the caller's notion of "now" so expiry logic stays deterministic
// under an injected clock.
type InventoryRepository interface {
	// UpsertRecord creates or replaces the record for (product, supplier)
	// and writes a stock.set audit event in the same transaction.
	UpsertRecord(ctx context.Context, p domain.SetStockParams, now time.Time) (*domain.InventoryRecord, error)

	// AdjustQuantity applies a signed delta to the product's primary record
	// under a row lock. Returns ErrRecordNotFound if the product has no
	// record and ErrInvalidAdjustment if the result would be negative; in
	// both cases nothing is written.
	AdjustQuantity(ctx context.Context, p domain.AdjustStockParams, now time.Time) (*domain.InventoryRecord, error)

	// GetSnapshot returns on-hand and actively reserved quantities for a
	// product. ErrRecordNotFound when the product has no record at all.
	GetSnapshot(ctx context.Context, productID string, now time.Time) (*domain.StockSnapshot, error)

	// Reserve atomically re-checks availability and inserts the hold. The
	// product's inventory rows stay locked until commit so concurrent
	// reserves cannot act on a stale read. ErrInsufficientStock when free
	// stock is short; no row is created in that case.
	Reserve(ctx context.Context, p domain.ReserveParams, expiresAt, now time.Time) (*domain.Reservation, error)

	// Release deletes a reservation. ErrReservationNotFound if the id does
	// not resolve; a second release of the same id is an error, not a no-op.
	Release(ctx context.Context, reservationID string) error

	// DeleteExpired removes every reservation whose expiry has passed and
	// reports how many rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// ListLowStock returns records at or below their own threshold, or at
	// or below the override when one is given.
	ListLowStock(ctx context.Context, thresholdOverride *int) ([]domain.InventoryRecord, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, eventID string, now time.Time) error

	RunMigrations(*Credentials) error
	Close() error
}
