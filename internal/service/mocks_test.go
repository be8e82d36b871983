package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/retailgrid/inventory-engine/internal/clients"
	"github.com/retailgrid/inventory-engine/internal/domain"
	"github.com/retailgrid/inventory-engine/internal/repository"
)

// mockCatalog implements Catalog for testing
type mockCatalog struct {
	names map[string]string
	err   error
	calls int
}

func (m *mockCatalog) ProductName(_ context.Context, productID string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	name, ok := m.names[productID]
	if !ok {
		return "", clients.ErrProductNotFound
	}
	return name, nil
}

// memRepo is an in-memory repository.InventoryRepository with the same
// semantics as the Postgres implementation, so service tests can exercise
// full scenarios without a database.
type memRepo struct {
	mu           sync.Mutex
	records      map[string]*domain.InventoryRecord // keyed product|supplier
	order        []string                           // record keys in creation order
	reservations map[string]*domain.Reservation
	events       []*repository.OutboxEvent
}

func newMemRepo() *memRepo {
	return &memRepo{
		records:      make(map[string]*domain.InventoryRecord),
		reservations: make(map[string]*domain.Reservation),
	}
}

func recordKey(productID, supplierID string) string {
	return productID + "|" + supplierID
}

func (m *memRepo) UpsertRecord(_ context.Context, p domain.SetStockParams, now time.Time) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(p.ProductID, p.SupplierID)
	rec, exists := m.records[key]
	if !exists {
		rec = &domain.InventoryRecord{
			ID:                uuid.NewString(),
			ProductID:         p.ProductID,
			SupplierID:        p.SupplierID,
			LowStockThreshold: 10,
			CreatedAt:         now,
		}
		m.records[key] = rec
		m.order = append(m.order, key)
	}
	rec.Quantity = p.Quantity
	if p.LowStockThreshold != nil {
		rec.LowStockThreshold = *p.LowStockThreshold
	}
	if p.WarehouseLocation != nil {
		rec.WarehouseLocation = *p.WarehouseLocation
	}
	rec.UpdatedAt = now

	m.appendEvent(repository.EventStockSet, p.ProductID, now)
	out := *rec
	return &out, nil
}

func (m *memRepo) AdjustQuantity(_ context.Context, p domain.AdjustStockParams, now time.Time) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.primaryRecord(p.ProductID)
	if rec == nil {
		return nil, repository.ErrRecordNotFound
	}

	newQty := rec.Quantity + p.Delta
	if newQty < 0 {
		return nil, repository.ErrInvalidAdjustment
	}
	rec.Quantity = newQty
	rec.UpdatedAt = now

	m.appendEvent(repository.EventStockAdjusted, p.ProductID, now)
	out := *rec
	return &out, nil
}

func (m *memRepo) GetSnapshot(_ context.Context, productID string, now time.Time) (*domain.StockSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	onHand, found := m.onHand(productID)
	if !found {
		return nil, repository.ErrRecordNotFound
	}
	return &domain.StockSnapshot{
		ProductID: productID,
		OnHand:    onHand,
		Reserved:  m.reserved(productID, now),
	}, nil
}

func (m *memRepo) Reserve(_ context.Context, p domain.ReserveParams, expiresAt, now time.Time) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	onHand, found := m.onHand(p.ProductID)
	if !found {
		return nil, repository.ErrInsufficientStock
	}
	if onHand-m.reserved(p.ProductID, now) < p.Quantity {
		return nil, repository.ErrInsufficientStock
	}

	res := &domain.Reservation{
		ID:        uuid.NewString(),
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
		Reference: p.Reference,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	m.reservations[res.ID] = res

	m.appendEvent(repository.EventStockReserved, p.ProductID, now)
	out := *res
	return &out, nil
}

func (m *memRepo) Release(_ context.Context, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reservations[reservationID]; !exists {
		return repository.ErrReservationNotFound
	}
	delete(m.reservations, reservationID)
	return nil
}

func (m *memRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for id, res := range m.reservations {
		if res.ExpiresAt.Before(now) {
			delete(m.reservations, id)
			count++
		}
	}
	return count, nil
}

func (m *memRepo) ListLowStock(_ context.Context, thresholdOverride *int) ([]domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.InventoryRecord
	for _, key := range m.order {
		rec := m.records[key]
		threshold := rec.LowStockThreshold
		if thresholdOverride != nil {
			threshold = *thresholdOverride
		}
		if rec.Quantity <= threshold {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memRepo) GetUnprocessedEvents(_ context.Context, limit int) ([]*repository.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.OutboxEvent
	for _, ev := range m.events {
		if ev.ProcessedAt == nil {
			out = append(out, ev)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) MarkEventProcessed(_ context.Context, eventID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range m.events {
		if ev.ID == eventID {
			t := now
			ev.ProcessedAt = &t
		}
	}
	return nil
}

func (m *memRepo) RunMigrations(*repository.Credentials) error { return nil }

func (m *memRepo) Close() error { return nil }

func (m *memRepo) primaryRecord(productID string) *domain.InventoryRecord {
	for _, key := range m.order {
		if rec := m.records[key]; rec.ProductID == productID {
			return rec
		}
	}
	return nil
}

func (m *memRepo) onHand(productID string) (int, bool) {
	total := 0
	found := false
	for _, rec := range m.records {
		if rec.ProductID == productID {
			total += rec.Quantity
			found = true
		}
	}
	return total, found
}

func (m *memRepo) reserved(productID string, now time.Time) int {
	total := 0
	for _, res := range m.reservations {
		if res.ProductID == productID && res.Active(now) {
			total += res.Quantity
		}
	}
	return total
}

func (m *memRepo) appendEvent(eventType, productID string, now time.Time) {
	m.events = append(m.events, &repository.OutboxEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		ProductID: productID,
		CreatedAt: now,
	})
}
