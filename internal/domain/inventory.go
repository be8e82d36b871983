package domain

import "time"

// InventoryRecord holds the on-hand stock for one (product, supplier) pair.
// A product carried by several suppliers has one record per supplier; the
// product's availability sums over all of them.
type InventoryRecord struct {
	ID                string
	ProductID         string
	SupplierID        string
	Quantity          int
	LowStockThreshold int
	WarehouseLocation string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Reservation is a time-bounded hold against a product's on-hand stock.
// It reduces calculated availability without touching the on-hand count,
// and disappears on explicit release or once ExpiresAt passes.
type Reservation struct {
	ID        string
	ProductID string
	Quantity  int
	Reference string // caller-supplied correlation id, informational only
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Active reports whether the reservation still reduces availability at t.
func (r *Reservation) Active(t time.Time) bool {
	return r.ExpiresAt.After(t)
}

// StockSnapshot is a point-in-time view of a product's stock position.
type StockSnapshot struct {
	ProductID string
	OnHand    int // sum over all supplier records
	Reserved  int // sum over active reservations
}

// Available returns the free stock (on-hand minus active holds).
func (s StockSnapshot) Available() int {
	return s.OnHand - s.Reserved
}

// LowStockAlert is one row of the low-stock report. ProductName is joined
// from the catalog for presentation and may be empty when the catalog is
// unreachable; the alert itself is never suppressed by that.
type LowStockAlert struct {
	ProductID         string    `json:"product_id"`
	ProductName       string    `json:"product_name,omitempty"`
	CurrentQuantity   int       `json:"current_quantity"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	WarehouseLocation string    `json:"warehouse_location,omitempty"`
	SupplierID        string    `json:"supplier_id,omitempty"`
	LastUpdated       time.Time `json:"last_updated"`
}

// SetStockParams describes an absolute stock write. Optional fields are
// pointers; nil leaves the stored value untouched on an existing record
// and falls back to defaults on create.
type SetStockParams struct {
	ProductID         string
	SupplierID        string
	Quantity          int
	WarehouseLocation *string
	LowStockThreshold *int
	Actor             string
}

// AdjustStockParams describes a relative stock mutation. Reason is for
// the audit trail only and is never interpreted here.
type AdjustStockParams struct {
	ProductID string
	Delta     int
	Reason    string
	Actor     string
}

// ReserveParams describes a reservation request. A non-positive TTL is
// replaced with the operational default.
type ReserveParams struct {
	ProductID string
	Quantity  int
	Reference string
	Actor     string
	TTL       time.Duration
}
