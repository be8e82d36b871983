package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/retailgrid/inventory-engine/internal/domain"
)

// Audit event types written to the outbox.
const (
	EventStockSet      = "stock.set"
	EventStockAdjusted = "stock.adjusted"
	EventStockReserved = "stock.reserved"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "inventory_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

const recordColumns = `id, product_id, supplier_id, quantity, low_stock_threshold, warehouse_location, created_at, updated_at`

func scanRecord(row *sql.Row) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	err := row.Scan(
		&rec.ID,
		&rec.ProductID,
		&rec.SupplierID,
		&rec.Quantity,
		&rec.LowStockThreshold,
		&rec.WarehouseLocation,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) UpsertRecord(ctx context.Context, p domain.SetStockParams, now time.Time) (*domain.InventoryRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Lock the existing row (if any) and remember the quantity it held,
	// so the audit event can carry before/after.
	var before *int
	var prevQty int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory_records
		WHERE product_id = $1 AND supplier_id = $2
		FOR UPDATE`,
		p.ProductID, p.SupplierID,
	).Scan(&prevQty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first write for this pair, record gets created below
	case err != nil:
		return nil, fmt.Errorf("lock inventory record: %w", err)
	default:
		before = &prevQty
	}

	query := `
		INSERT INTO inventory_records (id, product_id, supplier_id, quantity, low_stock_threshold, warehouse_location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5::int, 10), COALESCE($6::text, ''), $7, $7)
		ON CONFLICT (product_id, supplier_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			low_stock_threshold = COALESCE($5, inventory_records.low_stock_threshold),
			warehouse_location = COALESCE($6, inventory_records.warehouse_location),
			updated_at = $7
		RETURNING ` + recordColumns

	rec, err := scanRecord(tx.QueryRowContext(ctx, query,
		uuid.NewString(),
		p.ProductID,
		p.SupplierID,
		p.Quantity,
		p.LowStockThreshold,
		p.WarehouseLocation,
		now,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert inventory record: %w", err)
	}

	payload := map[string]interface{}{
		"operation":   "set_stock",
		"product_id":  p.ProductID,
		"supplier_id": p.SupplierID,
		"before":      before,
		"after":       rec.Quantity,
		"actor":       p.Actor,
		"at":          now,
	}
	if err := insertOutboxEvent(ctx, tx, EventStockSet, p.ProductID, payload, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set stock: %w", err)
	}
	return rec, nil
}

func (r *Repository) AdjustQuantity(ctx context.Context, p domain.AdjustStockParams, now time.Time) (*domain.InventoryRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Delta lands on the product's primary record: the earliest-created row.
	var id string
	var qty int
	err = tx.QueryRowContext(ctx, `
		SELECT id, quantity FROM inventory_records
		WHERE product_id = $1
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`,
		p.ProductID,
	).Scan(&id, &qty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock inventory record: %w", err)
	}

	newQty := qty + p.Delta
	if newQty < 0 {
		return nil, ErrInvalidAdjustment
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `
		UPDATE inventory_records
		SET quantity = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+recordColumns,
		newQty, now, id,
	))
	if err != nil {
		return nil, fmt.Errorf("update inventory record: %w", err)
	}

	payload := map[string]interface{}{
		"operation":  "adjust_stock",
		"product_id": p.ProductID,
		"delta":      p.Delta,
		"reason":     p.Reason,
		"before":     qty,
		"after":      newQty,
		"actor":      p.Actor,
		"at":         now,
	}
	if err := insertOutboxEvent(ctx, tx, EventStockAdjusted, p.ProductID, payload, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit adjust stock: %w", err)
	}
	return rec, nil
}

func (r *Repository) GetSnapshot(ctx context.Context, productID string, now time.Time) (*domain.StockSnapshot, error) {
	var onHand, count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0), COUNT(*)
		FROM inventory_records WHERE product_id = $1`,
		productID,
	).Scan(&onHand, &count)
	if err != nil {
		return nil, fmt.Errorf("query on-hand quantity: %w", err)
	}
	if count == 0 {
		return nil, ErrRecordNotFound
	}

	var reserved int
	err = r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations WHERE product_id = $1 AND expires_at > $2`,
		productID, now,
	).Scan(&reserved)
	if err != nil {
		return nil, fmt.Errorf("query reserved quantity: %w", err)
	}

	return &domain.StockSnapshot{ProductID: productID, OnHand: onHand, Reserved: reserved}, nil
}

func (r *Repository) Reserve(ctx context.Context, p domain.ReserveParams, expiresAt, now time.Time) (*domain.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Lock every supplier row for the product so no concurrent reserve or
	// stock write can slip in between the availability check and the insert.
	rows, err := tx.QueryContext(ctx, `
		SELECT quantity FROM inventory_records
		WHERE product_id = $1
		FOR UPDATE`,
		p.ProductID,
	)
	if err != nil {
		return nil, fmt.Errorf("lock inventory records: %w", err)
	}

	onHand := 0
	found := false
	for rows.Next() {
		var q int
		if err := rows.Scan(&q); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		onHand += q
		found = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory rows: %w", err)
	}

	// No inventory record means zero availability.
	if !found {
		return nil, ErrInsufficientStock
	}

	var reserved int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations WHERE product_id = $1 AND expires_at > $2`,
		p.ProductID, now,
	).Scan(&reserved)
	if err != nil {
		return nil, fmt.Errorf("query reserved quantity: %w", err)
	}

	if onHand-reserved < p.Quantity {
		return nil, ErrInsufficientStock
	}

	res := &domain.Reservation{
		ID:        uuid.NewString(),
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
		Reference: p.Reference,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, product_id, quantity, reference, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		res.ID, res.ProductID, res.Quantity, res.Reference, res.ExpiresAt, res.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	payload := map[string]interface{}{
		"operation":      "reserve",
		"product_id":     p.ProductID,
		"quantity":       p.Quantity,
		"reservation_id": res.ID,
		"reference":      p.Reference,
		"expires_at":     expiresAt,
		"actor":          p.Actor,
		"at":             now,
	}
	if err := insertOutboxEvent(ctx, tx, EventStockReserved, p.ProductID, payload, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return res, nil
}

func (r *Repository) Release(ctx context.Context, reservationID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, reservationID)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired reservations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

func (r *Repository) ListLowStock(ctx context.Context, thresholdOverride *int) ([]domain.InventoryRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM inventory_records
		WHERE quantity <= low_stock_threshold
		ORDER BY quantity, product_id`
	args := []interface{}{}
	if thresholdOverride != nil {
		query = `SELECT ` + recordColumns + `
			FROM inventory_records
			WHERE quantity <= $1
			ORDER BY quantity, product_id`
		args = append(args, *thresholdOverride)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query low stock records: %w", err)
	}
	defer rows.Close()

	var records []domain.InventoryRecord
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.ProductID,
			&rec.SupplierID,
			&rec.Quantity,
			&rec.LowStockThreshold,
			&rec.WarehouseLocation,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan low stock row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, product_id, payload, created_at, processed_at
		FROM audit_outbox
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.ProductID, &ev.Payload, &ev.CreatedAt, &ev.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventProcessed(ctx context.Context, eventID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE audit_outbox SET processed_at = $2 WHERE id = $1`, eventID, now)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func insertOutboxEvent(ctx context.Context, tx *sql.Tx, eventType, productID string, payload map[string]interface{}, now time.Time) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, event_type, product_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), eventType, productID, payloadJSON, now,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
