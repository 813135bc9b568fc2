package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"reorder-service/internal/model"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SingleWriterStore implements Single Writer Principle for SQLite.
// Only one writer can access the database at a time. It holds the ledger
// entries, the pending-delivery markers and the lifecycle entries in one
// file so a crash never leaves them out of sync for longer than one write.
type SingleWriterStore struct {
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex // Mutex to ensure single writer
}

// NewSingleWriterStore creates a new database connection with single writer principle
func NewSingleWriterStore(path string, logger *zap.Logger) (*SingleWriterStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SingleWriterStore{
		db:     db,
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema
func (s *SingleWriterStore) initSchema() error {
	schema := `
	-- Ledger entries: append-only record of order attempts
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		product_name TEXT,
		quantity INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL,
		resolved_at TEXT,
		CHECK(status IN ('pending', 'placed', 'failed', 'skipped'))
	);

	-- Pending deliveries: order_id -> stock level at order time.
	-- An identifier has at most one marker; kept regardless of age.
	CREATE TABLE IF NOT EXISTS pending_deliveries (
		order_id TEXT PRIMARY KEY,
		stock_at_order REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Lifecycle entries: one live notification per order identifier
	CREATE TABLE IF NOT EXISTS lifecycle_entries (
		order_id TEXT PRIMARY KEY,
		message_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		unit TEXT,
		cart_url TEXT,
		current_stock REAL NOT NULL DEFAULT 0,
		min_stock REAL NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		ordered_at TEXT,
		delivered_at TEXT,
		CHECK(state IN ('created', 'ordered', 'delivered'))
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_order_id ON ledger_entries(order_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_created_at ON ledger_entries(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection
func (s *SingleWriterStore) Ping() error {
	return s.db.Ping()
}

// Close closes the database connection
func (s *SingleWriterStore) Close() error {
	return s.db.Close()
}

// AppendLedgerEntry appends one order attempt record (Single Writer)
func (s *SingleWriterStore) AppendLedgerEntry(ctx context.Context, e model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO ledger_entries (order_id, product_name, quantity, status, error, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.OrderID, e.ProductName, e.Quantity, string(e.Status), e.Error,
		e.CreatedAt.UTC().Format(time.RFC3339), nullableTime(e.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// RecentLedgerEntries returns the most recent entries, newest last
func (s *SingleWriterStore) RecentLedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	query := `
		SELECT order_id, product_name, quantity, status, error, created_at, resolved_at
		FROM ledger_entries
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			e          model.LedgerEntry
			status     string
			errText    sql.NullString
			createdAt  string
			resolvedAt sql.NullString
		)
		if err := rows.Scan(&e.OrderID, &e.ProductName, &e.Quantity, &status, &errText, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Status = model.OrderStatus(status)
		e.Error = errText.String
		e.CreatedAt = parseTime(createdAt)
		e.ResolvedAt = parseNullableTime(resolvedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// CountPlacedSince counts placed orders created at or after the given time.
// RFC3339 UTC strings compare lexicographically, so this stays an index walk.
func (s *SingleWriterStore) CountPlacedSince(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE status = 'placed' AND created_at >= ?
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, since.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count placed entries: %w", err)
	}
	return count, nil
}

// SavePendingMarker sets or overwrites the pending-delivery marker for an identifier
func (s *SingleWriterStore) SavePendingMarker(ctx context.Context, orderID string, stockAtOrder float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pending_deliveries (order_id, stock_at_order, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET stock_at_order = excluded.stock_at_order, created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query, orderID, stockAtOrder, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save pending marker: %w", err)
	}
	return nil
}

// DeletePendingMarker removes the marker for an identifier
func (s *SingleWriterStore) DeletePendingMarker(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_deliveries WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("failed to delete pending marker: %w", err)
	}
	return nil
}

// PendingMarkers loads all pending-delivery markers
func (s *SingleWriterStore) PendingMarkers(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT order_id, stock_at_order FROM pending_deliveries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending markers: %w", err)
	}
	defer rows.Close()

	markers := make(map[string]float64)
	for rows.Next() {
		var (
			orderID string
			stock   float64
		)
		if err := rows.Scan(&orderID, &stock); err != nil {
			return nil, fmt.Errorf("failed to scan pending marker: %w", err)
		}
		markers[orderID] = stock
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pending markers: %w", err)
	}
	return markers, nil
}

// SaveLifecycleEntry creates or replaces the lifecycle entry for an identifier
func (s *SingleWriterStore) SaveLifecycleEntry(ctx context.Context, e model.LifecycleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO lifecycle_entries (order_id, message_id, product_name, quantity, unit, cart_url,
			current_stock, min_stock, state, created_at, ordered_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			message_id = excluded.message_id,
			product_name = excluded.product_name,
			quantity = excluded.quantity,
			unit = excluded.unit,
			cart_url = excluded.cart_url,
			current_stock = excluded.current_stock,
			min_stock = excluded.min_stock,
			state = excluded.state,
			ordered_at = excluded.ordered_at,
			delivered_at = excluded.delivered_at
	`

	_, err := s.db.ExecContext(ctx, query,
		e.OrderID, e.MessageID, e.ProductName, e.Quantity, e.Unit, e.CartURL,
		e.CurrentStock, e.MinStock, string(e.State),
		e.CreatedAt.UTC().Format(time.RFC3339),
		nullableTime(e.OrderedAt), nullableTime(e.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save lifecycle entry: %w", err)
	}
	return nil
}

// DeleteLifecycleEntry removes the lifecycle entry for an identifier
func (s *SingleWriterStore) DeleteLifecycleEntry(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM lifecycle_entries WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("failed to delete lifecycle entry: %w", err)
	}
	return nil
}

// LifecycleEntries loads all persisted lifecycle entries
func (s *SingleWriterStore) LifecycleEntries(ctx context.Context) ([]model.LifecycleEntry, error) {
	query := `
		SELECT order_id, message_id, product_name, quantity, unit, cart_url,
			current_stock, min_stock, state, created_at, ordered_at, delivered_at
		FROM lifecycle_entries
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lifecycle entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LifecycleEntry
	for rows.Next() {
		var (
			e           model.LifecycleEntry
			unit        sql.NullString
			cartURL     sql.NullString
			state       string
			createdAt   string
			orderedAt   sql.NullString
			deliveredAt sql.NullString
		)
		if err := rows.Scan(&e.OrderID, &e.MessageID, &e.ProductName, &e.Quantity, &unit, &cartURL,
			&e.CurrentStock, &e.MinStock, &state, &createdAt, &orderedAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle entry: %w", err)
		}
		e.Unit = unit.String
		e.CartURL = cartURL.String
		e.State = model.LifecycleState(state)
		e.CreatedAt = parseTime(createdAt)
		e.OrderedAt = parseNullableTime(orderedAt)
		e.DeliveredAt = parseNullableTime(deliveredAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lifecycle entries: %w", err)
	}
	return entries, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value.String)
	if err != nil {
		return nil
	}
	return &t
}
