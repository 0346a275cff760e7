package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wheelworks/wheelworks/internal/platform/db"
	"github.com/wheelworks/wheelworks/internal/shared"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the ledger operations available inside one database
// transaction. The pick list engine shares this surface so reservations and
// picks mutate stock under the same row locks as direct movements.
type TxRepository interface {
	GetLevelForUpdate(ctx context.Context, itemID, locationID int64) (StockLevel, error)
	UpsertLevel(ctx context.Context, level StockLevel) error
	GetItemForUpdate(ctx context.Context, itemID int64) (ItemState, error)
	UpdateItemCost(ctx context.Context, itemID int64, cost decimal.Decimal) error
	RecomputeItemTotals(ctx context.Context, itemID int64) (float64, error)
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
	InsertSerial(ctx context.Context, serial SerialItem) (int64, error)
	GetSerialForUpdate(ctx context.Context, serialID int64) (SerialItem, error)
	UpdateSerial(ctx context.Context, serialID int64, status SerialStatus, locationID int64) error
}

// ErrLevelNotFound indicates a missing stock level row.
var ErrLevelNotFound = errors.New("stock level not found")

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction with ledger operations.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) GetLevelForUpdate(ctx context.Context, itemID, locationID int64) (StockLevel, error) {
	var lvl StockLevel
	err := r.tx.QueryRow(ctx, `SELECT item_id, location_id, quantity, reserved_quantity, last_counted_at, updated_at
FROM stock_levels WHERE item_id=$1 AND location_id=$2 FOR UPDATE`, itemID, locationID).
		Scan(&lvl.ItemID, &lvl.LocationID, &lvl.Quantity, &lvl.Reserved, &lvl.LastCountedAt, &lvl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{ItemID: itemID, LocationID: locationID}, ErrLevelNotFound
		}
		return StockLevel{}, err
	}
	return lvl, nil
}

func (r *txRepository) UpsertLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (item_id, location_id, quantity, reserved_quantity, last_counted_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (item_id, location_id) DO UPDATE
SET quantity=EXCLUDED.quantity, reserved_quantity=EXCLUDED.reserved_quantity,
    last_counted_at=COALESCE(EXCLUDED.last_counted_at, stock_levels.last_counted_at), updated_at=NOW()`,
		level.ItemID, level.LocationID, level.Quantity, level.Reserved, level.LastCountedAt)
	return err
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemID int64) (ItemState, error) {
	var st ItemState
	err := r.tx.QueryRow(ctx, `SELECT id, cost_per_unit, total_quantity, track_individually, COALESCE(default_location_id, 0)
FROM items WHERE id=$1 AND is_active FOR UPDATE`, itemID).
		Scan(&st.ID, &st.CostPerUnit, &st.TotalQuantity, &st.TrackIndividually, &st.DefaultLocationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemState{}, fmt.Errorf("item %d: %w", itemID, shared.ErrNotFound)
		}
		return ItemState{}, err
	}
	return st, nil
}

func (r *txRepository) UpdateItemCost(ctx context.Context, itemID int64, cost decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE items SET cost_per_unit=$2, updated_at=NOW() WHERE id=$1`, itemID, cost)
	return err
}

func (r *txRepository) RecomputeItemTotals(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `UPDATE items SET
  total_quantity = COALESCE((SELECT SUM(quantity) FROM stock_levels WHERE item_id=$1), 0),
  total_cost_value = COALESCE((SELECT SUM(quantity) FROM stock_levels WHERE item_id=$1), 0) * cost_per_unit,
  updated_at = NOW()
WHERE id=$1
RETURNING total_quantity`, itemID).Scan(&total)
	return total, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_transactions
(tx_type, item_id, serial_id, from_location_id, to_location_id, quantity, unit_cost, total_cost,
 order_id, pick_list_id, reference, note, actor_id, actor_name, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW()) RETURNING id`,
		string(t.Type), t.ItemID, nullInt(t.SerialID), nullInt(t.FromLocationID), nullInt(t.ToLocationID),
		t.Quantity, t.UnitCost, t.TotalCost, nullInt(t.OrderID), nullInt(t.PickListID),
		t.Reference, t.Note, nullInt(t.ActorID), t.ActorName).Scan(&id)
	return id, err
}

func (r *txRepository) InsertSerial(ctx context.Context, serial SerialItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO serial_items (item_id, serial_number, barcode, location_id, status, cost, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		serial.ItemID, serial.SerialNumber, serial.Barcode, serial.LocationID, string(serial.Status), serial.Cost).Scan(&id)
	if err != nil {
		return 0, mapSerialUnique(err)
	}
	return id, nil
}

func (r *txRepository) GetSerialForUpdate(ctx context.Context, serialID int64) (SerialItem, error) {
	return scanSerial(r.tx.QueryRow(ctx, serialSelect+` WHERE id=$1 FOR UPDATE`, serialID))
}

func (r *txRepository) UpdateSerial(ctx context.Context, serialID int64, status SerialStatus, locationID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE serial_items SET status=$2, location_id=COALESCE(NULLIF($3::bigint, 0), location_id), updated_at=NOW() WHERE id=$1`,
		serialID, string(status), locationID)
	return err
}

const serialSelect = `SELECT id, item_id, serial_number, barcode, location_id, status, cost, created_at, updated_at FROM serial_items`

func scanSerial(row pgx.Row) (SerialItem, error) {
	var s SerialItem
	err := row.Scan(&s.ID, &s.ItemID, &s.SerialNumber, &s.Barcode, &s.LocationID, &s.Status, &s.Cost, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SerialItem{}, shared.ErrNotFound
		}
		return SerialItem{}, err
	}
	return s, nil
}

// GetLevel reads one stock level outside a transaction; absent rows come back
// zero-initialised, never as an error.
func (r *Repository) GetLevel(ctx context.Context, itemID, locationID int64) (StockLevel, error) {
	var lvl StockLevel
	err := r.pool.QueryRow(ctx, `SELECT item_id, location_id, quantity, reserved_quantity, last_counted_at, updated_at
FROM stock_levels WHERE item_id=$1 AND location_id=$2`, itemID, locationID).
		Scan(&lvl.ItemID, &lvl.LocationID, &lvl.Quantity, &lvl.Reserved, &lvl.LastCountedAt, &lvl.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{ItemID: itemID, LocationID: locationID}, nil
		}
		return StockLevel{}, err
	}
	return lvl, nil
}

// ListLevels lists stock levels filtered by item and/or location.
func (r *Repository) ListLevels(ctx context.Context, filter LevelFilter) ([]StockLevel, error) {
	query := `SELECT sl.item_id, sl.location_id, sl.quantity, sl.reserved_quantity, sl.last_counted_at, sl.updated_at
FROM stock_levels sl`
	where := ` WHERE 1=1`
	args := []any{}
	n := 0
	if filter.BelowReorder {
		query += ` JOIN items i ON i.id = sl.item_id`
		where += ` AND i.total_quantity <= i.reorder_point`
	}
	if filter.ItemID != 0 {
		n++
		where += fmt.Sprintf(` AND sl.item_id = $%d`, n)
		args = append(args, filter.ItemID)
	}
	if filter.LocationID != 0 {
		n++
		where += fmt.Sprintf(` AND sl.location_id = $%d`, n)
		args = append(args, filter.LocationID)
	}
	rows, err := r.pool.Query(ctx, query+where+` ORDER BY sl.item_id, sl.location_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := []StockLevel{}
	for rows.Next() {
		var lvl StockLevel
		if err := rows.Scan(&lvl.ItemID, &lvl.LocationID, &lvl.Quantity, &lvl.Reserved, &lvl.LastCountedAt, &lvl.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}

// FindLocationWithStock returns the location holding available stock for the
// item, preferring the given location when it has availability.
func (r *Repository) FindLocationWithStock(ctx context.Context, itemID, preferredLocationID int64) (int64, error) {
	var locationID int64
	err := r.pool.QueryRow(ctx, `SELECT location_id FROM stock_levels
WHERE item_id=$1 AND quantity - reserved_quantity > 0
ORDER BY (location_id = $2) DESC, quantity - reserved_quantity DESC
LIMIT 1`, itemID, preferredLocationID).Scan(&locationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLevelNotFound
		}
		return 0, err
	}
	return locationID, nil
}

// ListTransactions streams the transaction log, newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	where := ` WHERE 1=1`
	args := []any{}
	n := 0
	if filter.ItemID != 0 {
		n++
		where += fmt.Sprintf(` AND item_id = $%d`, n)
		args = append(args, filter.ItemID)
	}
	if filter.LocationID != 0 {
		n++
		where += fmt.Sprintf(` AND (from_location_id = $%d OR to_location_id = $%d)`, n, n)
		args = append(args, filter.LocationID)
	}
	if filter.Type != "" {
		n++
		where += fmt.Sprintf(` AND tx_type = $%d`, n)
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		n++
		where += fmt.Sprintf(` AND created_at >= $%d`, n)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		n++
		where += fmt.Sprintf(` AND created_at <= $%d`, n)
		args = append(args, filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT id, tx_type, item_id, COALESCE(serial_id, 0),
COALESCE(from_location_id, 0), COALESCE(to_location_id, 0), quantity, unit_cost, total_cost,
COALESCE(order_id, 0), COALESCE(pick_list_id, 0), reference, note, COALESCE(actor_id, 0), actor_name, created_at
FROM stock_transactions%s ORDER BY created_at DESC, id DESC LIMIT $%d`, where, n+1), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := []Transaction{}
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.ItemID, &t.SerialID, &t.FromLocationID, &t.ToLocationID,
			&t.Quantity, &t.UnitCost, &t.TotalCost, &t.OrderID, &t.PickListID, &t.Reference, &t.Note,
			&t.ActorID, &t.ActorName, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// GetSerial fetches one serial item.
func (r *Repository) GetSerial(ctx context.Context, id int64) (SerialItem, error) {
	return scanSerial(r.pool.QueryRow(ctx, serialSelect+` WHERE id=$1`, id))
}

// GetSerialByBarcode fetches a serial item by its unique barcode.
func (r *Repository) GetSerialByBarcode(ctx context.Context, barcode string) (SerialItem, error) {
	return scanSerial(r.pool.QueryRow(ctx, serialSelect+` WHERE barcode=$1`, barcode))
}

// ListSerials lists serial units for an item, optionally by status.
func (r *Repository) ListSerials(ctx context.Context, itemID int64, status SerialStatus) ([]SerialItem, error) {
	query := serialSelect + ` WHERE item_id=$1`
	args := []any{itemID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, string(status))
	}
	query += ` ORDER BY serial_number`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	serials := []SerialItem{}
	for rows.Next() {
		var s SerialItem
		if err := rows.Scan(&s.ID, &s.ItemID, &s.SerialNumber, &s.Barcode, &s.LocationID, &s.Status, &s.Cost, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		serials = append(serials, s)
	}
	return serials, rows.Err()
}

const summarySnapshotQuery = `SELECT
  COALESCE(SUM(sl.quantity), 0),
  COALESCE(SUM(sl.reserved_quantity), 0),
  COALESCE(SUM(sl.quantity * i.cost_per_unit), 0),
  COUNT(DISTINCT i.id) FILTER (WHERE i.reorder_point > 0 AND i.total_quantity <= i.reorder_point)
FROM stock_levels sl
JOIN items i ON i.id = sl.item_id
WHERE i.is_active`

// SummarySnapshot aggregates on-hand stock across the whole shop.
func (r *Repository) SummarySnapshot(ctx context.Context) (Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx, summarySnapshotQuery).
		Scan(&s.TotalUnits, &s.TotalReserved, &s.TotalValue, &s.ItemsBelowReorder)
	if err != nil {
		return Summary{}, fmt.Errorf("stock: summary: %w", err)
	}
	s.GeneratedAt = time.Now().UTC()
	return s, nil
}

func mapSerialUnique(err error) error {
	if err == nil {
		return nil
	}
	if code := pgErrCode(err); code == "23505" {
		return fmt.Errorf("%w: barcode", shared.ErrDuplicateKey)
	}
	return err
}

func pgErrCode(err error) string {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState()
	}
	return ""
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
