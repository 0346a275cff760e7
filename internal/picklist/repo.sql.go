package picklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wheelworks/wheelworks/internal/platform/db"
	"github.com/wheelworks/wheelworks/internal/shared"
	"github.com/wheelworks/wheelworks/internal/stock"
)

// Repository persists pick lists in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes pick list operations inside one transaction. Ledger
// returns the stock operations bound to the same transaction, so reservations
// and pick consumption commit atomically with the pick list rows.
type TxRepository interface {
	Ledger() stock.TxRepository
	NextNumber(ctx context.Context, now time.Time) (string, error)
	InsertList(ctx context.Context, pl PickList) (int64, error)
	InsertItem(ctx context.Context, line PickListItem) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (PickList, error)
	UpdateListStatus(ctx context.Context, id int64, status Status) error
	UpdateAssignee(ctx context.Context, id, assigneeID int64, assigneeName string) error
	UpdateItem(ctx context.Context, line PickListItem) error
	BestLocation(ctx context.Context, itemID, preferredLocationID int64) (int64, error)
}

type txRepository struct {
	tx     pgx.Tx
	ledger stock.TxRepository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("picklist repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: stock.NewTxRepository(tx)})
	})
}

func (r *txRepository) Ledger() stock.TxRepository {
	return r.ledger
}

// NextNumber allocates the next document number for the month. The upsert
// increments the sequence row atomically, so concurrent generation never
// hands out the same number.
func (r *txRepository) NextNumber(ctx context.Context, now time.Time) (string, error) {
	month := now.UTC().Format("200601")
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO number_sequences (key, value) VALUES ($1, 1)
ON CONFLICT (key) DO UPDATE SET value = number_sequences.value + 1
RETURNING value`, "picklist:"+month).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("picklist: next number: %w", err)
	}
	return fmt.Sprintf("PL-%s-%04d", month, seq), nil
}

func (r *txRepository) InsertList(ctx context.Context, pl PickList) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO pick_lists (number, order_id, bom_id, status, note, created_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		pl.Number, pl.OrderID, pl.BOMID, pl.Status, pl.Note, nullInt(pl.CreatedBy)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("picklist: insert list: %w", err)
	}
	return id, nil
}

func (r *txRepository) InsertItem(ctx context.Context, line PickListItem) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO pick_list_items
(pick_list_id, item_id, location_id, quantity_required, quantity_reserved, quantity_picked, quantity_short, status, is_optional)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		line.PickListID, line.ItemID, nullInt(line.LocationID), line.QuantityRequired,
		line.QuantityReserved, line.QuantityPicked, line.QuantityShort, line.Status, line.IsOptional).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("picklist: insert item: %w", err)
	}
	return id, nil
}

const listColumns = `id, number, order_id, bom_id, status, COALESCE(assignee_id, 0), COALESCE(assignee_name, ''), COALESCE(note, ''), COALESCE(created_by, 0), completed_at, cancelled_at, created_at, updated_at`

func scanList(row pgx.Row) (PickList, error) {
	var pl PickList
	err := row.Scan(&pl.ID, &pl.Number, &pl.OrderID, &pl.BOMID, &pl.Status, &pl.AssigneeID, &pl.AssigneeName,
		&pl.Note, &pl.CreatedBy, &pl.CompletedAt, &pl.CancelledAt, &pl.CreatedAt, &pl.UpdatedAt)
	return pl, err
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (PickList, error) {
	pl, err := scanList(r.tx.QueryRow(ctx, `SELECT `+listColumns+` FROM pick_lists WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PickList{}, fmt.Errorf("%w: pick list %d", shared.ErrNotFound, id)
		}
		return PickList{}, fmt.Errorf("picklist: get for update: %w", err)
	}
	rows, err := r.tx.Query(ctx, `SELECT id, pick_list_id, item_id, COALESCE(location_id, 0), quantity_required,
quantity_reserved, quantity_picked, quantity_short, status, is_optional, COALESCE(serial_id, 0), updated_at
FROM pick_list_items WHERE pick_list_id=$1 ORDER BY id FOR UPDATE`, id)
	if err != nil {
		return PickList{}, fmt.Errorf("picklist: lock items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line PickListItem
		if err := rows.Scan(&line.ID, &line.PickListID, &line.ItemID, &line.LocationID, &line.QuantityRequired,
			&line.QuantityReserved, &line.QuantityPicked, &line.QuantityShort, &line.Status, &line.IsOptional,
			&line.SerialID, &line.UpdatedAt); err != nil {
			return PickList{}, err
		}
		pl.Items = append(pl.Items, line)
	}
	return pl, rows.Err()
}

func (r *txRepository) UpdateListStatus(ctx context.Context, id int64, status Status) error {
	query := `UPDATE pick_lists SET status=$2, updated_at=NOW() WHERE id=$1`
	switch status {
	case StatusCompleted:
		query = `UPDATE pick_lists SET status=$2, completed_at=NOW(), updated_at=NOW() WHERE id=$1`
	case StatusCancelled:
		query = `UPDATE pick_lists SET status=$2, cancelled_at=NOW(), updated_at=NOW() WHERE id=$1`
	}
	tag, err := r.tx.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("picklist: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pick list %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *txRepository) UpdateAssignee(ctx context.Context, id, assigneeID int64, assigneeName string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE pick_lists SET assignee_id=$2, assignee_name=$3, updated_at=NOW() WHERE id=$1`,
		id, assigneeID, assigneeName)
	if err != nil {
		return fmt.Errorf("picklist: update assignee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pick list %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *txRepository) UpdateItem(ctx context.Context, line PickListItem) error {
	tag, err := r.tx.Exec(ctx, `UPDATE pick_list_items SET location_id=$2, quantity_reserved=$3, quantity_picked=$4,
quantity_short=$5, status=$6, serial_id=$7, updated_at=NOW() WHERE id=$1`,
		line.ID, nullInt(line.LocationID), line.QuantityReserved, line.QuantityPicked,
		line.QuantityShort, line.Status, nullInt(line.SerialID))
	if err != nil {
		return fmt.Errorf("picklist: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pick list item %d", shared.ErrNotFound, line.ID)
	}
	return nil
}

// BestLocation locks and returns the location best able to fulfill the item:
// the preferred location when it has availability, otherwise the one holding
// the most available stock. Zero means nothing is available anywhere.
func (r *txRepository) BestLocation(ctx context.Context, itemID, preferredLocationID int64) (int64, error) {
	var locationID int64
	err := r.tx.QueryRow(ctx, `SELECT location_id FROM stock_levels
WHERE item_id=$1 AND quantity - reserved_quantity > 0
ORDER BY (location_id = $2) DESC, quantity - reserved_quantity DESC
LIMIT 1 FOR UPDATE`, itemID, preferredLocationID).Scan(&locationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("picklist: best location: %w", err)
	}
	return locationID, nil
}

// Get fetches one pick list with joined item names.
func (r *Repository) Get(ctx context.Context, id int64) (PickList, error) {
	pl, err := scanList(r.pool.QueryRow(ctx, `SELECT `+listColumns+` FROM pick_lists WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PickList{}, fmt.Errorf("%w: pick list %d", shared.ErrNotFound, id)
		}
		return PickList{}, fmt.Errorf("picklist: get: %w", err)
	}
	if err := r.pool.QueryRow(ctx, `SELECT order_number FROM orders WHERE id=$1`, pl.OrderID).Scan(&pl.OrderNumber); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return PickList{}, fmt.Errorf("picklist: order number: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT pli.id, pli.pick_list_id, pli.item_id, i.sku, i.name,
COALESCE(pli.location_id, 0), pli.quantity_required, pli.quantity_reserved, pli.quantity_picked,
pli.quantity_short, pli.status, pli.is_optional, COALESCE(pli.serial_id, 0), pli.updated_at
FROM pick_list_items pli
JOIN items i ON i.id = pli.item_id
WHERE pli.pick_list_id=$1 ORDER BY pli.id`, id)
	if err != nil {
		return PickList{}, fmt.Errorf("picklist: items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line PickListItem
		if err := rows.Scan(&line.ID, &line.PickListID, &line.ItemID, &line.ItemSKU, &line.ItemName,
			&line.LocationID, &line.QuantityRequired, &line.QuantityReserved, &line.QuantityPicked,
			&line.QuantityShort, &line.Status, &line.IsOptional, &line.SerialID, &line.UpdatedAt); err != nil {
			return PickList{}, err
		}
		pl.Items = append(pl.Items, line)
	}
	return pl, rows.Err()
}

// List returns pick lists newest first with a total count for pagination.
func (r *Repository) List(ctx context.Context, filter Filter) ([]PickList, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.OrderID != 0 {
		where += fmt.Sprintf(" AND order_id=$%d", idx)
		args = append(args, filter.OrderID)
		idx++
	}
	if filter.AssigneeID != 0 {
		where += fmt.Sprintf(" AND assignee_id=$%d", idx)
		args = append(args, filter.AssigneeID)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pick_lists`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("picklist: count: %w", err)
	}

	p := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := `SELECT ` + listColumns + ` FROM pick_lists` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, p.PerPage, p.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("picklist: list: %w", err)
	}
	defer rows.Close()
	var lists []PickList
	for rows.Next() {
		pl, err := scanList(rows)
		if err != nil {
			return nil, 0, err
		}
		lists = append(lists, pl)
	}
	return lists, total, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
