package alerts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wheelworks/wheelworks/internal/platform/db"
	"github.com/wheelworks/wheelworks/internal/shared"
)

// Repository persists alerts in PostgreSQL. A partial unique index on
// (item_id, alert_type) WHERE NOT acknowledged AND resolved_at IS NULL backs
// the one-active-alert rule even under concurrent evaluation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes alert operations inside one transaction.
type TxRepository interface {
	GetItemSnapshot(ctx context.Context, itemID int64) (ItemSnapshot, error)
	ActiveAlertsForUpdate(ctx context.Context, itemID int64) ([]Alert, error)
	Insert(ctx context.Context, alert Alert) (int64, error)
	Resolve(ctx context.Context, alertID int64) error
	GetForUpdate(ctx context.Context, alertID int64) (Alert, error)
	Acknowledge(ctx context.Context, alertID, actorID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("alerts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Queries against the items table owned by catalog; the soft-delete flag
// there is spelled is_active.
const (
	itemSnapshotQuery  = `SELECT id, sku, name, total_quantity, reorder_point, reorder_quantity, is_active FROM items WHERE id=$1`
	activeItemIDsQuery = `SELECT id FROM items WHERE is_active ORDER BY id`
)

func (r *txRepository) GetItemSnapshot(ctx context.Context, itemID int64) (ItemSnapshot, error) {
	var s ItemSnapshot
	err := r.tx.QueryRow(ctx, itemSnapshotQuery, itemID).
		Scan(&s.ID, &s.SKU, &s.Name, &s.TotalQuantity, &s.ReorderPoint, &s.ReorderQuantity, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemSnapshot{}, fmt.Errorf("%w: item %d", shared.ErrNotFound, itemID)
		}
		return ItemSnapshot{}, fmt.Errorf("alerts: item snapshot: %w", err)
	}
	return s, nil
}

const alertColumns = `id, item_id, alert_type, message, quantity, threshold, acknowledged, acknowledged_by, acknowledged_at, resolved_at, created_at`

func scanAlert(row pgx.Row) (Alert, error) {
	var a Alert
	var ackBy *int64
	err := row.Scan(&a.ID, &a.ItemID, &a.Type, &a.Message, &a.Quantity, &a.Threshold,
		&a.Acknowledged, &ackBy, &a.AcknowledgedAt, &a.ResolvedAt, &a.CreatedAt)
	if err != nil {
		return Alert{}, err
	}
	if ackBy != nil {
		a.AcknowledgedBy = *ackBy
	}
	return a, nil
}

func (r *txRepository) ActiveAlertsForUpdate(ctx context.Context, itemID int64) ([]Alert, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+alertColumns+` FROM stock_alerts
WHERE item_id=$1 AND NOT acknowledged AND resolved_at IS NULL FOR UPDATE`, itemID)
	if err != nil {
		return nil, fmt.Errorf("alerts: active for update: %w", err)
	}
	defer rows.Close()
	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *txRepository) Insert(ctx context.Context, alert Alert) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_alerts (item_id, alert_type, message, quantity, threshold)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		alert.ItemID, alert.Type, alert.Message, alert.Quantity, alert.Threshold).Scan(&id)
	if err != nil {
		if code := pgErrCode(err); code == "23505" {
			// A concurrent evaluation already raised this alert.
			return 0, shared.ErrDuplicateKey
		}
		return 0, fmt.Errorf("alerts: insert: %w", err)
	}
	return id, nil
}

func (r *txRepository) Resolve(ctx context.Context, alertID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_alerts SET resolved_at=NOW() WHERE id=$1 AND resolved_at IS NULL`, alertID)
	if err != nil {
		return fmt.Errorf("alerts: resolve: %w", err)
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, alertID int64) (Alert, error) {
	a, err := scanAlert(r.tx.QueryRow(ctx, `SELECT `+alertColumns+` FROM stock_alerts WHERE id=$1 FOR UPDATE`, alertID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Alert{}, fmt.Errorf("%w: alert %d", shared.ErrNotFound, alertID)
		}
		return Alert{}, fmt.Errorf("alerts: get: %w", err)
	}
	return a, nil
}

func (r *txRepository) Acknowledge(ctx context.Context, alertID, actorID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_alerts SET acknowledged=TRUE, acknowledged_by=$2, acknowledged_at=NOW() WHERE id=$1`,
		alertID, nullInt(actorID))
	if err != nil {
		return fmt.Errorf("alerts: acknowledge: %w", err)
	}
	return nil
}

// List returns alerts newest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM stock_alerts WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.ItemID != 0 {
		query += fmt.Sprintf(" AND item_id=$%d", idx)
		args = append(args, filter.ItemID)
		idx++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND alert_type=$%d", idx)
		args = append(args, filter.Type)
		idx++
	}
	if filter.ActiveOnly {
		query += " AND NOT acknowledged AND resolved_at IS NULL"
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("alerts: list: %w", err)
	}
	defer rows.Close()
	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ListItemIDs returns every active item id for the periodic reorder scan.
func (r *Repository) ListItemIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, activeItemIDsQuery)
	if err != nil {
		return nil, fmt.Errorf("alerts: list item ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
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
