package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wheelworks/wheelworks/internal/platform/db"
	"github.com/wheelworks/wheelworks/internal/shared"
)

// Repository persists bills of materials in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes BOM operations inside one transaction.
type TxRepository interface {
	Insert(ctx context.Context, b BOM) (int64, error)
	Update(ctx context.Context, b BOM) error
	Delete(ctx context.Context, id int64) error
	GetForUpdate(ctx context.Context, id int64) (BOM, error)
	ReplaceComponents(ctx context.Context, bomID int64, components []BOMComponent) error
	DemoteDefaults(ctx context.Context, productType string, exceptID int64) error
	Promote(ctx context.Context, id int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("bom repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const bomColumns = `id, name, product_type, COALESCE(model_code, ''), COALESCE(rim_size, ''), is_default, created_at, updated_at`

func scanBOM(row pgx.Row) (BOM, error) {
	var b BOM
	err := row.Scan(&b.ID, &b.Name, &b.ProductType, &b.ModelCode, &b.RimSize, &b.IsDefault, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r *txRepository) Insert(ctx context.Context, b BOM) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO boms (name, product_type, model_code, rim_size, is_default)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		b.Name, b.ProductType, nullStr(b.ModelCode), nullStr(b.RimSize), b.IsDefault).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("bom: insert: %w", err)
	}
	return id, nil
}

func (r *txRepository) Update(ctx context.Context, b BOM) error {
	tag, err := r.tx.Exec(ctx, `UPDATE boms SET name=$2, product_type=$3, model_code=$4, rim_size=$5, updated_at=NOW() WHERE id=$1`,
		b.ID, b.Name, b.ProductType, nullStr(b.ModelCode), nullStr(b.RimSize))
	if err != nil {
		return fmt.Errorf("bom: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bom %d", shared.ErrNotFound, b.ID)
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM bom_components WHERE bom_id=$1`, id); err != nil {
		return fmt.Errorf("bom: delete components: %w", err)
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM boms WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("bom: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bom %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (BOM, error) {
	b, err := scanBOM(r.tx.QueryRow(ctx, `SELECT `+bomColumns+` FROM boms WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, fmt.Errorf("%w: bom %d", shared.ErrNotFound, id)
		}
		return BOM{}, fmt.Errorf("bom: get for update: %w", err)
	}
	return b, nil
}

func (r *txRepository) ReplaceComponents(ctx context.Context, bomID int64, components []BOMComponent) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM bom_components WHERE bom_id=$1`, bomID); err != nil {
		return fmt.Errorf("bom: replace components: %w", err)
	}
	for _, c := range components {
		_, err := r.tx.Exec(ctx, `INSERT INTO bom_components (bom_id, item_id, quantity_per_unit, is_optional, position)
VALUES ($1, $2, $3, $4, $5)`, bomID, c.ItemID, c.QuantityPerUnit, c.IsOptional, c.Position)
		if err != nil {
			return fmt.Errorf("bom: insert component: %w", err)
		}
	}
	return nil
}

func (r *txRepository) DemoteDefaults(ctx context.Context, productType string, exceptID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE boms SET is_default=FALSE, updated_at=NOW() WHERE product_type=$1 AND is_default AND id <> $2`,
		productType, exceptID)
	if err != nil {
		return fmt.Errorf("bom: demote defaults: %w", err)
	}
	return nil
}

func (r *txRepository) Promote(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE boms SET is_default=TRUE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("bom: promote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bom %d", shared.ErrNotFound, id)
	}
	return nil
}

// Get fetches one BOM with its components.
func (r *Repository) Get(ctx context.Context, id int64) (BOM, error) {
	b, err := scanBOM(r.pool.QueryRow(ctx, `SELECT `+bomColumns+` FROM boms WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, fmt.Errorf("%w: bom %d", shared.ErrNotFound, id)
		}
		return BOM{}, fmt.Errorf("bom: get: %w", err)
	}
	b.Components, err = r.components(ctx, id)
	return b, err
}

// List returns BOMs for a product type, or all when empty. Components are
// loaded per BOM; lists are small (a handful per product type).
func (r *Repository) List(ctx context.Context, productType string) ([]BOM, error) {
	query := `SELECT ` + bomColumns + ` FROM boms`
	args := []any{}
	if productType != "" {
		query += ` WHERE product_type=$1`
		args = append(args, productType)
	}
	query += ` ORDER BY product_type, is_default DESC, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bom: list: %w", err)
	}
	defer rows.Close()
	var boms []BOM
	for rows.Next() {
		b, err := scanBOM(rows)
		if err != nil {
			return nil, err
		}
		boms = append(boms, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range boms {
		if boms[i].Components, err = r.components(ctx, boms[i].ID); err != nil {
			return nil, err
		}
	}
	return boms, nil
}

// FindDefault resolves the default BOM, preferring an exact rim size match
// before falling back to the product type alone.
func (r *Repository) FindDefault(ctx context.Context, productType, rimSize string) (BOM, error) {
	query := `SELECT ` + bomColumns + ` FROM boms
WHERE product_type=$1 AND is_default
ORDER BY (COALESCE(rim_size, '') = $2) DESC, id
LIMIT 1`
	b, err := scanBOM(r.pool.QueryRow(ctx, query, productType, rimSize))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, fmt.Errorf("%w: no default bom for product type %q", shared.ErrNotFound, productType)
		}
		return BOM{}, fmt.Errorf("bom: find default: %w", err)
	}
	b.Components, err = r.components(ctx, b.ID)
	return b, err
}

func (r *Repository) components(ctx context.Context, bomID int64) ([]BOMComponent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, bom_id, item_id, quantity_per_unit, is_optional, position
FROM bom_components WHERE bom_id=$1 ORDER BY position, id`, bomID)
	if err != nil {
		return nil, fmt.Errorf("bom: components: %w", err)
	}
	defer rows.Close()
	var components []BOMComponent
	for rows.Next() {
		var c BOMComponent
		if err := rows.Scan(&c.ID, &c.BOMID, &c.ItemID, &c.QuantityPerUnit, &c.IsOptional, &c.Position); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
