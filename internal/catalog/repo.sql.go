package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, sku, name, category, unit, track_individually, cost_per_unit, sell_price,
reorder_point, reorder_quantity, COALESCE(default_location_id, 0), total_quantity, total_cost_value,
is_active, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.SKU, &it.Name, &it.Category, &it.Unit, &it.TrackIndividually,
		&it.CostPerUnit, &it.SellPrice, &it.ReorderPoint, &it.ReorderQuantity, &it.DefaultLocationID,
		&it.TotalQuantity, &it.TotalCostValue, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// CreateItem inserts a catalog item. SKU collisions map to ErrDuplicateKey.
func (r *Repository) CreateItem(ctx context.Context, input ItemInput) (Item, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO items (sku, name, category, unit, track_individually, sell_price,
reorder_point, reorder_quantity, default_location_id, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,NOW(),NOW())
RETURNING `+itemColumns,
		input.SKU, input.Name, input.Category, input.Unit, input.TrackIndividually, input.SellPrice,
		input.ReorderPoint, input.ReorderQuantity, nullInt(input.DefaultLocationID))
	it, err := scanItem(row)
	if err != nil {
		return Item{}, mapUnique(err)
	}
	return it, nil
}

// GetItem fetches one item by id.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.ErrNotFound
		}
		return Item{}, err
	}
	return it, nil
}

// GetItemBySKU fetches one item by its unique SKU.
func (r *Repository) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE sku=$1`, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.ErrNotFound
		}
		return Item{}, err
	}
	return it, nil
}

// ListItems returns a filtered page of items plus the total match count.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, int, error) {
	where := `WHERE 1=1`
	args := []any{}
	n := 0
	if filter.Category != "" {
		n++
		where += fmt.Sprintf(` AND category = $%d`, n)
		args = append(args, filter.Category)
	}
	if filter.ActiveOnly {
		where += ` AND is_active`
	}
	if filter.BelowReorder {
		where += ` AND total_quantity <= reorder_point`
	}
	if filter.Search != "" {
		n++
		where += fmt.Sprintf(` AND (sku ILIKE $%d OR name ILIKE $%d)`, n, n)
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM items %s ORDER BY sku LIMIT $%d OFFSET $%d`,
		itemColumns, where, n+1, n+2), append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// UpdateItem rewrites the mutable descriptive fields. Costing fields are owned
// by the stock service and never touched here.
func (r *Repository) UpdateItem(ctx context.Context, id int64, input ItemInput) (Item, error) {
	row := r.pool.QueryRow(ctx, `UPDATE items SET sku=$2, name=$3, category=$4, unit=$5, track_individually=$6,
sell_price=$7, reorder_point=$8, reorder_quantity=$9, default_location_id=$10, updated_at=NOW()
WHERE id=$1 RETURNING `+itemColumns,
		id, input.SKU, input.Name, input.Category, input.Unit, input.TrackIndividually,
		input.SellPrice, input.ReorderPoint, input.ReorderQuantity, nullInt(input.DefaultLocationID))
	it, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.ErrNotFound
		}
		return Item{}, mapUnique(err)
	}
	return it, nil
}

// DeactivateItem soft-deletes an item.
func (r *Repository) DeactivateItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateLocation inserts a stock location.
func (r *Repository) CreateLocation(ctx context.Context, input LocationInput) (Location, error) {
	var loc Location
	err := r.pool.QueryRow(ctx, `INSERT INTO locations (code, name, loc_type, is_active, created_at)
VALUES ($1,$2,$3,TRUE,NOW()) RETURNING id, code, name, loc_type, is_active, created_at`,
		input.Code, input.Name, string(input.Type)).
		Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Type, &loc.IsActive, &loc.CreatedAt)
	if err != nil {
		return Location{}, mapUnique(err)
	}
	return loc, nil
}

// GetLocation fetches one location by id.
func (r *Repository) GetLocation(ctx context.Context, id int64) (Location, error) {
	var loc Location
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, loc_type, is_active, created_at FROM locations WHERE id=$1`, id).
		Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Type, &loc.IsActive, &loc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Location{}, shared.ErrNotFound
		}
		return Location{}, err
	}
	return loc, nil
}

// ListLocations returns all locations, active first.
func (r *Repository) ListLocations(ctx context.Context, activeOnly bool) ([]Location, error) {
	query := `SELECT id, code, name, loc_type, is_active, created_at FROM locations`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY code`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := []Location{}
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.ID, &loc.Code, &loc.Name, &loc.Type, &loc.IsActive, &loc.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// DeactivateLocation soft-deletes a location.
func (r *Repository) DeactivateLocation(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE locations SET is_active=FALSE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ValuationByCategory aggregates current stock value per item category.
func (r *Repository) ValuationByCategory(ctx context.Context) ([]CategoryValuation, error) {
	rows, err := r.pool.Query(ctx, `SELECT category, COUNT(*), COALESCE(SUM(total_quantity), 0), COALESCE(SUM(total_cost_value), 0)
FROM items WHERE is_active GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []CategoryValuation{}
	for rows.Next() {
		var v CategoryValuation
		if err := rows.Scan(&v.Category, &v.ItemCount, &v.TotalQuantity, &v.TotalValue); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", shared.ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
