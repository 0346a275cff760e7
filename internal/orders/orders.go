// Package orders exposes a read-only view of production orders owned by the
// wider shop tool. The fulfillment engine consumes them and never writes.
package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// Order carries the fields the fulfillment engine needs.
type Order struct {
	ID          int64
	OrderNumber string
	ProductType string
	RimSize     string
	Quantity    float64
}

// Repository reads orders from the shared database.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get fetches a single order.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `SELECT id, order_number, product_type, COALESCE(rim_size, ''), quantity FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.OrderNumber, &o.ProductType, &o.RimSize, &o.Quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}
