package stock

import "context"

// AlertNotifier receives the item id of every committed total-quantity change
// so alert evaluation can run against post-commit state.
type AlertNotifier interface {
	StockChanged(ctx context.Context, itemID int64) error
}
