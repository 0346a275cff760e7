package alerts

import (
	"time"
)

// AlertType classifies stock alerts.
type AlertType string

const (
	AlertTypeLowStock   AlertType = "low_stock"
	AlertTypeOutOfStock AlertType = "out_of_stock"
	AlertTypeOverstock  AlertType = "overstock"
)

// IsValid reports whether the alert type is known.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeLowStock, AlertTypeOutOfStock, AlertTypeOverstock:
		return true
	default:
		return false
	}
}

// Alert is a stock condition flagged for the shop floor. At most one
// unacknowledged alert exists per item and type; evaluation resolves alerts
// whose condition has cleared.
type Alert struct {
	ID             int64      `json:"id"`
	ItemID         int64      `json:"item_id"`
	ItemSKU        string     `json:"item_sku,omitempty"`
	Type           AlertType  `json:"type"`
	Message        string     `json:"message"`
	Quantity       float64    `json:"quantity"`
	Threshold      float64    `json:"threshold"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy int64      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Active reports whether the alert still demands attention.
func (a Alert) Active() bool {
	return !a.Acknowledged && a.ResolvedAt == nil
}

// ItemSnapshot carries the stock figures evaluation runs against.
type ItemSnapshot struct {
	ID              int64
	SKU             string
	Name            string
	TotalQuantity   float64
	ReorderPoint    float64
	ReorderQuantity float64
	Active          bool
}

// Filter narrows alert listings.
type Filter struct {
	ItemID     int64
	Type       AlertType
	ActiveOnly bool
	Limit      int
}
