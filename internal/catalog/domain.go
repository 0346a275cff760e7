package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// LocationType enumerates the roles a stock location can play.
type LocationType string

const (
	LocationTypeProduction LocationType = "production"
	LocationTypeStorage    LocationType = "storage"
	LocationTypeShipping   LocationType = "shipping"
	LocationTypeReceiving  LocationType = "receiving"
)

// IsValid reports whether the location type is known.
func (t LocationType) IsValid() bool {
	switch t {
	case LocationTypeProduction, LocationTypeStorage, LocationTypeShipping, LocationTypeReceiving:
		return true
	default:
		return false
	}
}

// Item is a catalog entry. CostPerUnit is the weighted average maintained by
// the stock service on receipt; TotalQuantity/TotalCostValue are recomputed
// after every stock-affecting operation.
type Item struct {
	ID                int64           `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	Unit              string          `json:"unit"`
	TrackIndividually bool            `json:"track_individually"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	ReorderPoint      float64         `json:"reorder_point"`
	ReorderQuantity   float64         `json:"reorder_quantity"`
	DefaultLocationID int64           `json:"default_location_id,omitempty"`
	TotalQuantity     float64         `json:"total_quantity"`
	TotalCostValue    decimal.Decimal `json:"total_cost_value"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Valuation returns quantity times weighted-average cost.
func (i Item) Valuation() decimal.Decimal {
	return decimal.NewFromFloat(i.TotalQuantity).Mul(i.CostPerUnit)
}

// Location is immutable reference data once created; deactivation only.
type Location struct {
	ID        int64        `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name"`
	Type      LocationType `json:"type"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
}

// ItemInput carries create/update fields for an item.
type ItemInput struct {
	SKU               string          `json:"sku" validate:"required,max=64"`
	Name              string          `json:"name" validate:"required,max=200"`
	Category          string          `json:"category" validate:"max=100"`
	Unit              string          `json:"unit" validate:"required,max=20"`
	TrackIndividually bool            `json:"track_individually"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	ReorderPoint      float64         `json:"reorder_point" validate:"gte=0"`
	ReorderQuantity   float64         `json:"reorder_quantity" validate:"gte=0"`
	DefaultLocationID int64           `json:"default_location_id"`
}

// LocationInput carries create fields for a location.
type LocationInput struct {
	Code string       `json:"code" validate:"required,max=32"`
	Name string       `json:"name" validate:"required,max=200"`
	Type LocationType `json:"type" validate:"required"`
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	Category     string
	ActiveOnly   bool
	BelowReorder bool
	Search       string
	Page         int
	PerPage      int
}

// CategoryValuation aggregates stock value per category.
type CategoryValuation struct {
	Category      string          `json:"category"`
	ItemCount     int             `json:"item_count"`
	TotalQuantity float64         `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
}
