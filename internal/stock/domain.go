package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType enumerates stock-affecting movements.
type TransactionType string

const (
	TransactionTypeReceive  TransactionType = "receive"
	TransactionTypePick     TransactionType = "pick"
	TransactionTypeTransfer TransactionType = "transfer"
	TransactionTypeAdjust   TransactionType = "adjust"
	TransactionTypeReturn   TransactionType = "return"
	TransactionTypeScrap    TransactionType = "scrap"
)

// IsValid reports whether the transaction type is known.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeReceive, TransactionTypePick, TransactionTypeTransfer,
		TransactionTypeAdjust, TransactionTypeReturn, TransactionTypeScrap:
		return true
	default:
		return false
	}
}

// StockLevel tracks on-hand and reserved quantity per (item, location).
// Invariants: Quantity >= 0 and 0 <= Reserved <= Quantity. Rows are created
// lazily on first movement and never deleted, only driven to zero.
type StockLevel struct {
	ItemID        int64      `json:"item_id"`
	LocationID    int64      `json:"location_id"`
	Quantity      float64    `json:"quantity"`
	Reserved      float64    `json:"reserved_quantity"`
	LastCountedAt *time.Time `json:"last_counted_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Available returns the quantity not held by reservations.
func (l StockLevel) Available() float64 {
	return l.Quantity - l.Reserved
}

// Transaction is an immutable append-only record of one ledger mutation.
type Transaction struct {
	ID             int64           `json:"id"`
	Type           TransactionType `json:"type"`
	ItemID         int64           `json:"item_id"`
	SerialID       int64           `json:"serial_id,omitempty"`
	FromLocationID int64           `json:"from_location_id,omitempty"`
	ToLocationID   int64           `json:"to_location_id,omitempty"`
	Quantity       float64         `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	OrderID        int64           `json:"order_id,omitempty"`
	PickListID     int64           `json:"pick_list_id,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Note           string          `json:"note,omitempty"`
	ActorID        int64           `json:"actor_id"`
	ActorName      string          `json:"actor_name,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SerialStatus tracks the lifecycle of an individually tracked unit.
type SerialStatus string

const (
	SerialStatusInStock  SerialStatus = "in_stock"
	SerialStatusReserved SerialStatus = "reserved"
	SerialStatusInUse    SerialStatus = "in_use"
	SerialStatusShipped  SerialStatus = "shipped"
	SerialStatusScrapped SerialStatus = "scrapped"
)

// IsValid reports whether the serial status is known.
func (s SerialStatus) IsValid() bool {
	switch s {
	case SerialStatusInStock, SerialStatusReserved, SerialStatusInUse, SerialStatusShipped, SerialStatusScrapped:
		return true
	default:
		return false
	}
}

// SerialItem is one physical barcode-tracked unit of a tracked item.
type SerialItem struct {
	ID           int64           `json:"id"`
	ItemID       int64           `json:"item_id"`
	SerialNumber string          `json:"serial_number"`
	Barcode      string          `json:"barcode"`
	LocationID   int64           `json:"location_id"`
	Status       SerialStatus    `json:"status"`
	Cost         decimal.Decimal `json:"cost"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ItemState is the slice of the item row the ledger mutates under lock.
type ItemState struct {
	ID                int64
	CostPerUnit       decimal.Decimal
	TotalQuantity     float64
	TrackIndividually bool
	DefaultLocationID int64
}

// SerialInput declares one unit received for a tracked item.
type SerialInput struct {
	SerialNumber string `json:"serial_number" validate:"required,max=64"`
	Barcode      string `json:"barcode" validate:"required,max=128"`
}

// ReceiveInput posts an inbound receipt.
type ReceiveInput struct {
	ItemID     int64           `json:"item_id" validate:"required,gt=0"`
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	Quantity   float64         `json:"quantity" validate:"required,gt=0"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Reference  string          `json:"reference" validate:"max=100"`
	Note       string          `json:"note"`
	Serials    []SerialInput   `json:"serials" validate:"dive"`
}

// TransferInput moves stock between two locations.
type TransferInput struct {
	ItemID         int64   `json:"item_id" validate:"required,gt=0"`
	FromLocationID int64   `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID   int64   `json:"to_location_id" validate:"required,gt=0"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	Reference      string  `json:"reference" validate:"max=100"`
	Note           string  `json:"note"`
	SerialIDs      []int64 `json:"serial_ids"`
}

// AdjustInput corrects on-hand quantity after a count; delta may be negative.
type AdjustInput struct {
	ItemID     int64   `json:"item_id" validate:"required,gt=0"`
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Delta      float64 `json:"delta"`
	Reference  string  `json:"reference" validate:"max=100"`
	Note       string  `json:"note"`
}

// ReturnInput puts previously picked units back into stock.
type ReturnInput struct {
	ItemID     int64   `json:"item_id" validate:"required,gt=0"`
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	OrderID    int64   `json:"order_id"`
	Reference  string  `json:"reference" validate:"max=100"`
	Note       string  `json:"note"`
	SerialID   int64   `json:"serial_id"`
}

// ScrapInput writes off damaged or lost units.
type ScrapInput struct {
	ItemID     int64   `json:"item_id" validate:"required,gt=0"`
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	Reference  string  `json:"reference" validate:"max=100"`
	Note       string  `json:"note"`
	SerialID   int64   `json:"serial_id"`
}

// LevelFilter narrows stock level listings.
type LevelFilter struct {
	ItemID       int64
	LocationID   int64
	BelowReorder bool
}

// TransactionFilter narrows the transaction log query.
type TransactionFilter struct {
	ItemID     int64
	LocationID int64
	Type       TransactionType
	From       time.Time
	To         time.Time
	Limit      int
}

var (
	// ErrInvalidQuantity indicates a zero or wrong-signed quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("stock: unit cost must be >= 0")
	// ErrSerialCountMismatch indicates the serial list does not match quantity.
	ErrSerialCountMismatch = errors.New("stock: serial count must equal quantity for tracked items")
)
