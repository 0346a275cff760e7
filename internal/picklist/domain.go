package picklist

import (
	"fmt"
	"time"

	"github.com/wheelworks/wheelworks/internal/shared"
)

// Status represents the lifecycle of a pick list.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanScan reports whether lines on the list may still be scanned.
func (s Status) CanScan() bool {
	return s == StatusPending || s == StatusInProgress
}

// CanComplete reports whether the list may be completed.
func (s Status) CanComplete() bool {
	return s == StatusPending || s == StatusInProgress
}

// CanCancel reports whether the list may be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusInProgress
}

// Terminal reports whether the list has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ItemStatus represents the per-line state.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusPicked  ItemStatus = "picked"
	ItemStatusShort   ItemStatus = "short"
	ItemStatusSkipped ItemStatus = "skipped"
)

// IsValid reports whether the line status is known.
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemStatusPending, ItemStatusPicked, ItemStatusShort, ItemStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal reports whether the line needs no further scanning.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusPicked || s == ItemStatusShort || s == ItemStatusSkipped
}

// PickList drives the pick/scan workflow for one production order.
type PickList struct {
	ID           int64          `json:"id"`
	Number       string         `json:"number"`
	OrderID      int64          `json:"order_id"`
	OrderNumber  string         `json:"order_number,omitempty"`
	BOMID        int64          `json:"bom_id"`
	Status       Status         `json:"status"`
	AssigneeID   int64          `json:"assignee_id,omitempty"`
	AssigneeName string         `json:"assignee_name,omitempty"`
	Note         string         `json:"note,omitempty"`
	CreatedBy    int64          `json:"created_by,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CancelledAt  *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Items        []PickListItem `json:"items,omitempty"`
}

// PickListItem is one component line. LocationID zero means no location with
// stock could be resolved at generation time and the line awaits manual
// assignment. QuantityReserved records how much was actually held, which may
// be less than required when stock was short.
type PickListItem struct {
	ID               int64      `json:"id"`
	PickListID       int64      `json:"pick_list_id"`
	ItemID           int64      `json:"item_id"`
	ItemSKU          string     `json:"item_sku,omitempty"`
	ItemName         string     `json:"item_name,omitempty"`
	LocationID       int64      `json:"location_id,omitempty"`
	QuantityRequired float64    `json:"quantity_required"`
	QuantityReserved float64    `json:"quantity_reserved"`
	QuantityPicked   float64    `json:"quantity_picked"`
	QuantityShort    float64    `json:"quantity_short"`
	Status           ItemStatus `json:"status"`
	IsOptional       bool       `json:"is_optional"`
	SerialID         int64      `json:"serial_id,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// GenerateInput requests pick list generation for an order.
type GenerateInput struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	BOMID   int64  `json:"bom_id"`
	Note    string `json:"note" validate:"max=500"`
}

// ScanInput records the outcome of scanning one line.
type ScanInput struct {
	QuantityPicked float64 `json:"quantity_picked" validate:"gte=0"`
	SerialID       int64   `json:"serial_id"`
}

// AssignInput hands the list to an operator.
type AssignInput struct {
	AssigneeID   int64  `json:"assignee_id" validate:"required,gt=0"`
	AssigneeName string `json:"assignee_name" validate:"max=120"`
}

// ReassignLocationInput resolves a line left without a location.
type ReassignLocationInput struct {
	LocationID int64 `json:"location_id" validate:"required,gt=0"`
}

// Filter narrows pick list listings.
type Filter struct {
	Status     Status
	OrderID    int64
	AssigneeID int64
	Page       int
	PerPage    int
}

// IncompletePickListError rejects completion while lines are still open.
type IncompletePickListError struct {
	PendingLines int
}

func (e *IncompletePickListError) Error() string {
	return fmt.Sprintf("pick list has %d lines awaiting scan", e.PendingLines)
}

// Unwrap maps the error onto the invariant violation class.
func (e *IncompletePickListError) Unwrap() error {
	return shared.ErrInvariantViolation
}
