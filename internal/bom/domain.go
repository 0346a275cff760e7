package bom

import (
	"errors"
	"time"
)

// BOM names the component list for one buildable product.
type BOM struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	ProductType string         `json:"product_type"`
	ModelCode   string         `json:"model_code,omitempty"`
	RimSize     string         `json:"rim_size,omitempty"`
	IsDefault   bool           `json:"is_default"`
	Components  []BOMComponent `json:"components"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// BOMComponent is one line in a BOM, ordered by position.
type BOMComponent struct {
	ID              int64   `json:"id"`
	BOMID           int64   `json:"bom_id"`
	ItemID          int64   `json:"item_id"`
	QuantityPerUnit float64 `json:"quantity_per_unit"`
	IsOptional      bool    `json:"is_optional"`
	Position        int     `json:"position"`
}

// Input carries BOM create/update payloads.
type Input struct {
	Name        string           `json:"name" validate:"required,max=120"`
	ProductType string           `json:"product_type" validate:"required,max=60"`
	ModelCode   string           `json:"model_code" validate:"max=60"`
	RimSize     string           `json:"rim_size" validate:"max=20"`
	IsDefault   bool             `json:"is_default"`
	Components  []ComponentInput `json:"components" validate:"required,min=1,dive"`
}

// ComponentInput is one component line in an Input.
type ComponentInput struct {
	ItemID          int64   `json:"item_id" validate:"required,gt=0"`
	QuantityPerUnit float64 `json:"quantity_per_unit" validate:"required,gt=0"`
	IsOptional      bool    `json:"is_optional"`
}

// ErrEmptyBOM indicates a BOM with zero components where at least one is needed.
var ErrEmptyBOM = errors.New("bom: bill of materials has no components")
