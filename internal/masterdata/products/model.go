package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type distinguishes stock-tracked goods from services.
type Type string

const (
	TypePhysical Type = "PHYSICAL"
	TypeService  Type = "SERVICE"
)

// Product represents a catalog entry owned by an organisation.
type Product struct {
	ID             int64               `json:"id"`
	OrganisationID int64               `json:"organisation_id"`
	SKU            string              `json:"sku"`
	Name           string              `json:"name"`
	Type           Type                `json:"type"`
	Unit           string              `json:"unit"`
	SellingPrice   decimal.NullDecimal `json:"selling_price"`
	IsActive       bool                `json:"is_active"`
	CategoryID     *int64              `json:"category_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Priced reports whether the product carries a usable selling price.
func (p Product) Priced() bool {
	return p.SellingPrice.Valid && p.SellingPrice.Decimal.IsPositive()
}

// TracksStock reports whether sales of the product move the stock ledger.
func (p Product) TracksStock() bool {
	return p.Type == TypePhysical
}

// CreateInput is the payload accepted when creating a product.
type CreateInput struct {
	SKU          string              `json:"sku" validate:"required,max=64"`
	Name         string              `json:"name" validate:"required,max=200"`
	Type         Type                `json:"type" validate:"required,oneof=PHYSICAL SERVICE"`
	Unit         string              `json:"unit" validate:"required,max=32"`
	SellingPrice decimal.NullDecimal `json:"selling_price" validate:"omitempty,dgt0,dscale=2"`
	IsActive     *bool               `json:"is_active"`
	CategoryID   *int64              `json:"category_id" validate:"omitempty,gt=0"`
}

// PriceInput updates the current selling price.
type PriceInput struct {
	SellingPrice decimal.Decimal `json:"selling_price" validate:"dgt0,dscale=2"`
}
