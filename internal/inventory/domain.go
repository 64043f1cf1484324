package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

// TransactionType enumerates stock ledger movements.
type TransactionType string

const (
	// TransactionTypePurchase records stock received into a batch.
	TransactionTypePurchase TransactionType = "PURCHASE"
	// TransactionTypeSale records stock leaving through an order.
	TransactionTypeSale TransactionType = "SALE"
	// TransactionTypeAdjustment is a signed manual correction.
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
	// TransactionTypeSpoilage writes off damaged or expired stock.
	TransactionTypeSpoilage TransactionType = "SPOILAGE"
	// TransactionTypeReturn puts stock back, e.g. when an order is cancelled.
	TransactionTypeReturn TransactionType = "RETURN"
)

// StockTransaction is one append-only ledger entry.
type StockTransaction struct {
	ID             int64           `json:"id"`
	OrganisationID int64           `json:"organisation_id"`
	ProductID      int64           `json:"product_id"`
	Type           TransactionType `json:"type"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	OrderID        *int64          `json:"order_id,omitempty"`
	StockBatchID   *int64          `json:"stock_batch_id,omitempty"`
	Note           string          `json:"note,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

// StockBatch records a received lot of a product.
type StockBatch struct {
	ID             int64           `json:"id"`
	OrganisationID int64           `json:"organisation_id"`
	ProductID      int64           `json:"product_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	SupplierID     *int64          `json:"supplier_id,omitempty"`
	BatchNumber    string          `json:"batch_number"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	ExpiryDate     *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Availability summarises the stock position of a product.
type Availability struct {
	ProductID int64           `json:"product_id"`
	Available decimal.Decimal `json:"available"`
}

// Receipt is the result of receiving stock.
type Receipt struct {
	Batch       StockBatch       `json:"batch"`
	Transaction StockTransaction `json:"transaction"`
}

// ReceiveInput describes stock arriving from a supplier.
type ReceiveInput struct {
	ProductID    int64           `json:"product_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity" validate:"dgt0,dscale=3"`
	UnitCost     decimal.Decimal `json:"unit_cost" validate:"dgte0,dscale=2"`
	SupplierID   *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
	BatchNumber  string          `json:"batch_number" validate:"max=64"`
	PurchaseDate *time.Time      `json:"purchase_date"`
	ExpiryDate   *time.Time      `json:"expiry_date"`
	Note         string          `json:"note" validate:"max=500"`
}

// AdjustmentInput describes a manual correction. ADJUSTMENT quantities are signed;
// SPOILAGE quantities are the positive amount written off.
type AdjustmentInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Type      TransactionType `json:"type" validate:"required,oneof=ADJUSTMENT SPOILAGE"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dscale=3"`
	Note      string          `json:"note" validate:"max=500"`
}

// LedgerFilter narrows ledger listings.
type LedgerFilter struct {
	OrganisationID int64
	ProductID      int64
	Limit          int
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = fmt.Errorf("inventory: negative stock not allowed: %w", httpx.ErrConflict)

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = fmt.Errorf("inventory: quantity must be non zero: %w", httpx.ErrValidation)

// ErrProductNotFound indicates the product is missing from the organisation.
var ErrProductNotFound = fmt.Errorf("inventory: product %w", httpx.ErrNotFound)

// ErrNotStockTracked indicates a movement against a SERVICE product.
var ErrNotStockTracked = fmt.Errorf("inventory: product does not track stock: %w", httpx.ErrUnprocessable)

// ErrInvalidExpiry indicates an expiry date before the purchase date.
var ErrInvalidExpiry = errors.Join(httpx.ErrValidation, errors.New("inventory: expiry date precedes purchase date"))
