package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockMovedEvent describes a committed manual ledger movement.
type StockMovedEvent struct {
	OrganisationID int64
	ProductID      int64
	Type           TransactionType
	QuantityChange decimal.Decimal
	Available      decimal.Decimal
	PostedAt       time.Time
}

// EventHandler receives inventory events after commit.
type EventHandler interface {
	HandleStockMoved(ctx context.Context, evt StockMovedEvent) error
}
