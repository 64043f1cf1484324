package orders

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

// Domain errors for sales orders. Typed errors below unwrap to one of these.
var (
	ErrUnauthorized       = fmt.Errorf("order: %w", httpx.ErrForbidden)
	ErrNotFound           = fmt.Errorf("order: %w", httpx.ErrNotFound)
	ErrPreconditionFailed = fmt.Errorf("order: precondition failed: %w", httpx.ErrUnprocessable)
	ErrInsufficientStock  = fmt.Errorf("order: insufficient stock: %w", httpx.ErrConflict)
	ErrInvalidDiscount    = fmt.Errorf("order: discount exceeds order total: %w", httpx.ErrUnprocessable)
	ErrInvalidTransition  = fmt.Errorf("order: invalid status transition: %w", httpx.ErrConflict)
	ErrDuplicate          = fmt.Errorf("order: idempotency key already used: %w", httpx.ErrDuplicate)
	ErrTransactionFailure = errors.New("order: transaction failed")
)

// NotFoundError names the missing entity and every missing id.
type NotFoundError struct {
	Entity string
	IDs    []int64
}

func (e *NotFoundError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, strings.Join(ids, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PreconditionError reports a product that cannot be sold as configured.
type PreconditionError struct {
	ProductID int64
	Product   string
	Reason    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("product %s (id %d): %s", e.Product, e.ProductID, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionFailed }

// InsufficientStockError reports the first product whose availability is below the
// requested quantity.
type InsufficientStockError struct {
	ProductID int64
	Product   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (id %d): requested %s, available %s",
		e.Product, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TransitionError reports a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// TransactionError wraps an unexpected storage failure.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return ErrTransactionFailure.Error() + ": " + e.Err.Error()
}

func (e *TransactionError) Unwrap() []error { return []error{ErrTransactionFailure, e.Err} }
