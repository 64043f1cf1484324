package orders

import (
	"errors"
	"net/http"

	"github.com/stockroom/stockroom/internal/platform/validate"
)

// Error codes carried by failed results.
const (
	CodeUnauthorized       = "unauthorized"
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodePreconditionFailed = "precondition_failed"
	CodeInsufficientStock  = "insufficient_stock"
	CodeInvalidDiscount    = "invalid_discount"
	CodeInvalidTransition  = "invalid_transition"
	CodeDuplicate          = "duplicate"
	CodeTransactionFailure = "transaction_failure"
)

// Result is the tagged envelope returned by order endpoints:
// {success:true, data} or {success:false, error, code, details?}.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Success wraps data in a successful result.
func Success(data any) Result {
	return Result{Success: true, Data: data}
}

// Failure converts err into a failed result and the HTTP status it maps to. Storage errors
// are reported without their cause.
func Failure(err error) (int, Result) {
	var (
		verr   *validate.Error
		nf     *NotFoundError
		pre    *PreconditionError
		stock  *InsufficientStockError
		trans  *TransitionError
		result = Result{Error: err.Error()}
	)
	switch {
	case errors.As(err, &verr):
		result.Code, result.Details = CodeValidation, verr.Fields
		return http.StatusBadRequest, result
	case errors.Is(err, ErrUnauthorized):
		result.Code = CodeUnauthorized
		return http.StatusForbidden, result
	case errors.As(err, &nf):
		result.Code, result.Details = CodeNotFound, map[string]any{"entity": nf.Entity, "ids": nf.IDs}
		return http.StatusNotFound, result
	case errors.Is(err, ErrNotFound):
		result.Code = CodeNotFound
		return http.StatusNotFound, result
	case errors.As(err, &pre):
		result.Code, result.Details = CodePreconditionFailed, map[string]any{"product_id": pre.ProductID, "product": pre.Product}
		return http.StatusUnprocessableEntity, result
	case errors.As(err, &stock):
		result.Code, result.Details = CodeInsufficientStock, map[string]any{
			"product_id": stock.ProductID,
			"product":    stock.Product,
			"requested":  stock.Requested,
			"available":  stock.Available,
		}
		return http.StatusConflict, result
	case errors.Is(err, ErrInvalidDiscount):
		result.Code = CodeInvalidDiscount
		return http.StatusUnprocessableEntity, result
	case errors.As(err, &trans):
		result.Code, result.Details = CodeInvalidTransition, map[string]any{"from": trans.From, "to": trans.To}
		return http.StatusConflict, result
	case errors.Is(err, ErrDuplicate):
		result.Code = CodeDuplicate
		return http.StatusConflict, result
	default:
		result.Code, result.Error = CodeTransactionFailure, ErrTransactionFailure.Error()
		return http.StatusInternalServerError, result
	}
}

// code returns the result code for err, used for metrics labels.
func code(err error) string {
	_, r := Failure(err)
	return r.Code
}
