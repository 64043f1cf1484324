package validate

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

type line struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"dgt0,dscale=3"`
}

type request struct {
	CustomerID int64               `json:"customer_id" validate:"required,gt=0"`
	Discount   decimal.NullDecimal `json:"discount" validate:"omitempty,dgte0"`
	Items      []line              `json:"items" validate:"required,min=1,dive"`
}

func TestStructReportsJSONPaths(t *testing.T) {
	v := New()
	err := Struct(v, request{
		CustomerID: 1,
		Discount:   decimal.NewNullDecimal(decimal.NewFromInt(-1)),
		Items: []line{
			{ProductID: 1, Quantity: decimal.NewFromInt(2)},
			{ProductID: 0, Quantity: decimal.Zero},
		},
	})
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Equal(t, map[string]string{
		"discount":            "must not be negative",
		"items[1].product_id": "is required",
		"items[1].quantity":   "must be greater than zero",
	}, verr.Fields)
}

func TestStructAcceptsValidInput(t *testing.T) {
	v := New()
	require.NoError(t, Struct(v, request{
		CustomerID: 3,
		Items:      []line{{ProductID: 1, Quantity: decimal.RequireFromString("0.5")}},
	}))
}

func TestStructRequiresItems(t *testing.T) {
	err := Struct(New(), request{CustomerID: 1})
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "is required", verr.Fields["items"])
}

func TestStructRejectsQuantitiesFinerThanScale(t *testing.T) {
	v := New()
	for _, raw := range []string{"0.0004", "1.0005", "2.12345"} {
		err := Struct(v, request{
			CustomerID: 1,
			Items:      []line{{ProductID: 1, Quantity: decimal.RequireFromString(raw)}},
		})
		var verr *Error
		require.True(t, errors.As(err, &verr), raw)
		require.ErrorIs(t, err, httpx.ErrValidation)
		require.Equal(t, "must have at most 3 decimal places", verr.Fields["items[0].quantity"], raw)
	}

	for _, raw := range []string{"1", "0.001", "12.500", "3.25"} {
		require.NoError(t, Struct(v, request{
			CustomerID: 1,
			Items:      []line{{ProductID: 1, Quantity: decimal.RequireFromString(raw)}},
		}), raw)
	}
}
