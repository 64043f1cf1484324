package shared

import "github.com/shopspring/decimal"

// MoneyPlaces is the scale amounts are stored with.
const MoneyPlaces = 2

// LineTotal returns quantity × unit price rounded to money scale.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(MoneyPlaces)
}

// FinalAmount returns total − discount.
func FinalAmount(total, discount decimal.Decimal) decimal.Decimal {
	return total.Sub(discount).Round(MoneyPlaces)
}
