package reports

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

// ErrInvalidPeriod is returned for periods not in YYYYMM form.
var ErrInvalidPeriod = fmt.Errorf("reports: period must be YYYYMM: %w", httpx.ErrValidation)

// SalesSummary aggregates one organisation's orders for a calendar month (UTC).
// Money totals exclude cancelled orders; counts by status include them.
type SalesSummary struct {
	OrganisationID int64             `json:"organisation_id"`
	Period         string            `json:"period"`
	OrderCount     int               `json:"order_count"`
	GrossTotal     decimal.Decimal   `json:"gross_total"`
	DiscountTotal  decimal.Decimal   `json:"discount_total"`
	FinalTotal     decimal.Decimal   `json:"final_total"`
	ByStatus       []StatusBreakdown `json:"by_status"`
	TopProducts    []ProductSales    `json:"top_products"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// StatusBreakdown counts orders in one status.
type StatusBreakdown struct {
	Status     string          `json:"status"`
	Count      int             `json:"count"`
	FinalTotal decimal.Decimal `json:"final_total"`
}

// ProductSales is one product's contribution to a period.
type ProductSales struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Quantity  decimal.Decimal `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// periodRange parses YYYYMM and returns the half-open UTC month [from, to).
func periodRange(period string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("200601", period, time.UTC)
	if err != nil || len(period) != 6 {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	return start, start.AddDate(0, 1, 0), nil
}
