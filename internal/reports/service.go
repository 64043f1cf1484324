package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	salesshared "github.com/stockroom/stockroom/internal/sales/shared"
)

// TopProductsLimit bounds the product ranking in a summary.
const TopProductsLimit = 10

// Cache is the versioned cache used to memoise summaries. Writers bump the organisation
// version after every committed order change, so cached summaries never go stale.
type Cache interface {
	BuildKey(ctx context.Context, orgID int64, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

type Service struct {
	repo  Repository
	cache Cache
	now   func() time.Time
}

func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// MonthlySales returns the sales summary for period (YYYYMM). An empty period means the
// current UTC month.
func (s *Service) MonthlySales(ctx context.Context, orgID int64, period string) (SalesSummary, error) {
	if period == "" {
		period = s.now().UTC().Format("200601")
	}
	from, to, err := periodRange(period)
	if err != nil {
		return SalesSummary{}, err
	}

	load := func(ctx context.Context) (any, error) {
		return s.build(ctx, orgID, period, from, to)
	}
	if s.cache == nil {
		summary, err := s.build(ctx, orgID, period, from, to)
		return summary, err
	}
	key, err := s.cache.BuildKey(ctx, orgID, "reports", "sales", period)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("reports: cache key: %w", err)
	}
	var summary SalesSummary
	if err := s.cache.FetchJSON(ctx, key, &summary, load); err != nil {
		return SalesSummary{}, err
	}
	return summary, nil
}

func (s *Service) build(ctx context.Context, orgID int64, period string, from, to time.Time) (SalesSummary, error) {
	byStatus, err := s.repo.StatusTotals(ctx, orgID, from, to)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("reports: status totals: %w", err)
	}
	gross, discount, err := s.repo.OrderTotals(ctx, orgID, from, to)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("reports: order totals: %w", err)
	}
	top, err := s.repo.TopProducts(ctx, orgID, from, to, TopProductsLimit)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("reports: top products: %w", err)
	}

	summary := SalesSummary{
		OrganisationID: orgID,
		Period:         period,
		GrossTotal:     gross,
		DiscountTotal:  discount,
		FinalTotal:     salesshared.FinalAmount(gross, discount),
		ByStatus:       byStatus,
		TopProducts:    top,
		GeneratedAt:    s.now().UTC(),
	}
	if summary.ByStatus == nil {
		summary.ByStatus = []StatusBreakdown{}
	}
	if summary.TopProducts == nil {
		summary.TopProducts = []ProductSales{}
	}
	for _, b := range byStatus {
		summary.OrderCount += b.Count
	}
	summary.GrossTotal = summary.GrossTotal.Round(salesshared.MoneyPlaces)
	summary.DiscountTotal = summary.DiscountTotal.Round(salesshared.MoneyPlaces)
	summary.FinalTotal = summary.FinalTotal.Round(salesshared.MoneyPlaces)
	if summary.FinalTotal.IsNegative() {
		summary.FinalTotal = decimal.Zero
	}
	return summary, nil
}
