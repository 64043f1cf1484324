package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/platform/db"
)

// Repository loads sales aggregates.
type Repository interface {
	StatusTotals(ctx context.Context, orgID int64, from, to time.Time) ([]StatusBreakdown, error)
	TopProducts(ctx context.Context, orgID int64, from, to time.Time, limit int) ([]ProductSales, error)
	OrderTotals(ctx context.Context, orgID int64, from, to time.Time) (gross, discount decimal.Decimal, err error)
}

type pgRepository struct {
	conn db.DBTX
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(conn db.DBTX) Repository {
	return &pgRepository{conn: conn}
}

func (r *pgRepository) StatusTotals(ctx context.Context, orgID int64, from, to time.Time) ([]StatusBreakdown, error) {
	rows, err := r.conn.Query(ctx, `
SELECT status, COUNT(*), COALESCE(SUM(final_amount), 0)
FROM orders
WHERE organisation_id = $1 AND created_at >= $2 AND created_at < $3
GROUP BY status
ORDER BY status`, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusBreakdown
	for rows.Next() {
		var b StatusBreakdown
		if err := rows.Scan(&b.Status, &b.Count, &b.FinalTotal); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *pgRepository) OrderTotals(ctx context.Context, orgID int64, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var gross, discount decimal.Decimal
	err := r.conn.QueryRow(ctx, `
SELECT COALESCE(SUM(total_amount), 0), COALESCE(SUM(discount_amount), 0)
FROM orders
WHERE organisation_id = $1 AND created_at >= $2 AND created_at < $3 AND status <> 'CANCELLED'`,
		orgID, from, to).Scan(&gross, &discount)
	return gross, discount, err
}

func (r *pgRepository) TopProducts(ctx context.Context, orgID int64, from, to time.Time, limit int) ([]ProductSales, error) {
	rows, err := r.conn.Query(ctx, `
SELECT p.id, p.sku, SUM(i.quantity), SUM(i.total_price)
FROM order_items i
JOIN orders o ON o.id = i.order_id
JOIN products p ON p.id = i.product_id
WHERE o.organisation_id = $1 AND o.created_at >= $2 AND o.created_at < $3 AND o.status <> 'CANCELLED'
GROUP BY p.id, p.sku
ORDER BY SUM(i.total_price) DESC, p.id
LIMIT $4`, orgID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductSales
	for rows.Next() {
		var p ProductSales
		if err := rows.Scan(&p.ProductID, &p.SKU, &p.Quantity, &p.Revenue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
