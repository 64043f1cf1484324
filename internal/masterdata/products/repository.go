package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/masterdata/shared"
	"github.com/stockroom/stockroom/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, orgID, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	UpdatePrice(ctx context.Context, orgID, id int64, price decimal.Decimal) error
	// LockForSale row-locks the organisation's products with the given ids in ascending id
	// order and returns the rows found. Missing ids are simply absent from the result.
	LockForSale(ctx context.Context, orgID int64, ids []int64) ([]Product, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository binds the repository to a pool or a transaction.
func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

const productColumns = `id, organisation_id, sku, name, type, unit, selling_price, is_active, category_id, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.OrganisationID, &p.SKU, &p.Name, &p.Type, &p.Unit, &p.SellingPrice, &p.IsActive, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	where := ` WHERE organisation_id = $1`
	args := []any{filters.OrganisationID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		where += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	query += ` LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE organisation_id = $1 AND id = $2`, orgID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	query := `INSERT INTO products (organisation_id, sku, name, type, unit, selling_price, is_active, category_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, query, product.OrganisationID, product.SKU, product.Name, product.Type, product.Unit, product.SellingPrice, product.IsActive, product.CategoryID, now).Scan(&product.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, fmt.Errorf("sku %q: %w", product.SKU, shared.ErrDuplicate)
		}
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) UpdatePrice(ctx context.Context, orgID, id int64, price decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET selling_price = $1, updated_at = NOW() WHERE organisation_id = $2 AND id = $3`, price, orgID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) LockForSale(ctx context.Context, orgID int64, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE organisation_id = $1 AND id = ANY($2)
ORDER BY id
FOR UPDATE`, orgID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "sku":
		return "sku " + dir
	case "price":
		return "selling_price " + dir + " NULLS LAST"
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
