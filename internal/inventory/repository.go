package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/masterdata/products"
	"github.com/stockroom/stockroom/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	// LockProduct row-locks the product so movements serialize with order creation.
	LockProduct(ctx context.Context, orgID, productID int64) (products.Product, error)
	Available(ctx context.Context, orgID int64, productIDs []int64) (map[int64]decimal.Decimal, error)
	InsertBatch(ctx context.Context, batch StockBatch) (StockBatch, error)
	InsertTransaction(ctx context.Context, tx StockTransaction) (StockTransaction, error)
}

type txRepository struct {
	db db.DBTX
}

// NewTxRepository binds ledger operations to an open transaction owned by the caller.
func NewTxRepository(conn db.DBTX) TxRepository {
	return &txRepository{db: conn}
}

// WithTx executes the callback inside a read-committed transaction. Consistency comes from
// the product row lock taken by LockProduct.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{db: tx})
	})
}

// Available reads availability outside a transaction.
func (r *Repository) Available(ctx context.Context, orgID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	return available(ctx, r.pool, orgID, productIDs)
}

// Ledger lists ledger entries newest first.
func (r *Repository) Ledger(ctx context.Context, filter LedgerFilter) ([]StockTransaction, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, organisation_id, product_id, type, quantity_change, order_id, stock_batch_id, note, created_by, created_at
FROM stock_transactions
WHERE organisation_id = $1 AND product_id = $2
ORDER BY created_at DESC, id DESC
LIMIT $3`, filter.OrganisationID, filter.ProductID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []StockTransaction
	for rows.Next() {
		var t StockTransaction
		if err := rows.Scan(&t.ID, &t.OrganisationID, &t.ProductID, &t.Type, &t.QuantityChange, &t.OrderID, &t.StockBatchID, &t.Note, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

func (r *txRepository) LockProduct(ctx context.Context, orgID, productID int64) (products.Product, error) {
	rows, err := products.NewRepository(r.db).LockForSale(ctx, orgID, []int64{productID})
	if err != nil {
		return products.Product{}, err
	}
	if len(rows) == 0 {
		return products.Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	return rows[0], nil
}

func (r *txRepository) Available(ctx context.Context, orgID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	return available(ctx, r.db, orgID, productIDs)
}

// available = received batch quantity + every non-PURCHASE ledger delta. PURCHASE entries
// mirror their batch, so counting both would double the receipt.
func available(ctx context.Context, conn db.DBTX, orgID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := conn.Query(ctx, `SELECT p.id,
	COALESCE((SELECT SUM(b.quantity) FROM stock_batches b
		WHERE b.organisation_id = $1 AND b.product_id = p.id), 0)
	+ COALESCE((SELECT SUM(t.quantity_change) FROM stock_transactions t
		WHERE t.organisation_id = $1 AND t.product_id = p.id AND t.type <> 'PURCHASE'), 0)
FROM UNNEST($2::bigint[]) AS p(id)`, orgID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var qty decimal.Decimal
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		out[id] = qty
	}
	return out, rows.Err()
}

func (r *txRepository) InsertBatch(ctx context.Context, batch StockBatch) (StockBatch, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO stock_batches (organisation_id, product_id, quantity, unit_cost, supplier_id, batch_number, purchase_date, expiry_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
RETURNING id, created_at`,
		batch.OrganisationID, batch.ProductID, batch.Quantity, batch.UnitCost, batch.SupplierID,
		batch.BatchNumber, batch.PurchaseDate, batch.ExpiryDate).Scan(&batch.ID, &batch.CreatedAt)
	return batch, err
}

func (r *txRepository) InsertTransaction(ctx context.Context, tx StockTransaction) (StockTransaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, `INSERT INTO stock_transactions (organisation_id, product_id, type, quantity_change, order_id, stock_batch_id, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`,
		tx.OrganisationID, tx.ProductID, tx.Type, tx.QuantityChange, tx.OrderID, tx.StockBatchID,
		tx.Note, tx.CreatedBy, tx.CreatedAt).Scan(&tx.ID)
	return tx, err
}
