package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/masterdata/products"
	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/sales/customers"
)

// ErrOrderMissing is returned by repositories when the order row does not exist in the
// organisation.
var ErrOrderMissing = errors.New("order row not found")

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, orgID, id int64) (Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
}

// TxRepository is the set of operations the order workflows run inside one transaction.
type TxRepository interface {
	GetCustomer(ctx context.Context, orgID, id int64) (customers.Customer, error)
	LockProducts(ctx context.Context, orgID int64, ids []int64) ([]products.Product, error)
	Available(ctx context.Context, orgID int64, productIDs []int64) (map[int64]decimal.Decimal, error)
	NextSequence(ctx context.Context, orgID int64, period string) (int64, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	InsertItem(ctx context.Context, item OrderItem) (OrderItem, error)
	UpsertDelivery(ctx context.Context, delivery Delivery) error
	InsertStockTransaction(ctx context.Context, entry inventory.StockTransaction) (inventory.StockTransaction, error)
	GetForUpdate(ctx context.Context, orgID, id int64) (Order, error)
	UpdateStatus(ctx context.Context, orgID, id int64, status Status) (time.Time, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// WithTx runs fn at READ COMMITTED. Product rows are locked with FOR UPDATE before any
// availability read, so concurrent orders for the same product serialize and each reads
// the ledger rows the previous one committed.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, newTxRepository(tx))
	})
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (Order, error) {
	return loadOrder(ctx, r.pool, orgID, id, false)
}

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	where := "WHERE organisation_id = $1"
	args := []any{req.OrganisationID}
	argPos := 2
	if req.CustomerID != nil {
		where += fmt.Sprintf(" AND customer_id = $%d", argPos)
		args = append(args, *req.CustomerID)
		argPos++
	}
	if req.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, *req.Status)
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM orders %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", orderColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

type txRepository struct {
	db        db.DBTX
	customers customers.Repository
	products  products.Repository
	ledger    inventory.TxRepository
}

func newTxRepository(conn db.DBTX) *txRepository {
	return &txRepository{
		db:        conn,
		customers: customers.WithConn(conn),
		products:  products.NewRepository(conn),
		ledger:    inventory.NewTxRepository(conn),
	}
}

func (r *txRepository) GetCustomer(ctx context.Context, orgID, id int64) (customers.Customer, error) {
	return r.customers.Get(ctx, orgID, id)
}

func (r *txRepository) LockProducts(ctx context.Context, orgID int64, ids []int64) ([]products.Product, error) {
	return r.products.LockForSale(ctx, orgID, ids)
}

func (r *txRepository) Available(ctx context.Context, orgID int64, productIDs []int64) (map[int64]decimal.Decimal, error) {
	return r.ledger.Available(ctx, orgID, productIDs)
}

// NextSequence increments the (organisation, period) counter. The updated row stays
// locked until the transaction ends and a rollback gives the number back.
func (r *txRepository) NextSequence(ctx context.Context, orgID int64, period string) (int64, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `INSERT INTO order_number_counters (organisation_id, period, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (organisation_id, period)
DO UPDATE SET last_value = order_number_counters.last_value + 1
RETURNING last_value`, orgID, period).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (Order, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO orders (organisation_id, customer_id, order_number, status, total_amount, discount_amount, final_amount, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING id`,
		order.OrganisationID, order.CustomerID, order.OrderNumber, order.Status, order.TotalAmount,
		order.DiscountAmount, order.FinalAmount, order.Notes, order.CreatedBy, order.CreatedAt).Scan(&order.ID)
	if db.IsForeignKeyViolation(err) && db.ConstraintName(err) == "orders_customer_id_fkey" {
		// customer removed after the in-transaction lookup
		return Order{}, &NotFoundError{Entity: "customer", IDs: []int64{order.CustomerID}}
	}
	if err != nil {
		return Order{}, err
	}
	order.UpdatedAt = order.CreatedAt
	return order, nil
}

func (r *txRepository) InsertItem(ctx context.Context, item OrderItem) (OrderItem, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, quantity, unit_price_at_sale, total_price, loyalty_points)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPriceAtSale, item.TotalPrice, item.LoyaltyPoints).Scan(&item.ID)
	return item, err
}

// UpsertDelivery inserts the delivery row or overwrites the non-null fields of d.
func (r *txRepository) UpsertDelivery(ctx context.Context, d Delivery) error {
	_, err := r.db.Exec(ctx, `INSERT INTO deliveries (order_id, address, recipient_name, recipient_phone, scheduled_date, tracking_number, payment_method, payment_reference)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (order_id) DO UPDATE SET
	address = COALESCE(EXCLUDED.address, deliveries.address),
	recipient_name = COALESCE(EXCLUDED.recipient_name, deliveries.recipient_name),
	recipient_phone = COALESCE(EXCLUDED.recipient_phone, deliveries.recipient_phone),
	scheduled_date = COALESCE(EXCLUDED.scheduled_date, deliveries.scheduled_date),
	tracking_number = COALESCE(EXCLUDED.tracking_number, deliveries.tracking_number),
	payment_method = COALESCE(EXCLUDED.payment_method, deliveries.payment_method),
	payment_reference = COALESCE(EXCLUDED.payment_reference, deliveries.payment_reference)`,
		d.OrderID, d.Address, d.RecipientName, d.RecipientPhone, d.ScheduledDate, d.TrackingNumber, d.PaymentMethod, d.PaymentReference)
	return err
}

func (r *txRepository) InsertStockTransaction(ctx context.Context, entry inventory.StockTransaction) (inventory.StockTransaction, error) {
	return r.ledger.InsertTransaction(ctx, entry)
}

func (r *txRepository) GetForUpdate(ctx context.Context, orgID, id int64) (Order, error) {
	return loadOrder(ctx, r.db, orgID, id, true)
}

func (r *txRepository) UpdateStatus(ctx context.Context, orgID, id int64, status Status) (time.Time, error) {
	var updated time.Time
	err := r.db.QueryRow(ctx, `UPDATE orders SET status = $1, updated_at = NOW()
WHERE organisation_id = $2 AND id = $3
RETURNING updated_at`, status, orgID, id).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrOrderMissing
	}
	return updated, err
}

const orderColumns = `id, organisation_id, customer_id, order_number, status, total_amount, discount_amount, final_amount, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrganisationID, &o.CustomerID, &o.OrderNumber, &o.Status, &o.TotalAmount,
		&o.DiscountAmount, &o.FinalAmount, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func loadOrder(ctx context.Context, conn db.DBTX, orgID, id int64, forUpdate bool) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE organisation_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(conn.QueryRow(ctx, query, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderMissing
		}
		return Order{}, err
	}

	rows, err := conn.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price_at_sale, total_price, loyalty_points
FROM order_items WHERE order_id = $1 ORDER BY id`, order.ID)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPriceAtSale, &it.TotalPrice, &it.LoyaltyPoints); err != nil {
			return Order{}, err
		}
		order.Items = append(order.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	var d Delivery
	err = conn.QueryRow(ctx, `SELECT order_id, address, recipient_name, recipient_phone, scheduled_date, tracking_number, payment_method, payment_reference
FROM deliveries WHERE order_id = $1`, order.ID).
		Scan(&d.OrderID, &d.Address, &d.RecipientName, &d.RecipientPhone, &d.ScheduledDate, &d.TrackingNumber, &d.PaymentMethod, &d.PaymentReference)
	switch {
	case err == nil:
		order.Delivery = &d
	case !errors.Is(err, pgx.ErrNoRows):
		return Order{}, err
	}
	return order, nil
}
