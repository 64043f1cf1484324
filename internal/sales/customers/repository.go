package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/platform/httpx"
)

var (
	ErrNotFound      = fmt.Errorf("customer %w", httpx.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("customer code %w", httpx.ErrDuplicate)
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, orgID, id int64) (Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	NextCode(ctx context.Context, orgID int64) (string, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

// WithConn binds a repository to an already open transaction. WithTx on the result runs
// fn inline.
func WithConn(conn db.DBTX) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx})
	})
}

const customerColumns = `id, organisation_id, code, name, email, phone, address, notes, created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.OrganisationID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) Get(ctx context.Context, orgID, id int64) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE organisation_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	where := "WHERE organisation_id = $1"
	args := []any{req.OrganisationID}
	argPos := 2
	if req.Search != "" {
		where += fmt.Sprintf(" AND (code ILIKE $%d OR name ILIKE $%d OR email ILIKE $%d)", argPos, argPos, argPos)
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM customers %s ORDER BY code LIMIT $%d OFFSET $%d", customerColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, customer Customer) (Customer, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO customers (organisation_id, code, name, email, phone, address, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
		customer.OrganisationID, customer.Code, customer.Name, customer.Email, customer.Phone,
		customer.Address, customer.Notes, customer.CreatedBy, now).Scan(&customer.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Customer{}, ErrAlreadyExists
		}
		return Customer{}, err
	}
	customer.CreatedAt = now
	customer.UpdatedAt = now
	return customer, nil
}

// NextCode returns CUST-NNNNN following the highest generated code of the organisation.
func (r *repository) NextCode(ctx context.Context, orgID int64) (string, error) {
	var last int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(SUBSTRING(code FROM 6) AS BIGINT)), 0)
FROM customers
WHERE organisation_id = $1 AND code ~ '^CUST-[0-9]+$'`, orgID).Scan(&last)
	if err != nil {
		return "", err
	}
	return FormatCode(last + 1), nil
}

// FormatCode renders a customer sequence as CUST-NNNNN.
func FormatCode(seq int64) string {
	return fmt.Sprintf("CUST-%05d", seq)
}
