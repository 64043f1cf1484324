package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/rbac"
)

// errUserMissing signals an unknown e-mail.
var errUserMissing = errors.New("users: user not found")

// RepositoryPort defines data access methods for users and memberships.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxPort) error) error
	ListMembers(ctx context.Context, orgID int64) ([]Member, error)
}

// TxPort is available inside WithTx.
type TxPort interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	AddMember(ctx context.Context, orgID, userID int64, role rbac.Role) (Member, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in one transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxPort) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{conn: tx})
	})
}

// ListMembers returns the organisation's members ordered by e-mail.
func (r *Repository) ListMembers(ctx context.Context, orgID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, u.id, u.email, u.name, m.role, m.created_at
FROM organisation_members m
JOIN users u ON u.id = m.user_id
WHERE m.organisation_id = $1
ORDER BY u.email`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.MemberID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

type txRepository struct {
	conn db.DBTX
}

func (r *txRepository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := r.conn.QueryRow(ctx, `SELECT id, email, name, is_active, created_at FROM users WHERE lower(email) = $1`,
		strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, errUserMissing
	}
	return u, err
}

func (r *txRepository) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	u := User{Email: email, Name: name, IsActive: true}
	err := r.conn.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, is_active)
VALUES ($1, $2, $3, TRUE)
RETURNING id, created_at`, email, name, passwordHash).Scan(&u.ID, &u.CreatedAt)
	return u, err
}

func (r *txRepository) AddMember(ctx context.Context, orgID, userID int64, role rbac.Role) (Member, error) {
	m := Member{UserID: userID, Role: role}
	err := r.conn.QueryRow(ctx, `INSERT INTO organisation_members (organisation_id, user_id, role)
VALUES ($1, $2, $3)
RETURNING id, created_at`, orgID, userID, role).Scan(&m.MemberID, &m.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Member{}, ErrAlreadyMember
	}
	return m, err
}
