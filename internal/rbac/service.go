package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/shared"
)

// MembershipStore resolves memberships.
type MembershipStore interface {
	FindMembership(ctx context.Context, organisationID, userID int64) (Membership, error)
}

// PGStore reads memberships from PostgreSQL.
type PGStore struct {
	db db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{db: conn}
}

// FindMembership loads the membership of userID in organisationID.
func (s *PGStore) FindMembership(ctx context.Context, organisationID, userID int64) (Membership, error) {
	var m Membership
	err := s.db.QueryRow(ctx, `SELECT id, user_id, organisation_id, role, created_at
FROM organisation_members
WHERE organisation_id = $1 AND user_id = $2`, organisationID, userID).
		Scan(&m.MemberID, &m.UserID, &m.OrganisationID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, err
	}
	return m, nil
}

// Service resolves the calling actor and checks role requirements.
type Service struct {
	store MembershipStore
}

// NewService constructs a Service.
func NewService(store MembershipStore) *Service {
	return &Service{store: store}
}

// Authorize resolves the user in ctx against organisationID and requires one of roles.
// An empty roles list accepts any membership.
func (s *Service) Authorize(ctx context.Context, organisationID int64, roles ...Role) (Actor, error) {
	userID, ok := shared.UserIDFromContext(ctx)
	if !ok || organisationID <= 0 {
		return Actor{}, ErrUnauthorized
	}
	m, err := s.store.FindMembership(ctx, organisationID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Actor{}, ErrUnauthorized
		}
		return Actor{}, fmt.Errorf("rbac: resolve membership: %w", err)
	}
	if !hasRole(m.Role, roles) {
		return Actor{}, fmt.Errorf("%w: role %s not permitted", ErrUnauthorized, m.Role)
	}
	return Actor{UserID: m.UserID, MemberID: m.MemberID, OrganisationID: m.OrganisationID, Role: m.Role}, nil
}

func hasRole(role Role, allowed []Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
