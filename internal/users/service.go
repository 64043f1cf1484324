package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockroom/stockroom/internal/platform/validate"
)

// Service handles membership business logic.
type Service struct {
	repo      RepositoryPort
	validator *validator.Validate
	cost      int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validator: validate.New(), cost: bcrypt.DefaultCost}
}

// ListMembers returns the organisation's members.
func (s *Service) ListMembers(ctx context.Context, orgID int64) ([]Member, error) {
	return s.repo.ListMembers(ctx, orgID)
}

// AddMember grants input.Role in orgID to the user with input.Email, creating the account
// first when it does not exist.
func (s *Service) AddMember(ctx context.Context, orgID int64, input AddMemberInput) (Member, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if err := validate.Struct(s.validator, input); err != nil {
		return Member{}, err
	}

	var member Member
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxPort) error {
		user, err := tx.FindUserByEmail(ctx, input.Email)
		if errors.Is(err, errUserMissing) {
			if input.Password == "" {
				return ErrPasswordRequired
			}
			hash, herr := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
			if herr != nil {
				return fmt.Errorf("users: hash password: %w", herr)
			}
			name := input.Name
			if name == "" {
				name = input.Email
			}
			user, err = tx.CreateUser(ctx, input.Email, name, string(hash))
		}
		if err != nil {
			return err
		}
		member, err = tx.AddMember(ctx, orgID, user.ID, input.Role)
		if err != nil {
			return err
		}
		member.Email, member.Name = user.Email, user.Name
		return nil
	})
	if err != nil {
		return Member{}, err
	}
	return member, nil
}
