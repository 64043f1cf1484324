package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stockroom/stockroom/internal/platform/validate"
	"github.com/stockroom/stockroom/internal/shared"
)

// generated codes race with concurrent creations; retry a few times on collision.
const codeAttempts = 3

type Service struct {
	repo      Repository
	validator *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: validate.New()}
}

func (s *Service) Create(ctx context.Context, orgID int64, req CreateCustomerRequest, createdBy int64) (Customer, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(s.validator, req); err != nil {
		return Customer{}, err
	}

	customer := Customer{
		OrganisationID: orgID,
		Code:           req.Code,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Address:        req.Address,
		Notes:          req.Notes,
		CreatedBy:      createdBy,
	}

	attempts := 1
	if customer.Code == "" {
		attempts = codeAttempts
	}
	var created Customer
	var err error
	for i := 0; i < attempts; i++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			c := customer
			if c.Code == "" {
				code, err := repo.NextCode(ctx, orgID)
				if err != nil {
					return fmt.Errorf("next customer code: %w", err)
				}
				c.Code = code
			}
			created, err = repo.Create(ctx, c)
			return err
		})
		if !errors.Is(err, ErrAlreadyExists) {
			break
		}
	}
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, orgID, id int64) (Customer, error) {
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	req.Limit = shared.ClampLimit(req.Limit)
	if req.Offset < 0 {
		req.Offset = 0
	}
	return s.repo.List(ctx, req)
}
