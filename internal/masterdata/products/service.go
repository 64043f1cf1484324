package products

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/stockroom/stockroom/internal/masterdata/shared"
	"github.com/stockroom/stockroom/internal/platform/validate"
)

type Service struct {
	repo      Repository
	validator *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: validate.New()}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	filters.Normalize()
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, orgID, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, orgID, id)
}

func (s *Service) Create(ctx context.Context, orgID int64, input CreateInput) (Product, error) {
	if err := s.validate(&input); err != nil {
		return Product{}, err
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	return s.repo.Create(ctx, Product{
		OrganisationID: orgID,
		SKU:            input.SKU,
		Name:           input.Name,
		Type:           input.Type,
		Unit:           input.Unit,
		SellingPrice:   input.SellingPrice,
		IsActive:       active,
		CategoryID:     input.CategoryID,
	})
}

// UpdatePrice replaces the current selling price. Order lines keep the price they were
// sold at.
func (s *Service) UpdatePrice(ctx context.Context, orgID, id int64, input PriceInput) (Product, error) {
	if id <= 0 {
		return Product{}, shared.ErrInvalidID
	}
	if err := validate.Struct(s.validator, input); err != nil {
		return Product{}, err
	}
	if err := s.repo.UpdatePrice(ctx, orgID, id, input.SellingPrice); err != nil {
		return Product{}, err
	}
	return s.repo.Get(ctx, orgID, id)
}
