package products

import (
	"strings"

	"github.com/stockroom/stockroom/internal/platform/validate"
)

func (s *Service) validate(input *CreateInput) error {
	input.SKU = strings.ToUpper(strings.TrimSpace(input.SKU))
	input.Name = strings.TrimSpace(input.Name)
	input.Unit = strings.TrimSpace(input.Unit)
	return validate.Struct(s.validator, input)
}
