package shared

import (
	"errors"
	"fmt"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

var (
	ErrNotFound      = fmt.Errorf("masterdata: %w", httpx.ErrNotFound)
	ErrDuplicate     = fmt.Errorf("masterdata: %w", httpx.ErrDuplicate)
	ErrValidation    = fmt.Errorf("masterdata: %w", httpx.ErrValidation)
	ErrInvalidID     = errors.Join(ErrValidation, errors.New("invalid ID"))
	ErrRequiredField = errors.Join(ErrValidation, errors.New("field is required"))
)
