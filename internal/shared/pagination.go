package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Limit      int `json:"limit"`
	Offset     int `json:"offset"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Limits applied to list endpoints.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ClampLimit normalises a requested page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// NewPagination computes pagination metadata.
func NewPagination(limit, offset, total int) Pagination {
	limit = ClampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Limit: limit, Offset: offset, Total: total, TotalPages: totalPages}
}
