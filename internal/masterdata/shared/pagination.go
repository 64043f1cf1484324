package shared

import (
	"net/url"
	"strconv"
	"strings"
)

// ListFilters represents standard list filters for organisation-scoped master data.
type ListFilters struct {
	OrganisationID int64
	Limit          int
	Offset         int
	Search         string
	SortBy         string
	SortDir        string
	IsActive       *bool
}

// FiltersFromQuery parses limit, offset, q, sort, dir and active query parameters.
func FiltersFromQuery(orgID int64, q url.Values) ListFilters {
	f := ListFilters{OrganisationID: orgID, Search: strings.TrimSpace(q.Get("q")), SortBy: q.Get("sort"), SortDir: q.Get("dir")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if v, err := strconv.ParseBool(q.Get("active")); err == nil {
		f.IsActive = &v
	}
	f.Normalize()
	return f
}

// Normalize clamps paging values.
func (f *ListFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.SortDir != SortDesc {
		f.SortDir = SortAsc
	}
}
