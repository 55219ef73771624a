// Package paging normalizes page/limit parameters and builds pagination metadata.
package paging

// Defaults used by list endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit far from overflowing int.
	MaxPage = 1_000_000
)

// Pagination describes one page of a larger result set.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Request is a normalized page request.
type Request struct {
	Page  int
	Limit int
}

// Normalize clamps page to [1, MaxPage] and limit to [1, max], substituting
// def for non-positive limits.
func Normalize(page, limit, def, max int) Request {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return Request{Page: page, Limit: limit}
}

// Offset is the number of rows to skip.
func (r Request) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Of builds the metadata for total rows.
func (r Request) Of(total int) Pagination {
	pages := 0
	if r.Limit > 0 {
		pages = (total + r.Limit - 1) / r.Limit
	}
	return Pagination{Page: r.Page, Limit: r.Limit, Total: total, TotalPages: pages}
}

// Window slices items for an in-memory page.
func Window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return items[offset:end]
}
