package shared

// Page size bounds for list queries
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageRequest selects one page of an ordered listing. OrderBy is a
// listing-specific key; unknown keys fall back to the listing's default.
type PageRequest struct {
	Page     int
	PageSize int
	OrderBy  string
	OrderDir string
}

// Normalize clamps paging values into their valid ranges. The direction is
// descending unless "asc" was asked for.
func (p PageRequest) Normalize() PageRequest {
	p.Page = max(p.Page, 1)
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	if p.OrderDir != "asc" {
		p.OrderDir = "desc"
	}
	return p
}

// Offset returns the row offset of the requested page
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// PageCount returns how many pages of size hold total rows
func PageCount(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// Page is one page of a listing together with the listing's size
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPage wraps items fetched for req
func NewPage[T any](items []T, total int64, req PageRequest) Page[T] {
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: PageCount(total, req.PageSize),
	}
}

// HasNext reports whether a later page exists
func (p Page[T]) HasNext() bool {
	return p.Page < p.TotalPages
}
