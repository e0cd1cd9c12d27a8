package pagination

// Metadata describes the page returned.
type Metadata struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// NewMetadata computes the page count for total items. An empty result
// still has one page.
func NewMetadata(p Params, total int64) Metadata {
	pages := 1
	if total > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return Metadata{
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: pages,
		HasNext:    p.Page < pages,
	}
}

// Response is the paged envelope.
type Response[T any] struct {
	Data       []T      `json:"data"`
	Pagination Metadata `json:"pagination"`
}

// NewResponse wraps data. A nil slice is encoded as [].
func NewResponse[T any](data []T, p Params, total int64) Response[T] {
	if data == nil {
		data = []T{}
	}
	return Response[T]{Data: data, Pagination: NewMetadata(p, total)}
}
