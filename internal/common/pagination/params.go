package pagination

import (
	"fmt"
	"net/http"
	"strconv"
)

// Params is a 1-based page request.
type Params struct {
	Page  int
	Limit int
}

// ParseQueryParams reads page and limit from the query string. Missing
// values take the defaults; malformed or out of range values are an error.
func ParseQueryParams(r *http.Request, cfg Config) (Params, error) {
	params := Params{Page: 1, Limit: cfg.DefaultLimit}
	q := r.URL.Query()

	if s := q.Get("page"); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			return params, fmt.Errorf("invalid query parameter: page must be a positive integer")
		}
		params.Page = page
	}

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > cfg.MaxLimit {
			return params, fmt.Errorf("invalid query parameter: limit must be between 1 and %d", cfg.MaxLimit)
		}
		params.Limit = limit
	}
	return params, nil
}

// Offset is the number of rows skipped before this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}
