package pagination

import (
	"net/http"
	"net/url"
	"strconv"
)

// Limits applied to page sizes read from a request.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// DefaultParams returns sensible pagination defaults.
func DefaultParams() Params {
	return Params{
		Page:     1,
		PageSize: DefaultPageSize,
	}
}

// FromRequest extracts pagination parameters from an HTTP request. Both
// page_size and the older per_page spelling are accepted; invalid values fall
// back to the defaults.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if page := q.Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			p.Page = v
		}
	}

	size := q.Get("page_size")
	if size == "" {
		size = q.Get("per_page")
	}
	if size != "" {
		if v, err := strconv.Atoi(size); err == nil && v > 0 && v <= MaxPageSize {
			p.PageSize = v
		}
	}
	return p
}

// Offset returns the zero-based index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Query returns the params in the backend's page/page_size form, merged over
// a copy of extra.
func (p Params) Query(extra url.Values) url.Values {
	q := make(url.Values, len(extra)+2)
	for k, v := range extra {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("page_size", strconv.Itoa(p.PageSize))
	return q
}
