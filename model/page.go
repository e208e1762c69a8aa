package model

import (
	"net/url"
	"strconv"
)

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is the paginated envelope returned by list endpoints. Count is the
// total number of items across all pages, not len(Results). Results keep
// the order the server returned.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// HasNext reports whether the server advertised a following page.
func (p Page[T]) HasNext() bool {
	return p.Next != nil && *p.Next != ""
}

// HasPrevious reports whether the server advertised a preceding page.
func (p Page[T]) HasPrevious() bool {
	return p.Previous != nil && *p.Previous != ""
}

// PageParams describes the 1-based pagination of a list request.
type PageParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize returns params with Page >= 1 and PageSize within
// [1, MaxPageSize], defaulting to DefaultPageSize.
func (p PageParams) Normalize() PageParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Values serializes the params as page and page_size query parameters.
func (p PageParams) Values() url.Values {
	p = p.Normalize()
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("page_size", strconv.Itoa(p.PageSize))
	return v
}
