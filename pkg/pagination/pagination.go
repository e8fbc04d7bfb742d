// Package pagination normalizes page/limit query parameters and builds
// paged response envelopes.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	// DefaultLimit is the page size used when the request does not set one.
	DefaultLimit = 20
	// MaxLimit caps the page size a caller may request.
	MaxLimit = 100
)

// Params holds normalized pagination input. Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// FromRequest parses the page and limit query parameters, applying defaults
// and bounds. Invalid or missing values fall back to page 1 and DefaultLimit.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	p := Params{Page: 1, Limit: DefaultLimit}

	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		if v > MaxLimit {
			v = MaxLimit
		}
		p.Limit = v
	}
	return p
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages computes the page count for a total row count. It is never
// less than 1 so that an empty result still has a valid page to show.
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 1
	}
	pages := int((total + int64(limit) - 1) / int64(limit))
	if pages < 1 {
		return 1
	}
	return pages
}

// Clamp forces a page number into [1, totalPages].
func Clamp(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Result is the standard paged response envelope.
type Result struct {
	Items      any   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// NewResult wraps a page of items with its pagination metadata. The reported
// page is clamped into the valid range.
func NewResult(items any, total int64, p Params) Result {
	pages := TotalPages(total, p.Limit)
	return Result{
		Items:      items,
		Total:      total,
		Page:       Clamp(p.Page, pages),
		Limit:      p.Limit,
		TotalPages: pages,
	}
}
