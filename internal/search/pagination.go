package search

import (
	"github.com/dreamware/bookshard/internal/query"
)

// Page is the window of results actually served.
type Page struct {
	Number     int // Effective 1-based page, clamped to the last page
	Size       int // Rows per page
	TotalPages int // ceil(total / Size)
	Offset     int // Rows skipped before Number
}

// Paginate clamps requestedPage to the pages that total records fill.
// With no records the effective page is 1 and TotalPages is 0.
// Offset comes from query.PageLimit, the same computation the compiled row
// query uses.
func Paginate(total int64, pageSize, requestedPage int) (Page, error) {
	if _, err := query.PageLimit(pageSize, requestedPage); err != nil {
		return Page{}, err
	}
	if total < 0 {
		total = 0
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	number := 1
	if totalPages > 0 {
		number = min(requestedPage, totalPages)
	}

	limit, err := query.PageLimit(pageSize, number)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Number:     number,
		Size:       pageSize,
		TotalPages: totalPages,
		Offset:     limit.Offset,
	}, nil
}
