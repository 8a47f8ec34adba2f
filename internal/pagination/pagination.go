// Package pagination provides start-index + count pagination for the
// query surface. History tables are append-only, so offset pagination is
// stable: a (start, count) window over insertion order never shifts.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// DefaultCount is used when no count is requested.
const DefaultCount = 50

// MaxCount caps a single page.
const MaxCount = 500

// Page is a validated (start, count) window.
type Page struct {
	Start int
	Count int
}

// FromQuery reads "start" and "count" query params, clamping to sane bounds.
func FromQuery(c *gin.Context) Page {
	start, err := strconv.Atoi(c.DefaultQuery("start", "0"))
	if err != nil || start < 0 {
		start = 0
	}
	count, err := strconv.Atoi(c.DefaultQuery("count", strconv.Itoa(DefaultCount)))
	if err != nil || count <= 0 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}
	return Page{Start: start, Count: count}
}

// Slice applies the window to a slice, returning the page and the total length.
func Slice[T any](items []T, p Page) ([]T, int) {
	total := len(items)
	if p.Start >= total {
		return nil, total
	}
	end := p.Start + p.Count
	if end > total {
		end = total
	}
	return items[p.Start:end], total
}
