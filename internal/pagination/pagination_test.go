package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func pageFor(t *testing.T, rawQuery string) Page {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+rawQuery, nil)
	return FromQuery(c)
}

func TestFromQuery(t *testing.T) {
	p := pageFor(t, "")
	assert.Equal(t, Page{Start: 0, Count: DefaultCount}, p)

	p = pageFor(t, "start=10&count=25")
	assert.Equal(t, Page{Start: 10, Count: 25}, p)

	// negative/garbage clamps to defaults
	p = pageFor(t, "start=-5&count=zero")
	assert.Equal(t, Page{Start: 0, Count: DefaultCount}, p)

	// count capped
	p = pageFor(t, "count=100000")
	assert.Equal(t, MaxCount, p.Count)
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, total := Slice(items, Page{Start: 0, Count: 2})
	assert.Equal(t, []int{1, 2}, page)
	assert.Equal(t, 5, total)

	page, _ = Slice(items, Page{Start: 3, Count: 10})
	assert.Equal(t, []int{4, 5}, page)

	page, total = Slice(items, Page{Start: 99, Count: 10})
	assert.Nil(t, page)
	assert.Equal(t, 5, total)
}
