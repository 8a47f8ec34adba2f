package validation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"))
	assert.True(t, IsValidAddress("0xab5801a7d398351b8be11c439e05c5b3259aec9b"))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("0x123"))
	assert.False(t, IsValidAddress("not-an-address"))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		NormalizeAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"))
	assert.Equal(t,
		"0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		NormalizeAddress("ab5801a7d398351b8be11c439e05c5b3259aec9b"))
}

func TestChecksumAddress(t *testing.T) {
	assert.Equal(t,
		"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		ChecksumAddress("0xab5801a7d398351b8be11c439e05c5b3259aec9b"))
	// invalid input passes through unchanged
	assert.Equal(t, "nope", ChecksumAddress("nope"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello \x00", 100))
	assert.Equal(t, "hello", SanitizeString("\x00hello\x00 \x00", 100))
	assert.Equal(t, "ab", SanitizeString("abcd", 2))
}

func TestAddressParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x/:address", AddressParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/0xab5801a7d398351b8be11c439e05c5b3259aec9b", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x/garbage", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
