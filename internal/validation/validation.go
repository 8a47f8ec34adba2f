// Package validation provides input validation for the chainfolio API.
//
// Caller identities are EVM addresses. The wallet/session layer authenticates
// them upstream; here they are only checked for shape and normalized to
// lowercase so ownership comparisons are case-insensitive.
package validation

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxNameLength bounds portfolio/strategy names.
const MaxNameLength = 128

// MaxDescriptionLength bounds free-text descriptions.
const MaxDescriptionLength = 2048

// IsValidAddress checks if a string is a well-formed EVM address.
func IsValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

// NormalizeAddress lowercases and 0x-prefixes an address. It does not
// validate; call IsValidAddress first.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}
	return strings.ToLower(addr)
}

// ChecksumAddress returns the EIP-55 checksummed form for display.
func ChecksumAddress(addr string) string {
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

// SanitizeString strips null bytes, trims, and bounds free-text input.
// Null bytes go first so that trimming sees the whitespace they hid.
func SanitizeString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// AddressParamMiddleware rejects requests whose :address URL parameter
// is not a valid EVM address. Handlers normalize the value themselves.
func AddressParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Param("address")
		if addr == "" {
			c.Next()
			return
		}
		if !IsValidAddress(addr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "address must be a valid EVM address (0x...)",
			})
			return
		}
		c.Next()
	}
}
