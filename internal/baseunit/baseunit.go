// Package baseunit provides arithmetic for amounts carried in the smallest
// denomination unit of the native asset.
//
// Amounts cross the API boundary as unsigned decimal integer strings and are
// held internally as big.Int. All basis-point math truncates toward zero;
// there is no rounding compensation, so accumulated dust favors the fee
// collector.
package baseunit

import (
	"math/big"
	"strings"
)

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

var bpsDenom = big.NewInt(BpsDenominator)

// Parse converts an unsigned decimal integer string to a big.Int amount.
// Returns (nil, false) for negative, fractional, or malformed input.
// Empty string parses as zero.
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}
	if strings.HasPrefix(s, "-") || strings.Contains(s, ".") {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return v, true
}

// ParsePositive is Parse restricted to strictly positive amounts.
func ParsePositive(s string) (*big.Int, bool) {
	v, ok := Parse(s)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

// Format renders an amount as a decimal string. Nil formats as "0".
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// BpsShare returns amount * bps / 10000, truncated. A nil amount or
// non-positive bps yields zero.
func BpsShare(amount *big.Int, bps int) *big.Int {
	if amount == nil || bps <= 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return share.Div(share, bpsDenom)
}

// Sub returns a - b as a fresh big.Int.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Add returns a + b as a fresh big.Int.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Zero returns a fresh zero amount.
func Zero() *big.Int {
	return big.NewInt(0)
}

// Cmp compares two decimal amount strings. Malformed inputs compare as zero.
func Cmp(a, b string) int {
	av, _ := Parse(a)
	bv, _ := Parse(b)
	if av == nil {
		av = big.NewInt(0)
	}
	if bv == nil {
		bv = big.NewInt(0)
	}
	return av.Cmp(bv)
}
