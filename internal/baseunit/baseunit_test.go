package baseunit

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"zero", "0", 0},
		{"empty is zero", "", 0},
		{"small", "10", 10},
		{"large", "1000000000000", 1000000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := Parse(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.want, v.Int64())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"-1", "1.5", "abc", "0x10", "1e9"} {
		_, ok := Parse(input)
		assert.False(t, ok, "input %q should be rejected", input)
	}
}

func TestParsePositive(t *testing.T) {
	_, ok := ParsePositive("0")
	assert.False(t, ok)

	_, ok = ParsePositive("")
	assert.False(t, ok)

	v, ok := ParsePositive("42")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())
}

// Fee math truncates: dust stays with the payer side of the split, so the
// platform never over-collects relative to the stated bps.
func TestBpsShare_Truncates(t *testing.T) {
	// 1000 * 25bps = 2.5 → 2
	fee := BpsShare(big.NewInt(1000), 25)
	assert.Equal(t, int64(2), fee.Int64())

	// 999 * 100bps = 9.99 → 9
	fee = BpsShare(big.NewInt(999), 100)
	assert.Equal(t, int64(9), fee.Int64())

	// full share
	fee = BpsShare(big.NewInt(777), BpsDenominator)
	assert.Equal(t, int64(777), fee.Int64())
}

func TestBpsShare_DegenerateInputs(t *testing.T) {
	assert.Equal(t, int64(0), BpsShare(nil, 25).Int64())
	assert.Equal(t, int64(0), BpsShare(big.NewInt(100), 0).Int64())
	assert.Equal(t, int64(0), BpsShare(big.NewInt(100), -5).Int64())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0", Format(nil))
	assert.Equal(t, "12345", Format(big.NewInt(12345)))
}

func TestCmp(t *testing.T) {
	assert.Equal(t, 0, Cmp("100", "100"))
	assert.Equal(t, -1, Cmp("99", "100"))
	assert.Equal(t, 1, Cmp("101", "100"))
	// malformed treated as zero
	assert.Equal(t, 1, Cmp("1", "garbage"))
}
