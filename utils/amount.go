package utils

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

var ErrAmountOverflow = errors.New("amount overflow")

var maxInt64 = uint256.NewInt(math.MaxInt64)

// AddInt64 adds two signed amounts and fails instead of wrapping.
func AddInt64(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// SumAmounts totals non-negative amounts in 256 bit space and fails if the result leaves int64.
func SumAmounts(values ...int64) (int64, error) {
	sum := uint256.NewInt(0)
	for _, v := range values {
		if v < 0 {
			return 0, ErrAmountOverflow
		}
		sum.Add(sum, uint256.NewInt(uint64(v)))
	}
	if sum.Gt(maxInt64) {
		return 0, ErrAmountOverflow
	}
	return int64(sum.Uint64()), nil
}
