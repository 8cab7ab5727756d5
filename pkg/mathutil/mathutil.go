package mathutil

import (
	"github.com/shopspring/decimal"
)

// TenThousands is the basis point denominator.
var TenThousands = decimal.NewFromInt(10000)

// Pow10 returns 10^exp as an integral decimal.
func Pow10(exp int32) decimal.Decimal {
	return decimal.New(1, exp)
}

// MulDiv returns a*b/c truncated toward zero. A zero divisor yields zero.
func MulDiv(a, b, c decimal.Decimal) decimal.Decimal {
	if c.IsZero() {
		return decimal.Zero
	}
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}

// Bps applies a rate expressed in basis point (ie. 2.5% = 250) to value,
// truncating the result.
func Bps(value decimal.Decimal, rate uint32) decimal.Decimal {
	return MulDiv(value, decimal.NewFromInt(int64(rate)), TenThousands)
}

// ToUnits converts a human readable amount (ie. "0.00001") into an integral
// amount of the smallest unit for the given precision. Extra digits are
// truncated.
func ToUnits(amount string, decimals int32) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Shift(decimals).Truncate(0), nil
}

// FromUnits is the inverse of ToUnits.
func FromUnits(units decimal.Decimal, decimals int32) decimal.Decimal {
	return units.Shift(-decimals)
}

// IsIntegral returns whether d carries no fractional part.
func IsIntegral(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}
