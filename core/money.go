package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits kept for every amount.
const MoneyPlaces = 2

// HasMoneyPrecision reports whether d has no more than MoneyPlaces fractional digits.
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// FitsMinor reports whether d, in minor units, fits the int64 storage column.
func FitsMinor(d decimal.Decimal) bool {
	minor := d.Shift(MoneyPlaces)
	return minor.LessThanOrEqual(maxMinor) && minor.GreaterThanOrEqual(maxMinor.Neg())
}

// ValidMoney reports whether d is a positive amount with cent precision that can be stored.
func ValidMoney(d decimal.Decimal) bool {
	return d.IsPositive() && HasMoneyPrecision(d) && FitsMinor(d)
}

// ToMinor converts d to minor units (paise, cents) for storage. d must satisfy FitsMinor.
func ToMinor(d decimal.Decimal) int64 {
	return d.Shift(MoneyPlaces).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MoneyPlaces)
}

// Percentage returns part/whole*100 rounded to 2 places, or zero when whole is zero.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(decimal.NewFromInt(100)).DivRound(whole, 2)
}
