package aggregate

import (
	"github.com/shopspring/decimal"
)

// Percent returns 100*part/total, or 0 when total is not positive.
func Percent(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * part / total
}

// FormatPercent renders Percent with one decimal place; a zero total
// renders as "0".
func FormatPercent(part, total float64) string {
	if total <= 0 {
		return "0"
	}
	return decimal.NewFromFloat(Percent(part, total)).StringFixed(1)
}
