package helpers

import (
	"fmt"
	"math"
)

// RoundPrice rounds a price to two decimal places, the granularity the Salla
// API accepts.
func RoundPrice(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// FormatSAR formats a number as Saudi Riyal currency with thousand separators
func FormatSAR(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	whole := int64(amount)
	cents := int64(math.Round((amount - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	// Add thousand separators to the whole part
	str := fmt.Sprintf("%d", whole)
	length := len(str)
	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%02d SAR", sign, result, cents)
}
