package itc

import "math"

// storagePrecision is the decimal place count the spec's rounding rule
// operates at (spec.md §4.D: "round half-to-even at the storage precision,
// typically 4 decimals").
const storagePrecision = 4

// roundHalfEven rounds v to storagePrecision decimals using round-half-to-
// even (banker's rounding), matching spec.md §4.D's documented rule.
// math.RoundToEven ties-to-even at the integer; scaling by 10^precision
// and back gives ties-to-even at the target decimal place.
func roundHalfEven(v float64) float64 {
	scale := math.Pow(10, storagePrecision)
	return math.RoundToEven(v*scale) / scale
}
