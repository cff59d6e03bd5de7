package evaluator

import "math"

// Round applies a round-off rule to a computed score. Every rule is
// idempotent: rounding an already-rounded value changes nothing.
// Unknown rules behave like "none".
func Round(rule string, v float64) float64 {
	switch rule {
	case RoundCeiling:
		return math.Ceil(v)
	case RoundFloor:
		return math.Floor(v)
	case RoundNearest:
		// math.Round rounds half away from zero
		return math.Round(v)
	case RoundNearestHalf:
		return math.Round(v*2) / 2
	default:
		return v
	}
}
