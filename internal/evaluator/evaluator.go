package evaluator

import (
	"errors"
	"fmt"
	"sort"
)

// Calculation formulas for a component's underlying graded items
const (
	FormulaSum             = "sum"
	FormulaAverage         = "average"
	FormulaBestOfN         = "best_of_n"
	FormulaWeightedAverage = "weighted_average"
)

// Round-off rules applied to a computed score
const (
	RoundNone        = "none"
	RoundCeiling     = "ceiling"
	RoundFloor       = "floor"
	RoundNearest     = "nearest"
	RoundNearestHalf = "nearest_half"
)

// PassThresholdPercent is the institution-wide pass line as a percent of max marks.
const PassThresholdPercent = 40.0

var ErrMalformedInput = errors.New("malformed evaluator input")

// Score is one graded item's result. Absent items carry no value.
type Score struct {
	Value  float64
	Absent bool
}

// Input bundles everything a formula needs. Weights is only consulted by
// weighted_average and must match Scores in length.
type Input struct {
	Formula string
	BestOfN int
	Scores  []Score
	Weights []float64
}

// Evaluate turns a set of raw item scores into a single contribution value.
// Absent items contribute 0 to sum and are excluded from average/best_of_n.
func Evaluate(in Input) (float64, error) {
	switch in.Formula {
	case FormulaSum:
		total := 0.0
		for _, s := range in.Scores {
			if !s.Absent {
				total += s.Value
			}
		}
		return total, nil

	case FormulaAverage:
		total := 0.0
		count := 0
		for _, s := range in.Scores {
			if !s.Absent {
				total += s.Value
				count++
			}
		}
		if count == 0 {
			// All-absent averages to 0 rather than "no grade". Inherited
			// institutional policy, pinned by tests.
			return 0, nil
		}
		return total / float64(count), nil

	case FormulaBestOfN:
		if in.BestOfN <= 0 {
			return 0, fmt.Errorf("%w: best_of_n requires a positive count", ErrMalformedInput)
		}
		present := make([]float64, 0, len(in.Scores))
		for _, s := range in.Scores {
			if !s.Absent {
				present = append(present, s.Value)
			}
		}
		sort.Sort(sort.Reverse(sort.Float64Slice(present)))
		n := in.BestOfN
		if n > len(present) {
			n = len(present)
		}
		total := 0.0
		for _, v := range present[:n] {
			total += v
		}
		return total, nil

	case FormulaWeightedAverage:
		if len(in.Weights) != len(in.Scores) {
			return 0, fmt.Errorf("%w: %d scores but %d weights", ErrMalformedInput, len(in.Scores), len(in.Weights))
		}
		num := 0.0
		den := 0.0
		for i, s := range in.Scores {
			if s.Absent {
				continue
			}
			num += s.Value * in.Weights[i]
			den += in.Weights[i]
		}
		if den == 0 {
			return 0, nil
		}
		return num / den, nil

	default:
		return 0, fmt.Errorf("%w: unknown formula %q", ErrMalformedInput, in.Formula)
	}
}

// ValidFormula reports whether f is one of the supported formulas.
func ValidFormula(f string) bool {
	switch f {
	case FormulaSum, FormulaAverage, FormulaBestOfN, FormulaWeightedAverage:
		return true
	}
	return false
}

// ValidRoundRule reports whether r is one of the supported round-off rules.
func ValidRoundRule(r string) bool {
	switch r {
	case RoundNone, RoundCeiling, RoundFloor, RoundNearest, RoundNearestHalf:
		return true
	}
	return false
}

// PassMark returns the pass line in marks for a component.
func PassMark(maxMarks float64) float64 {
	return maxMarks * PassThresholdPercent / 100
}
