package evaluator

import "time"

// GracePolicy carries the caps of a course's grace-mark allowance.
// Nil caps are unset; the effective allowance is the minimum of the set caps.
type GracePolicy struct {
	AbsoluteCap *float64
	PercentCap  *float64
	Active      bool
	ValidFrom   time.Time
	ValidUntil  *time.Time
}

// Allowance returns the maximum grace marks the policy permits for a
// component with the given max marks.
func (p GracePolicy) Allowance(maxMarks float64) float64 {
	if p.AbsoluteCap == nil && p.PercentCap == nil {
		return 0
	}
	allowance := -1.0
	if p.AbsoluteCap != nil {
		allowance = *p.AbsoluteCap
	}
	if p.PercentCap != nil {
		pct := *p.PercentCap * maxMarks / 100
		if allowance < 0 || pct < allowance {
			allowance = pct
		}
	}
	return allowance
}

// InEffect reports whether the policy applies at the given instant.
func (p GracePolicy) InEffect(at time.Time) bool {
	if !p.Active {
		return false
	}
	if at.Before(p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && at.After(*p.ValidUntil) {
		return false
	}
	return true
}

// ApplyGrace adds the minimum top-up needed to lift raw to the target mark,
// bounded by the policy's allowance and never beyond maxMarks. A score at or
// above the target is returned unchanged.
func ApplyGrace(raw, maxMarks, target float64, p GracePolicy, at time.Time) float64 {
	if !p.InEffect(at) {
		return raw
	}
	if target > maxMarks {
		target = maxMarks
	}
	if raw >= target {
		return raw
	}
	needed := target - raw
	allowance := p.Allowance(maxMarks)
	if needed > allowance {
		needed = allowance
	}
	adjusted := raw + needed
	if adjusted > maxMarks {
		adjusted = maxMarks
	}
	return adjusted
}
