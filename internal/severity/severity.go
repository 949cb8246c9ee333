// Package severity turns diff statistics, optionally fused with auxiliary
// prediction signals, into a sortable 0-100 score and a categorical level.
// Scoring is total: out-of-range inputs are clamped, never rejected.
package severity

import (
	"math"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/models"
)

// Level is the categorical severity classification.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Fixed numeric mapping so categorical and numeric severities stay
// comparable downstream.
var levelNumeric = map[Level]int{
	LevelLow:      20,
	LevelMedium:   50,
	LevelHigh:     70,
	LevelCritical: 90,
}

// Numeric returns the 0-100 equivalent of a level.
func Numeric(l Level) int {
	if n, ok := levelNumeric[l]; ok {
		return n
	}
	return levelNumeric[LevelLow]
}

// Score is the baseline policy: percentage of changed area, rounded and
// clamped to [0, 100]. Monotonic in changed/total.
func Score(changed, total int) int {
	if total <= 0 || changed <= 0 {
		return 0
	}
	if changed > total {
		changed = total
	}
	return int(math.Round(100 * float64(changed) / float64(total)))
}

// LevelFor buckets a baseline numeric score into a level, mirroring the
// changed-area cut points used by the fused policy.
func LevelFor(score int) Level {
	switch {
	case score >= 30:
		return LevelCritical
	case score >= 10:
		return LevelHigh
	case score >= 5:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Fuse combines the change ratio with auxiliary signals (machinery count,
// erosion risk class) into a level plus its fixed numeric form. With a nil
// signal it degrades to the baseline classification of Score(changed, total).
func Fuse(changed, total int, sig *models.ChangeSignal) (Level, int) {
	if sig == nil {
		l := LevelFor(Score(changed, total))
		return l, Score(changed, total)
	}

	ratio := 0.0
	if total > 0 {
		ratio = float64(changed) / float64(total)
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
	}

	points := 0
	switch {
	case ratio >= 0.30:
		points += 3
	case ratio >= 0.10:
		points += 2
	case ratio >= 0.05:
		points += 1
	}

	switch n := sig.ObjectCount(); {
	case n >= 10:
		points += 2
	case n >= 3:
		points += 1
	}

	switch sig.ErosionRisk {
	case "high":
		points += 2
	case "medium":
		points += 1
	}

	var l Level
	switch {
	case points >= 6:
		l = LevelCritical
	case points >= 4:
		l = LevelHigh
	case points >= 2:
		l = LevelMedium
	default:
		l = LevelLow
	}
	return l, Numeric(l)
}
