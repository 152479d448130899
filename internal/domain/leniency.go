package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// LeniencyLevel names a multiplier tier applied to AI-assigned scores.
type LeniencyLevel string

const (
	LeniencyVeryLenient LeniencyLevel = "very_lenient"
	LeniencyLenient     LeniencyLevel = "lenient"
	LeniencyModerate    LeniencyLevel = "moderate"
	LeniencyStrict      LeniencyLevel = "strict"
	LeniencyVeryStrict  LeniencyLevel = "very_strict"
)

type leniencyTier struct {
	multiplier  float64
	percent     int
	description string
}

var leniencyTiers = map[LeniencyLevel]leniencyTier{
	LeniencyVeryLenient: {1.10, 10, "Very Lenient (+10% adjustment)"},
	LeniencyLenient:     {1.05, 5, "Lenient (+5% adjustment)"},
	LeniencyModerate:    {1.00, 0, "Moderate (no adjustment)"},
	LeniencyStrict:      {0.95, -5, "Strict (-5% adjustment)"},
	LeniencyVeryStrict:  {0.90, -10, "Very Strict (-10% adjustment)"},
}

// LeniencyLevels returns every tier in display order, most lenient first.
func LeniencyLevels() []LeniencyLevel {
	return []LeniencyLevel{
		LeniencyVeryLenient,
		LeniencyLenient,
		LeniencyModerate,
		LeniencyStrict,
		LeniencyVeryStrict,
	}
}

var leniencyFolder = cases.Fold()

// ParseLeniencyLevel folds case and whitespace. The second result reports
// whether s named a known tier; unknown input yields LeniencyModerate.
func ParseLeniencyLevel(s string) (LeniencyLevel, bool) {
	l := LeniencyLevel(strings.ReplaceAll(leniencyFolder.String(strings.TrimSpace(s)), " ", "_"))
	if l.Known() {
		return l, true
	}
	return LeniencyModerate, false
}

// Known reports whether l is one of the five tiers.
func (l LeniencyLevel) Known() bool {
	_, ok := leniencyTiers[l]
	return ok
}

// Multiplier returns the score multiplier, 1.00 for unknown tiers.
func (l LeniencyLevel) Multiplier() float64 {
	if t, ok := leniencyTiers[l]; ok {
		return t.multiplier
	}
	return 1.0
}

// PercentageAdjustment returns the signed percentage the tier applies.
func (l LeniencyLevel) PercentageAdjustment() int {
	return leniencyTiers[l].percent
}

// Description returns a human readable label.
func (l LeniencyLevel) Description() string {
	if t, ok := leniencyTiers[l]; ok {
		return t.description
	}
	return leniencyTiers[LeniencyModerate].description
}

// OrDefault returns moderate for unknown tiers.
func (l LeniencyLevel) OrDefault() LeniencyLevel {
	if l.Known() {
		return l
	}
	return LeniencyModerate
}
