package domain

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// GradingMode selects how a submission is scored.
type GradingMode string

const (
	// ModeSimple grades against the assignment instructions only.
	ModeSimple GradingMode = "simple"
	// ModeRubric grades against a discrete rubric.
	ModeRubric GradingMode = "rubric"
	// ModeRangedRubric grades against a ranged rubric.
	ModeRangedRubric GradingMode = "ranged_rubric"
)

var modeFolder = cases.Fold()

// ParseGradingMode normalises s and returns the matching mode.
func ParseGradingMode(s string) (GradingMode, error) {
	mode := GradingMode(modeFolder.String(strings.TrimSpace(s)))
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownGradingMode, s)
	}
	return mode, nil
}

// Valid reports whether m is one of the supported modes.
func (m GradingMode) Valid() bool {
	switch m {
	case ModeSimple, ModeRubric, ModeRangedRubric:
		return true
	default:
		return false
	}
}

// UsesRubric reports whether m requires a rubric schema.
func (m GradingMode) UsesRubric() bool { return m == ModeRubric || m == ModeRangedRubric }

// CriterionKind distinguishes discrete criteria from ranged ones.
type CriterionKind string

const (
	KindDiscrete CriterionKind = "discrete"
	KindRanged   CriterionKind = "ranged"
)

// Level is one discrete performance level with an exact achievable score.
type Level struct {
	ID         int64   `json:"id" yaml:"id"`
	Definition string  `json:"definition" yaml:"definition"`
	Score      float64 `json:"score" yaml:"score"`
}

// ScoreRange is a level expanded into the interval of scores it covers.
type ScoreRange struct {
	ID         int64   `json:"id"`
	Definition string  `json:"definition"`
	MinScore   float64 `json:"min_score"`
	MaxScore   float64 `json:"max_score"`
	LevelScore float64 `json:"level_score"`
}

// Criterion is one independently scored dimension of a rubric.
// Discrete criteria populate Levels, ranged criteria populate Ranges.
type Criterion struct {
	ID          int64         `json:"id"`
	Description string        `json:"description"`
	SortOrder   int           `json:"sort_order"`
	Kind        CriterionKind `json:"kind"`
	Levels      []Level       `json:"levels,omitempty"`
	Ranges      []ScoreRange  `json:"ranges,omitempty"`
}

// MaxScore returns the highest score reachable on the criterion.
func (c Criterion) MaxScore() float64 {
	var best float64
	if c.Kind == KindRanged {
		for _, r := range c.Ranges {
			best = math.Max(best, r.MaxScore)
		}
		return best
	}
	for _, l := range c.Levels {
		best = math.Max(best, l.Score)
	}
	return best
}

// RubricSchema is the ordered set of criteria for one assignment. Criterion
// IDs are unique and are the only key shared with AI-returned scores.
type RubricSchema struct {
	AssignmentID int64         `json:"assignment_id"`
	Name         string        `json:"name,omitempty"`
	Kind         CriterionKind `json:"kind"`
	Criteria     []Criterion   `json:"criteria"`
}

// IDs returns the criterion identifiers in schema order.
func (s *RubricSchema) IDs() []int64 {
	ids := make([]int64, 0, len(s.Criteria))
	for _, c := range s.Criteria {
		ids = append(ids, c.ID)
	}
	return ids
}

// Criterion looks up a criterion by identifier.
func (s *RubricSchema) Criterion(id int64) (Criterion, bool) {
	for _, c := range s.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// MaxScore sums the maximum score of every criterion.
func (s *RubricSchema) MaxScore() float64 {
	var total float64
	for _, c := range s.Criteria {
		total += c.MaxScore()
	}
	return total
}

// Validate checks the schema invariants: at least one criterion, unique
// identifiers, and at least one level or range per criterion.
func (s *RubricSchema) Validate() error {
	if len(s.Criteria) == 0 {
		return fmt.Errorf("assignment %d: %w", s.AssignmentID, ErrEmptyRubric)
	}

	seen := make(map[int64]struct{}, len(s.Criteria))
	verr := NewValidationError("rubric")
	for _, c := range s.Criteria {
		if _, dup := seen[c.ID]; dup {
			verr.AddError(fmt.Sprintf("duplicate criterion id %d", c.ID))
		}
		seen[c.ID] = struct{}{}

		if len(c.Levels) == 0 && len(c.Ranges) == 0 {
			return fmt.Errorf("criterion %d has no levels: %w", c.ID, ErrEmptyRubric)
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// SortCriteria orders criteria by sort order, then ID, and every criterion's
// levels and ranges by score descending.
func (s *RubricSchema) SortCriteria() {
	slices.SortStableFunc(s.Criteria, func(a, b Criterion) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	for i := range s.Criteria {
		sortLevelsDesc(s.Criteria[i].Levels)
		slices.SortStableFunc(s.Criteria[i].Ranges, func(a, b ScoreRange) int {
			switch {
			case a.MaxScore > b.MaxScore:
				return -1
			case a.MaxScore < b.MaxScore:
				return 1
			}
			return 0
		})
	}
}

// BuildRanges expands discrete levels into contiguous score ranges. Levels are
// sorted by score descending; each range's floor sits one hundredth above the
// next lower level's score and the lowest floor is zero.
func BuildRanges(levels []Level) []ScoreRange {
	sorted := slices.Clone(levels)
	sortLevelsDesc(sorted)

	ranges := make([]ScoreRange, 0, len(sorted))
	for i, l := range sorted {
		minScore := 0.0
		if i+1 < len(sorted) {
			minScore = sorted[i+1].Score + 0.01
		}
		maxScore := RoundTo(l.Score, 2)
		minScore = math.Min(RoundTo(minScore, 2), maxScore)

		ranges = append(ranges, ScoreRange{
			ID:         l.ID,
			Definition: l.Definition,
			MinScore:   minScore,
			MaxScore:   maxScore,
			LevelScore: l.Score,
		})
	}
	return ranges
}

// ToRanged derives a ranged schema from a discrete one. Criteria that are
// already ranged are copied unchanged.
func ToRanged(s *RubricSchema) *RubricSchema {
	out := &RubricSchema{
		AssignmentID: s.AssignmentID,
		Name:         s.Name,
		Kind:         KindRanged,
		Criteria:     make([]Criterion, 0, len(s.Criteria)),
	}
	for _, c := range s.Criteria {
		rc := Criterion{
			ID:          c.ID,
			Description: c.Description,
			SortOrder:   c.SortOrder,
			Kind:        KindRanged,
			Levels:      slices.Clone(c.Levels),
			Ranges:      c.Ranges,
		}
		if c.Kind != KindRanged || len(c.Ranges) == 0 {
			rc.Ranges = BuildRanges(c.Levels)
		}
		out.Criteria = append(out.Criteria, rc)
	}
	return out
}

func sortLevelsDesc(levels []Level) {
	slices.SortStableFunc(levels, func(a, b Level) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
}

// RoundTo rounds v to the given number of decimal places, half away from zero.
func RoundTo(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
