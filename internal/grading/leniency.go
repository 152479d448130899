package grading

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// ApplyLeniency scales score by the tier multiplier and clamps the result
// to [0, max], rounded to two decimals. Unknown tiers behave as moderate.
func ApplyLeniency(score float64, level domain.LeniencyLevel, max float64) float64 {
	return domain.RoundTo(clamp(score*level.Multiplier(), 0, max), 2)
}

// Adjuster converts baseline results into the leniency-adjusted results
// released to persistence.
type Adjuster struct {
	logger zerolog.Logger
}

// NewAdjuster creates an Adjuster.
func NewAdjuster(logger zerolog.Logger) *Adjuster {
	return &Adjuster{logger: logger.With().Str("component", "leniency_adjuster").Logger()}
}

// Adjust applies level to res. Ranged results are adjusted per criterion
// against each criterion's own maximum and re-summed; other results are
// adjusted on the total, with discrete criterion scores rescaled
// proportionally. The returned grade always lies in [0, maxGrade] and the
// feedback shows the adjusted criterion scores.
func (a *Adjuster) Adjust(
	res *domain.GradingResult,
	schema *domain.RubricSchema,
	level domain.LeniencyLevel,
	maxGrade float64,
) *domain.AdjustedResult {
	level = level.OrDefault()
	out := &domain.AdjustedResult{
		Mode:          res.Mode,
		BaselineGrade: res.BaselineGrade,
		Leniency:      level,
	}

	if res.Mode == domain.ModeRangedRubric && len(res.CriteriaScores) > 0 {
		out.CriteriaScores, out.Grade = a.adjustRanged(res.CriteriaScores, schema, level, maxGrade)
	} else {
		out.Grade = ApplyLeniency(res.BaselineGrade, level, maxGrade)
		if level.Multiplier() == 1 {
			out.Grade = clamp(res.BaselineGrade, 0, maxGrade)
		}
		out.CriteriaScores = rescale(res.CriteriaScores, res.BaselineGrade, out.Grade)
	}

	out.FeedbackText = res.OverallHTML + CriterionBlock(out.CriteriaScores)

	a.logger.Debug().
		Str("mode", string(res.Mode)).
		Str("leniency", string(level)).
		Float64("baseline", res.BaselineGrade).
		Float64("adjusted", out.Grade).
		Msg("leniency applied")
	return out
}

func (a *Adjuster) adjustRanged(
	scores []domain.CriterionScore,
	schema *domain.RubricSchema,
	level domain.LeniencyLevel,
	maxGrade float64,
) ([]domain.CriterionScore, float64) {
	adjusted := make([]domain.CriterionScore, len(scores))
	var total float64
	for i, s := range scores {
		criterionMax := maxGrade
		if schema != nil {
			if c, ok := schema.Criterion(s.CriterionID); ok {
				criterionMax = c.MaxScore()
			}
		}

		adjusted[i] = s
		adjusted[i].Score = clamp(math.Round(s.Score*level.Multiplier()), 0, criterionMax)
		total += adjusted[i].Score
	}
	return adjusted, clamp(total, 0, maxGrade)
}

// rescale scales discrete criterion scores by adjusted/baseline and rounds
// each to whole units. A zero baseline or unit ratio leaves the scores as
// they are.
func rescale(scores []domain.CriterionScore, baseline, adjusted float64) []domain.CriterionScore {
	if len(scores) == 0 {
		return nil
	}
	out := make([]domain.CriterionScore, len(scores))
	copy(out, scores)
	if baseline <= 0 || adjusted == baseline {
		return out
	}

	ratio := adjusted / baseline
	for i := range out {
		out[i].Score = math.Round(out[i].Score * ratio)
	}
	return out
}
