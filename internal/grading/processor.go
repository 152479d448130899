package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// ProcessingError reports an AI payload that cannot be interpreted for the
// grading mode. It always matches domain.ErrMalformedAIOutput.
type ProcessingError struct {
	Mode  domain.GradingMode
	Field string
	Err   error
}

func (e *ProcessingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s response: %v", e.Mode, e.Err)
	}
	return fmt.Sprintf("malformed %s response: field %s: %v", e.Mode, e.Field, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Is reports whether target is domain.ErrMalformedAIOutput.
func (e *ProcessingError) Is(target error) bool { return target == domain.ErrMalformedAIOutput }

const simplePayloadSchema = `{
  "type": "object",
  "required": ["score"],
  "properties": {
    "score": {"type": ["number", "string"]},
    "feedback": {"type": "string"},
    "strengths": {"type": "array"},
    "improvements": {"type": "array"}
  }
}`

const rubricPayloadSchema = `{
  "type": "object",
  "required": ["criteria_scores"],
  "properties": {
    "criteria_scores": {"type": "array", "items": {"type": "object"}},
    "overall_feedback": {"type": "string"},
    "strengths": {"type": "array"},
    "improvements": {"type": "array"}
  }
}`

var payloadSchemas = map[domain.GradingMode]*jsonschema.Schema{
	domain.ModeSimple:       jsonschema.MustCompileString("simple.json", simplePayloadSchema),
	domain.ModeRubric:       jsonschema.MustCompileString("rubric.json", rubricPayloadSchema),
	domain.ModeRangedRubric: jsonschema.MustCompileString("ranged.json", rubricPayloadSchema),
}

var requiredField = map[domain.GradingMode]string{
	domain.ModeSimple:       "score",
	domain.ModeRubric:       "criteria_scores",
	domain.ModeRangedRubric: "criteria_scores",
}

// Processor turns decoded AI payloads into baseline grading results.
// It is stateless apart from its logger and safe for concurrent use.
type Processor struct {
	logger zerolog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(logger zerolog.Logger) *Processor {
	return &Processor{logger: logger.With().Str("component", "response_processor").Logger()}
}

// Process interprets data for mode. schema is required for the rubric
// modes and maxGrade caps the baseline grade.
func (p *Processor) Process(
	data map[string]any,
	mode domain.GradingMode,
	schema *domain.RubricSchema,
	maxGrade float64,
) (*domain.GradingResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGradingMode, mode)
	}
	if err := validatePayload(data, mode); err != nil {
		return nil, err
	}

	switch mode {
	case domain.ModeSimple:
		return p.processSimple(data, maxGrade)
	case domain.ModeRubric:
		return p.processRubric(data, maxGrade)
	default:
		if schema == nil || len(schema.Criteria) == 0 {
			return nil, fmt.Errorf("ranged processing: %w", domain.ErrEmptyRubric)
		}
		return p.processRanged(data, schema, maxGrade)
	}
}

func validatePayload(data map[string]any, mode domain.GradingMode) error {
	field := requiredField[mode]
	if data == nil {
		return &ProcessingError{Mode: mode, Field: field, Err: errors.New("empty payload")}
	}
	if _, ok := data[field]; !ok {
		return &ProcessingError{Mode: mode, Field: field, Err: errors.New("missing required field")}
	}
	if err := payloadSchemas[mode].Validate(data); err != nil {
		return &ProcessingError{Mode: mode, Field: failedField(err), Err: err}
	}
	return nil
}

// failedField returns the instance location of the deepest schema failure,
// e.g. "criteria_scores/1".
func failedField(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return ""
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	return strings.TrimPrefix(verr.InstanceLocation, "/")
}

func (p *Processor) processSimple(data map[string]any, maxGrade float64) (*domain.GradingResult, error) {
	score, err := numberValue(data["score"])
	if err != nil {
		return nil, &ProcessingError{Mode: domain.ModeSimple, Field: "score", Err: err}
	}
	parsed := domain.SimpleResult{
		Score:        score,
		Feedback:     stringValue(data["feedback"]),
		Strengths:    stringList(data["strengths"]),
		Improvements: stringList(data["improvements"]),
	}

	overall := FormatFeedbackHTML(parsed.Feedback) + FormatLists(parsed.Strengths, parsed.Improvements)
	return &domain.GradingResult{
		Mode:          domain.ModeSimple,
		BaselineGrade: clamp(parsed.Score, 0, maxGrade),
		OverallHTML:   overall,
		FeedbackText:  overall,
	}, nil
}

func (p *Processor) processRubric(data map[string]any, maxGrade float64) (*domain.GradingResult, error) {
	parsed, err := decodeRubric(data, domain.ModeRubric)
	if err != nil {
		return nil, err
	}

	scores := make([]domain.CriterionScore, 0, len(parsed.CriteriaScores))
	var total float64
	for _, s := range parsed.CriteriaScores {
		total += s.Score
		scores = append(scores, domain.CriterionScore{
			CriterionID: s.CriterionID,
			LevelID:     s.LevelID,
			Score:       s.Score,
			Feedback:    s.Feedback,
		})
	}

	overall := FormatFeedbackHTML(parsed.OverallFeedback) +
		FormatLists(stringList(data["strengths"]), stringList(data["improvements"]))

	return &domain.GradingResult{
		Mode:           domain.ModeRubric,
		BaselineGrade:  clamp(total, 0, maxGrade),
		CriteriaScores: scores,
		OverallHTML:    overall,
		FeedbackText:   overall + CriterionBlock(scores),
	}, nil
}

func (p *Processor) processRanged(data map[string]any, schema *domain.RubricSchema, maxGrade float64) (*domain.GradingResult, error) {
	entries, err := decodeEntries(data, domain.ModeRangedRubric)
	if err != nil {
		return nil, err
	}

	validIDs := schema.IDs()
	scores := make([]domain.CriterionScore, 0, len(entries))
	var dropped []int64
	var total float64

	for i, raw := range entries {
		var s domain.AICriterionScore
		if err := json.Unmarshal(raw, &s); err != nil {
			p.logger.Warn().Err(err).Int("index", i).Msg("dropping unreadable criterion score")
			continue
		}

		id, ok := resolveCriterionID(s.CriterionID, validIDs)
		if !ok {
			cerr := &domain.CriterionError{CriterionID: s.CriterionID, ValidIDs: validIDs}
			p.logger.Warn().
				Err(cerr).
				Int64("criterion_id", s.CriterionID).
				Ints64("valid_ids", validIDs).
				Msg("dropping unmappable criterion score")
			dropped = append(dropped, s.CriterionID)
			continue
		}
		if id != s.CriterionID {
			p.logger.Debug().
				Int64("position", s.CriterionID).
				Int64("criterion_id", id).
				Msg("remapped sequential criterion id")
		}

		score := math.Round(s.Score)
		total += score
		scores = append(scores, domain.CriterionScore{
			CriterionID: id,
			Score:       score,
			Feedback:    s.Feedback,
		})
	}

	overall := FormatFeedbackHTML(stringValue(data["overall_feedback"]))
	return &domain.GradingResult{
		Mode:            domain.ModeRangedRubric,
		BaselineGrade:   clamp(total, 0, maxGrade),
		CriteriaScores:  scores,
		OverallHTML:     overall,
		FeedbackText:    overall + CriterionBlock(scores),
		DroppedCriteria: dropped,
	}, nil
}

// resolveCriterionID reconciles an AI-supplied identifier with the schema.
// An exact match wins; otherwise an identifier in [1, len(validIDs)] is read
// as a 1-based position.
func resolveCriterionID(id int64, validIDs []int64) (int64, bool) {
	if slices.Contains(validIDs, id) {
		return id, true
	}
	if id >= 1 && id <= int64(len(validIDs)) {
		return validIDs[id-1], true
	}
	return 0, false
}

// decodeRubric decodes a discrete rubric payload. Any unreadable entry
// fails the whole payload.
func decodeRubric(data map[string]any, mode domain.GradingMode) (*domain.RubricResult, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, &ProcessingError{Mode: mode, Err: err}
	}
	var parsed domain.RubricResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &ProcessingError{Mode: mode, Field: "criteria_scores", Err: err}
	}
	return &parsed, nil
}

// decodeEntries returns the raw criteria_scores entries so each can be
// reconciled, or dropped, on its own.
func decodeEntries(data map[string]any, mode domain.GradingMode) ([]json.RawMessage, error) {
	raw, err := json.Marshal(data["criteria_scores"])
	if err != nil {
		return nil, &ProcessingError{Mode: mode, Field: "criteria_scores", Err: err}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &ProcessingError{Mode: mode, Field: "criteria_scores", Err: err}
	}
	return entries, nil
}

func numberValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case nil:
		default:
			out = append(out, fmt.Sprint(s))
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
