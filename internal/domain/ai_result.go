package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SendOptions overrides provider defaults for a single request. Nil or zero
// fields keep the adapter's configured value.
type SendOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
}

// AIResponse is the successful outcome of a provider call. Data holds the
// decoded JSON object, or {"content": text} when the reply was not JSON.
type AIResponse struct {
	Provider   string
	Model      string
	Data       map[string]any
	Raw        string
	StatusCode int
}

// Structured reports whether the provider reply decoded into a JSON object
// rather than falling back to raw content.
func (r *AIResponse) Structured() bool {
	if r == nil || r.Data == nil {
		return false
	}
	_, hasContent := r.Data["content"]
	return !hasContent || len(r.Data) > 1
}

// SimpleResult is the AI payload for simple grading.
type SimpleResult struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// RubricResult is the AI payload for both rubric modes.
type RubricResult struct {
	CriteriaScores  []AICriterionScore `json:"criteria_scores"`
	OverallFeedback string             `json:"overall_feedback"`
}

// AICriterionScore is one criterion entry as returned by the model. Models
// are loose with naming, so decoding accepts criterionid, levelid and
// justification as aliases and numeric identifiers encoded as strings.
type AICriterionScore struct {
	CriterionID int64
	LevelID     *int64
	Score       float64
	Feedback    string
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *AICriterionScore) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	idVal, ok := firstPresent(raw, "criterion_id", "criterionid", "criterionId")
	if !ok {
		return fmt.Errorf("criterion entry missing criterion_id: %w", ErrMalformedAIOutput)
	}
	id, err := toInt64(idVal)
	if err != nil {
		return fmt.Errorf("criterion_id: %w", err)
	}
	s.CriterionID = id

	if lv, ok := firstPresent(raw, "level_id", "levelid", "levelId"); ok && lv != nil {
		if lid, err := toInt64(lv); err == nil {
			s.LevelID = &lid
		}
	}

	if sv, ok := raw["score"]; ok && sv != nil {
		score, err := toFloat64(sv)
		if err != nil {
			return fmt.Errorf("score: %w", err)
		}
		s.Score = score
	}

	if fv, ok := firstPresent(raw, "feedback", "justification"); ok {
		if text, ok := fv.(string); ok {
			s.Feedback = text
		}
	}
	return nil
}

// MarshalJSON writes the canonical field names.
func (s AICriterionScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CriterionID int64   `json:"criterion_id"`
		LevelID     *int64  `json:"level_id,omitempty"`
		Score       float64 `json:"score"`
		Feedback    string  `json:"feedback"`
	}{s.CriterionID, s.LevelID, s.Score, s.Feedback})
}

func firstPresent(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: non-numeric value %q", ErrMalformedAIOutput, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unexpected type %T", ErrMalformedAIOutput, v)
	}
}

func toInt64(v any) (int64, error) {
	f, err := toFloat64(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: identifier %v is not an integer", ErrMalformedAIOutput, f)
	}
	return int64(f), nil
}
