package llm

import (
	"math"
	"strings"
	"unicode/utf8"
)

// TokenEstimator approximates how many tokens a provider will bill for a
// piece of text. Estimates are for observability and budgeting; nothing
// rejects a prompt on them.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// CharacterEstimator counts characters and divides by the average number of
// characters per token.
type CharacterEstimator struct {
	CharsPerToken float64
}

// EstimateTokens implements TokenEstimator.
func (e CharacterEstimator) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / ratio))
}

// WordEstimator counts whitespace-separated words and scales them by the
// average number of tokens per word.
type WordEstimator struct {
	TokensPerWord float64
}

// EstimateTokens implements TokenEstimator.
func (e WordEstimator) EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	ratio := e.TokensPerWord
	if ratio <= 0 {
		ratio = 1.33
	}
	return int(math.Ceil(float64(words) * ratio))
}

// providerEstimators holds the per-provider character ratios. Claude's
// tokenizer produces slightly more tokens for the same English text.
var providerEstimators = map[string]TokenEstimator{
	"openai": CharacterEstimator{CharsPerToken: 4},
	"gemini": CharacterEstimator{CharsPerToken: 4},
	"claude": CharacterEstimator{CharsPerToken: 3.5},
}

// EstimatorFor returns the estimator for a provider, falling back to a
// word-based estimate for unknown names.
func EstimatorFor(provider string) TokenEstimator {
	if e, ok := providerEstimators[provider]; ok {
		return e
	}
	return WordEstimator{}
}
