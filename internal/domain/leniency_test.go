package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeniencyLevel_Tiers(t *testing.T) {
	tests := []struct {
		level   LeniencyLevel
		mult    float64
		percent int
	}{
		{LeniencyVeryLenient, 1.10, 10},
		{LeniencyLenient, 1.05, 5},
		{LeniencyModerate, 1.00, 0},
		{LeniencyStrict, 0.95, -5},
		{LeniencyVeryStrict, 0.90, -10},
		{LeniencyLevel("generous"), 1.00, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.mult, tt.level.Multiplier())
			assert.Equal(t, tt.percent, tt.level.PercentageAdjustment())
			assert.NotEmpty(t, tt.level.Description())
		})
	}
}

func TestLeniencyLevels_Order(t *testing.T) {
	levels := LeniencyLevels()
	assert.Len(t, levels, 5)
	for i := 0; i+1 < len(levels); i++ {
		assert.Greater(t, levels[i].Multiplier(), levels[i+1].Multiplier())
	}
}

func TestParseLeniencyLevel(t *testing.T) {
	l, ok := ParseLeniencyLevel("Very Strict")
	assert.True(t, ok)
	assert.Equal(t, LeniencyVeryStrict, l)

	l, ok = ParseLeniencyLevel("LENIENT")
	assert.True(t, ok)
	assert.Equal(t, LeniencyLenient, l)

	l, ok = ParseLeniencyLevel("harsh")
	assert.False(t, ok)
	assert.Equal(t, LeniencyModerate, l)

	assert.Equal(t, LeniencyModerate, LeniencyLevel("").OrDefault())
	assert.Equal(t, LeniencyStrict, LeniencyStrict.OrDefault())
}
