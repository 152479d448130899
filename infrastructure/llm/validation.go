package llm

import (
	"fmt"
	"time"
)

// Bounds applied to adapter settings. Gemini accepts temperatures up to 2,
// which is the widest range of the three providers.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 10 * time.Minute
)

// IsValidTemperature reports whether val lies in [MinTemperature, MaxTemperature].
func IsValidTemperature(val float64) bool {
	return val >= MinTemperature && val <= MaxTemperature
}

// ValidateBaseURL checks a configured endpoint. An empty endpoint is valid
// and selects the provider default.
func ValidateBaseURL(endpoint string) (string, error) {
	if endpoint == "" {
		return "", nil
	}
	if _, err := validateRequestURL(endpoint); err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return endpoint, nil
}

// ValidateTimeout clamps a configured timeout into [MinTimeout, MaxTimeout].
// Zero or negative means "use the default" and is returned as zero.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return min(max(timeout, MinTimeout), MaxTimeout)
}

// ClampFloat64 limits val to [lo, hi].
func ClampFloat64(val, lo, hi float64) float64 {
	return min(max(val, lo), hi)
}
