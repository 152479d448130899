// Package config loads grader settings from the environment, an optional
// .env file and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/kcay/local-ai-grader/infrastructure/llm"
	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// EnvPrefix is prepended to every environment variable, e.g. GRADER_LOG_LEVEL.
const EnvPrefix = "GRADER"

// Config holds runtime configuration values for the grader.
type Config struct {
	// AppEnv names the deployment environment.
	AppEnv string `validate:"required"`
	// LogLevel is a zerolog level name.
	LogLevel string `validate:"oneof=trace debug info warn error fatal panic disabled"`
	// DatabaseURL is the postgres DSN. Commands that touch the database
	// require it; offline grading does not.
	DatabaseURL string
	// RedisURL enables submission claims in batch mode when set.
	RedisURL string
	// NATSURL enables event notifications when set.
	NATSURL string
	// NATSSubject prefixes published event subjects.
	NATSSubject string `validate:"required"`
	// HTTPAddr is the serve command's listen address.
	HTTPAddr string `validate:"required"`

	Grading   GradingConfig
	Providers map[string]ProviderConfig `validate:"dive"`
}

// GradingConfig holds the global grading settings.
type GradingConfig struct {
	Provider string `validate:"required,oneof=openai gemini claude"`
	// Mode forces a grading mode for every assignment when set.
	Mode     domain.GradingMode `validate:"omitempty,grading_mode"`
	Leniency domain.LeniencyLevel
	// MaxRetries is the total number of HTTP attempts per provider call.
	MaxRetries        int           `validate:"gte=1,lte=10"`
	RequestTimeout    time.Duration `validate:"gt=0"`
	Anonymize         bool
	UseCourseContext  bool
	BatchSize         int     `validate:"gt=0"`
	Concurrency       int     `validate:"gt=0,lte=64"`
	RequestsPerSecond float64 `validate:"gte=0"`
	LogRetentionDays  int     `validate:"gte=1"`
	// CircuitMaxFailures consecutive transient failures open a provider's
	// circuit for CircuitCooldown. Zero disables the breaker.
	CircuitMaxFailures int           `validate:"gte=0"`
	CircuitCooldown    time.Duration `validate:"gte=0"`
}

// ProviderConfig holds the settings of one AI provider.
type ProviderConfig struct {
	APIKey      string
	Endpoint    string `validate:"omitempty,url"`
	Model       string
	MaxTokens   int      `validate:"gte=0"`
	Temperature *float64 `validate:"omitempty,gte=0,lte=2"`
}

// LogRetention returns the audit log retention as a duration.
func (c Config) LogRetention() time.Duration {
	return time.Duration(c.Grading.LogRetentionDays) * 24 * time.Hour
}

// Level returns the parsed log level, info when LogLevel is invalid.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// LLMProviders converts the provider settings into adapter configuration.
func (c Config) LLMProviders() map[string]llm.ProviderConfig {
	out := make(map[string]llm.ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = llm.ProviderConfig{
			APIKey:      p.APIKey,
			Endpoint:    p.Endpoint,
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			Timeout:     c.Grading.RequestTimeout,
		}
	}
	return out
}

// RetryConfig returns the HTTP retry settings.
func (c Config) RetryConfig() llm.RetryConfig {
	rc := llm.DefaultRetryConfig()
	rc.MaxAttempts = c.Grading.MaxRetries
	return rc
}

// Load reads configuration values from environment variables, an optional
// .env file and, when path is not empty, a YAML config file. Unknown
// leniency tiers fall back to moderate with a warning naming the closest
// tier.
func Load(path string, logger zerolog.Logger) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, ports.NewConfigError("config_file", fmt.Errorf("read %s: %w", path, err))
		}
	}

	cfg := Config{
		AppEnv:      v.GetString("app.env"),
		LogLevel:    strings.ToLower(v.GetString("log.level")),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		NATSSubject: v.GetString("nats.subject"),
		HTTPAddr:    v.GetString("http.addr"),
		Grading: GradingConfig{
			Provider:          strings.ToLower(v.GetString("grading.provider")),
			MaxRetries:        v.GetInt("grading.max_retries"),
			RequestTimeout:    v.GetDuration("grading.request_timeout"),
			Anonymize:         v.GetBool("grading.anonymize"),
			UseCourseContext:  v.GetBool("grading.use_course_context"),
			BatchSize:         v.GetInt("grading.batch_size"),
			Concurrency:       v.GetInt("grading.concurrency"),
			RequestsPerSecond: v.GetFloat64("grading.requests_per_second"),
			LogRetentionDays:  v.GetInt("grading.log_retention_days"),

			CircuitMaxFailures: v.GetInt("grading.circuit_max_failures"),
			CircuitCooldown:    v.GetDuration("grading.circuit_cooldown"),
		},
		Providers: loadProviders(v),
	}

	if raw := v.GetString("grading.mode"); raw != "" {
		mode, err := domain.ParseGradingMode(raw)
		if err != nil {
			return Config{}, ports.NewConfigError("grading.mode", err)
		}
		cfg.Grading.Mode = mode
	}
	cfg.Grading.Leniency = parseLeniency(v.GetString("grading.leniency"), logger)

	if err := domain.ValidateStruct(domain.NewValidator(), "config", cfg); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return Config{}, ports.NewConfigError(verr.Entity, verr)
		}
		return Config{}, ports.NewConfigError("config", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("nats.subject", "grader.events")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grading.provider", "openai")
	v.SetDefault("grading.mode", "")
	v.SetDefault("grading.leniency", string(domain.LeniencyModerate))
	v.SetDefault("grading.max_retries", llm.DefaultMaxAttempts)
	v.SetDefault("grading.request_timeout", "60s")
	v.SetDefault("grading.anonymize", false)
	v.SetDefault("grading.use_course_context", true)
	v.SetDefault("grading.batch_size", 50)
	v.SetDefault("grading.concurrency", 4)
	v.SetDefault("grading.requests_per_second", 2)
	v.SetDefault("grading.log_retention_days", 90)
	v.SetDefault("grading.circuit_max_failures", 5)
	v.SetDefault("grading.circuit_cooldown", "1m")

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"database.url", "redis.url", "nats.url"} {
		v.SetDefault(key, "")
	}
	for name := range llm.DefaultProviders {
		for _, field := range []string{"api_key", "endpoint", "model"} {
			v.SetDefault("providers."+name+"."+field, "")
		}
		v.SetDefault("providers."+name+".max_tokens", 0)
	}
}

// loadProviders reads providers.<name>.* for every built-in provider. An
// empty api_key falls back to the provider's conventional variable, e.g.
// OPENAI_API_KEY.
func loadProviders(v *viper.Viper) map[string]ProviderConfig {
	out := make(map[string]ProviderConfig, len(llm.DefaultProviders))
	for name, spec := range llm.DefaultProviders {
		key := "providers." + name
		p := ProviderConfig{
			APIKey:    v.GetString(key + ".api_key"),
			Endpoint:  v.GetString(key + ".endpoint"),
			Model:     v.GetString(key + ".model"),
			MaxTokens: v.GetInt(key + ".max_tokens"),
		}
		if p.APIKey == "" {
			p.APIKey = os.Getenv(spec.EnvVar)
		}
		if v.IsSet(key+".temperature") && v.GetString(key+".temperature") != "" {
			t := v.GetFloat64(key + ".temperature")
			p.Temperature = &t
		}
		out[name] = p
	}
	return out
}

func parseLeniency(raw string, logger zerolog.Logger) domain.LeniencyLevel {
	level, ok := domain.ParseLeniencyLevel(raw)
	if ok || strings.TrimSpace(raw) == "" {
		return level
	}
	logger.Warn().
		Str("value", raw).
		Str("suggestion", string(ClosestLeniency(raw))).
		Msg("unknown leniency level, using moderate")
	return domain.LeniencyModerate
}

// ClosestLeniency returns the tier whose name has the smallest edit
// distance to s.
func ClosestLeniency(s string) domain.LeniencyLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	best, bestDist := domain.LeniencyModerate, -1
	for _, l := range domain.LeniencyLevels() {
		d := levenshtein.ComputeDistance(s, string(l))
		if bestDist < 0 || d < bestDist {
			best, bestDist = l, d
		}
	}
	return best
}
