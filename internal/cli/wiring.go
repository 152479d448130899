package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/kcay/local-ai-grader/infrastructure/claims"
	"github.com/kcay/local-ai-grader/infrastructure/events"
	"github.com/kcay/local-ai-grader/infrastructure/llm"
	"github.com/kcay/local-ai-grader/infrastructure/middleware"
	"github.com/kcay/local-ai-grader/infrastructure/persistence"
	"github.com/kcay/local-ai-grader/internal/application"
	"github.com/kcay/local-ai-grader/internal/config"
	"github.com/kcay/local-ai-grader/internal/ports"
)

const serviceName = "local-ai-grader"

// runtime holds the collaborators shared by the commands. Fields a command
// does not ask for stay nil.
type runtime struct {
	cfg     config.Config
	logger  zerolog.Logger
	metrics *middleware.PrometheusMetrics

	db       *gorm.DB
	redis    *redis.Client
	nats     *nats.Conn
	notifier ports.Notifier

	closers []func()
}

func newRuntime(c config.Config, l zerolog.Logger) *runtime {
	return &runtime{
		cfg:      c,
		logger:   l,
		metrics:  middleware.NewPrometheusMetrics(prometheus.NewRegistry()),
		notifier: events.Nop{},
	}
}

// Close releases connections in reverse order of opening.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// providers builds the adapter registry. Every adapter is traced and
// measured; extra middleware wraps inside those and the circuit breaker
// sits closest to the adapter.
func (r *runtime) providers(extra ...llm.Middleware) *llm.Registry {
	exec := llm.NewRetryingExecutor(r.cfg.RetryConfig(),
		llm.WithLogger(r.logger),
		llm.WithMetrics(r.metrics),
	)
	mw := []llm.Middleware{
		llm.TracingMiddleware(serviceName, otel.Tracer(serviceName)),
		llm.MetricsMiddleware(r.metrics),
	}
	mw = append(mw, extra...)
	if g := r.cfg.Grading; g.CircuitMaxFailures > 0 {
		mw = append(mw, llm.CircuitBreakerMiddleware(g.CircuitMaxFailures, g.CircuitCooldown, r.metrics))
	}
	return llm.NewRegistry(llm.RegistryConfig{
		Providers:  r.cfg.LLMProviders(),
		Executor:   exec,
		Middleware: mw,
	})
}

// rateLimit paces provider calls when a request rate is configured.
func (r *runtime) rateLimit() []llm.Middleware {
	rps := r.cfg.Grading.RequestsPerSecond
	if rps <= 0 {
		return nil
	}
	return []llm.Middleware{llm.RateLimitMiddleware(rate.Limit(rps), 1)}
}

// openDatabase connects to postgres and migrates the schema.
func (r *runtime) openDatabase() (*gorm.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	if r.cfg.DatabaseURL == "" {
		return nil, ports.NewConfigError("database.url", errors.New("required by this command"))
	}

	db, err := persistence.ConnectPostgres(r.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := persistence.Migrate(db); err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	r.db = db
	return db, nil
}

// openRedis connects when a Redis URL is configured and returns nil
// otherwise.
func (r *runtime) openRedis(ctx context.Context) (*redis.Client, error) {
	if r.redis != nil || r.cfg.RedisURL == "" {
		return r.redis, nil
	}
	client, err := claims.ConnectRedis(ctx, r.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, func() { _ = client.Close() })
	r.redis = client
	return client, nil
}

// connectEvents sets up the notifier from whichever transports are
// configured.
func (r *runtime) connectEvents(ctx context.Context) error {
	client, err := r.openRedis(ctx)
	if err != nil {
		return err
	}

	var pub events.Publisher
	if r.cfg.NATSURL != "" {
		conn, err := events.ConnectNATS(r.cfg.NATSURL, r.logger)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, func() { _ = conn.Drain() })
		r.nats = conn
		pub = conn
	}

	if pub == nil && client == nil {
		r.logger.Debug().Msg("no event transport configured")
		return nil
	}
	r.notifier = events.NewNotifier(pub, client, r.cfg.NATSSubject, r.logger)
	return nil
}

// claimStore shares work across runners through Redis when configured and
// falls back to process-local claims.
func (r *runtime) claimStore(ctx context.Context) (ports.ClaimStore, error) {
	client, err := r.openRedis(ctx)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return claims.NewMemoryStore(), nil
	}
	return claims.NewRedisStore(client), nil
}

func (r *runtime) gradingConfig() application.GradingConfig {
	g := r.cfg.Grading
	return application.GradingConfig{
		Provider:         g.Provider,
		Mode:             g.Mode,
		Leniency:         g.Leniency,
		Anonymize:        g.Anonymize,
		UseCourseContext: g.UseCourseContext,
	}
}

// databaseOrchestrator wires an orchestrator over the postgres repositories.
func (r *runtime) databaseOrchestrator(ctx context.Context, extra ...llm.Middleware) (*application.Orchestrator, error) {
	db, err := r.openDatabase()
	if err != nil {
		return nil, err
	}
	if err := r.connectEvents(ctx); err != nil {
		return nil, err
	}

	assignments := persistence.NewAssignmentRepository(db)
	orch, err := application.NewOrchestrator(r.gradingConfig(), application.Dependencies{
		Providers:     r.providers(extra...),
		Assignments:   assignments,
		Rubrics:       persistence.NewRubricRepository(db),
		Submissions:   persistence.NewSubmissionRepository(db),
		CourseContext: assignments,
		Grades:        persistence.NewGradeRepository(db),
		Audit:         persistence.NewAuditRepository(db),
		Notifier:      r.notifier,
		Metrics:       r.metrics,
		Tracer:        otel.Tracer(serviceName),
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("wire orchestrator: %w", err)
	}
	return orch, nil
}
