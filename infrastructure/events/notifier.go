// Package events publishes grading events to NATS subjects and Redis
// channels.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "grader.events"

// Publisher is the subset of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Notifier fans grading events out to NATS and, when a Redis client is
// set, to a Redis pub/sub channel. Either transport may be nil.
type Notifier struct {
	nats    Publisher
	redis   *redis.Client
	subject string
	logger  zerolog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier. Events are published on
// "<subject>.<event type>", e.g. "grader.events.grading.completed"; the
// Redis channel uses ":" in place of ".".
func NewNotifier(pub Publisher, redisClient *redis.Client, subject string, logger zerolog.Logger) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{
		nats:    pub,
		redis:   redisClient,
		subject: subject,
		logger:  logger.With().Str("component", "grading_notifier").Logger(),
	}
}

// Subject returns the NATS subject an event type is published on.
func (n *Notifier) Subject(t domain.EventType) string {
	return n.subject + "." + string(t)
}

// Channel returns the Redis channel an event type is published on.
func (n *Notifier) Channel(t domain.EventType) string {
	return strings.ReplaceAll(n.Subject(t), ".", ":")
}

// Notify publishes event on every configured transport. All transports are
// attempted; their errors are joined.
func (n *Notifier) Notify(ctx context.Context, event domain.GradingEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode grading event: %w", err)
	}

	var errs []error
	if n.nats != nil {
		if err := n.nats.Publish(n.Subject(event.Type), payload); err != nil {
			errs = append(errs, fmt.Errorf("nats publish: %w", err))
		}
	}
	if n.redis != nil {
		if err := n.redis.Publish(ctx, n.Channel(event.Type), payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis publish: %w", err))
		}
	}

	n.logger.Debug().
		Str("event", string(event.Type)).
		Int64("submission_id", event.SubmissionID).
		Int("failed_transports", len(errs)).
		Msg("grading event published")
	return errors.Join(errs...)
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url must not be empty")
	}

	conn, err := nats.Connect(url,
		nats.Name("local-ai-grader"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}
	return conn, nil
}

// Nop discards events.
type Nop struct{}

// Notify implements ports.Notifier.
func (Nop) Notify(context.Context, domain.GradingEvent) error { return nil }
