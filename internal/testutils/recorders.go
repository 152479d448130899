package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// AuditRecorder captures audit entries in memory.
type AuditRecorder struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	// Err, when set, is returned by Record after the entry is captured.
	Err error
}

// Record implements ports.AuditLogger.
func (r *AuditRecorder) Record(_ context.Context, entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.Err
}

// Entries returns a copy of the captured entries.
func (r *AuditRecorder) Entries() []domain.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEntry(nil), r.entries...)
}

// EventRecorder captures notifications in memory.
type EventRecorder struct {
	mu     sync.Mutex
	events []domain.GradingEvent
	// Err, when set, is returned by Notify after the event is captured.
	Err error
}

// Notify implements ports.Notifier.
func (r *EventRecorder) Notify(_ context.Context, event domain.GradingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.Err
}

// Events returns a copy of the captured events.
func (r *EventRecorder) Events() []domain.GradingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GradingEvent(nil), r.events...)
}

// MetricCall is one recorded metric observation.
type MetricCall struct {
	Kind   string
	Name   string
	Value  float64
	Labels map[string]string
}

// MetricsRecorder implements ports.MetricsCollector by recording calls.
type MetricsRecorder struct {
	mu    sync.Mutex
	calls []MetricCall
}

func (m *MetricsRecorder) add(kind, name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MetricCall{Kind: kind, Name: name, Value: value, Labels: labels})
}

// RecordLatency implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	m.add("latency", operation, d.Seconds(), labels)
}

// RecordCounter implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordCounter(metric string, value float64, labels map[string]string) {
	m.add("counter", metric, value, labels)
}

// RecordGauge implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordGauge(metric string, value float64, labels map[string]string) {
	m.add("gauge", metric, value, labels)
}

// RecordHistogram implements ports.MetricsCollector.
func (m *MetricsRecorder) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.add("histogram", metric, value, labels)
}

// Calls returns the recorded calls named name, in order.
func (m *MetricsRecorder) Calls(name string) []MetricCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MetricCall
	for _, c := range m.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Sum adds the values of every call named name.
func (m *MetricsRecorder) Sum(name string) float64 {
	var total float64
	for _, c := range m.Calls(name) {
		total += c.Value
	}
	return total
}

var (
	_ ports.AuditLogger      = (*AuditRecorder)(nil)
	_ ports.Notifier         = (*EventRecorder)(nil)
	_ ports.MetricsCollector = (*MetricsRecorder)(nil)
)
