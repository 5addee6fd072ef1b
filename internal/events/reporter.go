package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Telemetry is the optional logging capability handed to quiz sessions.
// Log never blocks on delivery and never reports failure.
type Telemetry interface {
	Log(ctx context.Context, event EventType, payload any)
}

// TelemetrySink is a Telemetry that owns resources.
type TelemetrySink interface {
	Telemetry
	Close() error
}

// NoopTelemetry is used when no sink is configured.
type NoopTelemetry struct{}

func (NoopTelemetry) Log(context.Context, EventType, any) {}

func (NoopTelemetry) Close() error { return nil }

// ReporterConfig configures a Reporter
type ReporterConfig struct {
	Topic   string
	Source  string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Reporter publishes telemetry events through Watermill on background
// goroutines. Publish errors are logged and dropped.
type Reporter struct {
	publisher message.Publisher
	topic     string
	source    string
	timeout   time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewReporter(publisher message.Publisher, config ReporterConfig) *Reporter {
	if config.Source == "" {
		config.Source = "quiz-service"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Reporter{
		publisher: publisher,
		topic:     config.Topic,
		source:    config.Source,
		timeout:   config.Timeout,
		logger:    config.Logger,
	}
}

func (r *Reporter) Log(ctx context.Context, eventType EventType, payload any) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Telemetry reporter closed, dropping event", "event_type", eventType)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	event := NewTelemetryEvent(eventType, r.source, payload)
	// The request that triggered the event may finish before delivery.
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer r.wg.Done()
		if err := r.publish(ctx, event); err != nil {
			r.logger.Error("Failed to publish telemetry event",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err)
		}
	}()
}

func (r *Reporter) publish(ctx context.Context, event *TelemetryEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry event: %w", err)
	}

	msg := message.NewMessage(event.ID, eventBytes)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("version", event.Version)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	msg.SetContext(ctx)

	if err := r.publisher.Publish(r.topic, msg); err != nil {
		return err
	}

	r.logger.Debug("Published telemetry event",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", r.topic)
	return nil
}

// Flush waits for in-flight events.
func (r *Reporter) Flush() {
	r.wg.Wait()
}

// Close waits for in-flight events and closes the publisher.
func (r *Reporter) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	return r.publisher.Close()
}

// RecordedEvent is one call captured by MockTelemetry.
type RecordedEvent struct {
	Type    EventType
	Payload any
}

// MockTelemetry is a mock implementation for testing
type MockTelemetry struct {
	mu     sync.Mutex
	Events []RecordedEvent
}

func NewMockTelemetry() *MockTelemetry {
	return &MockTelemetry{Events: make([]RecordedEvent, 0)}
}

// Log stores the event in memory (for testing)
func (m *MockTelemetry) Log(_ context.Context, eventType EventType, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, RecordedEvent{Type: eventType, Payload: payload})
}

func (m *MockTelemetry) Close() error {
	return nil
}

// GetLoggedEvents returns a copy of all logged events (for testing)
func (m *MockTelemetry) GetLoggedEvents() []RecordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedEvent(nil), m.Events...)
}

// ClearEvents clears all logged events (for testing)
func (m *MockTelemetry) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = make([]RecordedEvent, 0)
}
