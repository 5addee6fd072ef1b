package config

import (
	"context"
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/quiz-service/internal/events"
)

// Telemetry publishers
const (
	PublisherKafka   = "kafka"
	PublisherChannel = "gochannel"
	PublisherNoop    = "noop"
)

// EventConfig holds configuration for telemetry publishing
type EventConfig struct {
	Enabled        bool
	Publisher      string
	KafkaBrokers   string
	TelemetryTopic string
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokers, ",")
}

// CreateTelemetry builds the telemetry sink described by the configuration.
// The in-process sink logs every event through logger.
func (c *EventConfig) CreateTelemetry(logger *slog.Logger) (events.TelemetrySink, error) {
	if !c.Enabled {
		logger.Info("Telemetry disabled")
		return events.NoopTelemetry{}, nil
	}

	reporterConfig := events.ReporterConfig{
		Topic:  c.TelemetryTopic,
		Logger: logger,
	}

	switch c.Publisher {
	case PublisherKafka:
		logger.Info("Creating Kafka telemetry publisher",
			"brokers", c.KafkaBrokers,
			"topic", c.TelemetryTopic)

		publisher, err := events.NewKafkaPublisher(events.PublisherConfig{
			KafkaBrokers: c.GetKafkaBrokers(),
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return events.NewReporter(publisher, reporterConfig), nil
	case PublisherChannel:
		logger.Info("Using in-process telemetry publisher", "topic", c.TelemetryTopic)
		pubSub := events.NewChannelPubSub(logger)
		if err := events.ConsumeTelemetry(context.Background(), pubSub, c.TelemetryTopic, logger); err != nil {
			return nil, err
		}
		return events.NewReporter(pubSub, reporterConfig), nil
	case PublisherNoop:
		return events.NoopTelemetry{}, nil
	default:
		logger.Warn("Unknown telemetry publisher type, disabling telemetry", "publisher", c.Publisher)
		return events.NoopTelemetry{}, nil
	}
}
