package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
)

// ConsumeTelemetry logs every event published on topic until ctx is done or
// the subscriber is closed. It backs the in-process sink.
func ConsumeTelemetry(ctx context.Context, subscriber message.Subscriber, topic string, logger *slog.Logger) error {
	messages, err := subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			var event TelemetryEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				logger.Warn("Dropping malformed telemetry message", "message_id", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			logger.Info("Telemetry event",
				"event_id", event.ID,
				"event_type", event.Type,
				"source", event.Source,
				"data", string(mustJSON(event.Data)))
			msg.Ack()
		}
	}()
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return data
}
