package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs every event
// it sees, pulling the well-known crawl fields out of the payload.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if url, ok := payload["url"].(string); ok && url != "" {
				logEvent = logEvent.Str("url", url)
			}
			if jobID, ok := payload["job_id"].(string); ok && jobID != "" {
				logEvent = logEvent.Str("job_id", jobID)
			}
			if status, ok := payload["status"].(string); ok && status != "" {
				logEvent = logEvent.Str("status", status)
			}
			if errMsg, ok := payload["error"].(string); ok && errMsg != "" {
				logEvent = logEvent.Str("error", errMsg)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents attaches the logging subscriber to every
// event type the service emits.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventCrawlStarted,
		interfaces.EventCrawlProgress,
		interfaces.EventCrawlCompleted,
		interfaces.EventCrawlFailed,
		interfaces.EventJobStatusChanged,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}

	return nil
}
