package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nido/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventCameraOnline   EventType = "camera.online"
	EventCameraOffline  EventType = "camera.offline"
	EventViewerAdmitted EventType = "viewer.admitted"
	EventViewerLeft     EventType = "viewer.left"
	EventAlertRaised    EventType = "alert.raised"
	EventBatteryLow     EventType = "battery.low"
)

// Event is one entry on the household event feed. Other devices in the
// same home (a second viewer, a hub) subscribe to mirror session state
// without polling the camera.
type Event struct {
	Type      EventType       `json:"type"`
	DeviceID  domain.DeviceID `json:"device_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventBus publishes and consumes the household event feed over Redis
// pub/sub.
type EventBus struct {
	client   *redis.Client
	deviceID domain.DeviceID
	logger   *zap.SugaredLogger
	pubsub   *redis.PubSub
	channels []string
}

// NewEventBus creates a new event bus
func NewEventBus(client *redis.Client, deviceID domain.DeviceID, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:   client,
		deviceID: deviceID,
		logger:   logger,
		channels: []string{"nido:events"},
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.DeviceID = eb.deviceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := eb.channels[0]
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event", "type", event.Type)
	return nil
}

// Subscribe subscribes to events and calls handler for each event.
// Events published by this device are skipped.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channels...)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			if event.DeviceID == eb.deviceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// PublishViewerAdmitted publishes a viewer admitted event
func (eb *EventBus) PublishViewerAdmitted(ctx context.Context, viewer domain.DeviceID, name string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"viewer_id":    viewer,
		"display_name": name,
	})
	return eb.Publish(ctx, &Event{Type: EventViewerAdmitted, Payload: payload})
}

// PublishViewerLeft publishes a viewer left event
func (eb *EventBus) PublishViewerLeft(ctx context.Context, remaining int) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"remaining": remaining,
	})
	return eb.Publish(ctx, &Event{Type: EventViewerLeft, Payload: payload})
}

// PublishAlert publishes an analyzer alert event
func (eb *EventBus) PublishAlert(ctx context.Context, status domain.AnalysisStatus, description string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"status":      status,
		"description": description,
	})
	return eb.Publish(ctx, &Event{Type: EventAlertRaised, Payload: payload})
}

// PublishCameraState publishes the camera going online or offline
func (eb *EventBus) PublishCameraState(ctx context.Context, online bool) error {
	eventType := EventCameraOnline
	if !online {
		eventType = EventCameraOffline
	}
	return eb.Publish(ctx, &Event{Type: eventType})
}

// PublishBatteryLow publishes a low battery event
func (eb *EventBus) PublishBatteryLow(ctx context.Context, level float64) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"level": level,
	})
	return eb.Publish(ctx, &Event{Type: EventBatteryLow, Payload: payload})
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
