package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"rental-service/internal/models"
	"rental-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing booking events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher. A nil producer makes every
// publish a no-op, which is how the service runs without Kafka.
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishBookingCreated publishes BookingCreated event
func (ep *EventPublisher) PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingStatusChanged publishes BookingStatusChanged event
func (ep *EventPublisher) PublishBookingStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

func bookingKey(bookingID int64) string {
	return fmt.Sprintf("booking-%d", bookingID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onBookingCreated       func(context.Context, *models.BookingCreatedEvent) error
	onBookingStatusChanged func(context.Context, *models.BookingStatusChangedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnBookingCreated registers a handler for BookingCreated events
func (eh *EventHandler) OnBookingCreated(handler func(context.Context, *models.BookingCreatedEvent) error) {
	eh.onBookingCreated = handler
}

// OnBookingStatusChanged registers a handler for BookingStatusChanged events
func (eh *EventHandler) OnBookingStatusChanged(handler func(context.Context, *models.BookingStatusChangedEvent) error) {
	eh.onBookingStatusChanged = handler
}

// ErrMalformedEvent marks a message that can never be decoded
var ErrMalformedEvent = errors.New("malformed event")

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: failed to unmarshal base event: %v", ErrMalformedEvent, err)
	}

	util.GetLogger().Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeBookingCreated:
		if eh.onBookingCreated != nil {
			var event models.BookingCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: failed to unmarshal BookingCreated event: %v", ErrMalformedEvent, err)
			}
			return eh.onBookingCreated(ctx, &event)
		}

	case models.EventTypeBookingStatusChanged:
		if eh.onBookingStatusChanged != nil {
			var event models.BookingStatusChangedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: failed to unmarshal BookingStatusChanged event: %v", ErrMalformedEvent, err)
			}
			return eh.onBookingStatusChanged(ctx, &event)
		}

	default:
		util.GetLogger().Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
