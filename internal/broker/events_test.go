package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"rental-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(t *testing.T, event interface{}) kafka.Message {
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("booking-1"), Value: b}
}

func TestHandleMessageRoutesByType(t *testing.T) {
	h := NewEventHandler()

	var created *models.BookingCreatedEvent
	var changed *models.BookingStatusChangedEvent
	h.OnBookingCreated(func(_ context.Context, e *models.BookingCreatedEvent) error {
		created = e
		return nil
	})
	h.OnBookingStatusChanged(func(_ context.Context, e *models.BookingStatusChangedEvent) error {
		changed = e
		return nil
	})

	err := h.HandleMessage(context.Background(), message(t, &models.BookingCreatedEvent{
		BaseEvent:        models.BaseEvent{EventID: "e1", EventType: models.EventTypeBookingCreated, Timestamp: time.Now()},
		BookingID:        1,
		TotalAmountCents: 150000,
	}))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(150000), created.TotalAmountCents)
	assert.Nil(t, changed)

	err = h.HandleMessage(context.Background(), message(t, &models.BookingStatusChangedEvent{
		BaseEvent:  models.BaseEvent{EventID: "e2", EventType: models.EventTypeBookingStatusChanged, Timestamp: time.Now()},
		BookingID:  1,
		FromStatus: models.BookingStatusPending,
		ToStatus:   models.BookingStatusRejected,
	}))
	require.NoError(t, err)
	require.NotNil(t, changed)
	assert.Equal(t, models.BookingStatusRejected, changed.ToStatus)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	h := NewEventHandler()
	err := h.HandleMessage(context.Background(), message(t, &models.BaseEvent{EventID: "x", EventType: "SOMETHING_ELSE"}))
	assert.NoError(t, err)
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	h := NewEventHandler()
	err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestPublisherWithoutProducerIsNoop(t *testing.T) {
	ep := NewEventPublisher(nil)
	assert.NoError(t, ep.PublishBookingCreated(context.Background(), &models.BookingCreatedEvent{BookingID: 1}))
	assert.NoError(t, ep.PublishBookingStatusChanged(context.Background(), &models.BookingStatusChangedEvent{BookingID: 1}))
}
