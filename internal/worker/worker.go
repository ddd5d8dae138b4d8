package worker

import (
	"context"
	"fmt"

	"rental-service/internal/broker"
	"rental-service/internal/models"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

// HistoryStore records booking history. *store.Store implements it.
type HistoryStore interface {
	AppendBookingHistory(ctx context.Context, e *models.BookingHistoryEntry) error
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// MessageSource delivers messages to a handler until ctx ends. *broker.Consumer implements it.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// HistoryWorker turns booking events into booking_history rows
type HistoryWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	store        HistoryStore
	logger       *zap.Logger
}

// NewHistoryWorker creates a new history worker
func NewHistoryWorker(source MessageSource, store HistoryStore) *HistoryWorker {
	w := &HistoryWorker{
		source:       source,
		eventHandler: broker.NewEventHandler(),
		store:        store,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnBookingCreated(w.HandleBookingCreated)
	w.eventHandler.OnBookingStatusChanged(w.HandleBookingStatusChanged)
	return w
}

// Start starts the worker
func (w *HistoryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting booking history worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *HistoryWorker) Stop() error {
	w.logger.Info("Stopping booking history worker")
	return w.source.Close()
}

// HandleBookingCreated records the creation of a booking
func (w *HistoryWorker) HandleBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	return w.record(ctx, event.BaseEvent, &models.BookingHistoryEntry{
		BookingID:        event.BookingID,
		EventID:          event.EventID,
		ToStatus:         event.Status,
		ActorID:          event.FarmerID,
		TotalAmountCents: event.TotalAmountCents,
		OccurredAt:       event.Timestamp,
	})
}

// HandleBookingStatusChanged records a status transition
func (w *HistoryWorker) HandleBookingStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error {
	if event.AmountRepaired {
		w.logger.Warn("Booking amount was recomputed at completion",
			zap.Int64("booking_id", event.BookingID),
			zap.Int64("total_amount_cents", event.TotalAmountCents))
	}
	return w.record(ctx, event.BaseEvent, &models.BookingHistoryEntry{
		BookingID:        event.BookingID,
		EventID:          event.EventID,
		FromStatus:       event.FromStatus,
		ToStatus:         event.ToStatus,
		ActorID:          event.ActorID,
		TotalAmountCents: event.TotalAmountCents,
		OccurredAt:       event.Timestamp,
	})
}

func (w *HistoryWorker) record(ctx context.Context, base models.BaseEvent, entry *models.BookingHistoryEntry) error {
	processed, err := w.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	if err := w.store.AppendBookingHistory(ctx, entry); err != nil {
		return err
	}
	if err := w.store.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	w.logger.Debug("Booking history recorded",
		zap.Int64("booking_id", entry.BookingID),
		zap.String("to_status", string(entry.ToStatus)))
	return nil
}
