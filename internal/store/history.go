package store

import (
	"context"
	"fmt"

	"rental-service/internal/models"
)

// AppendBookingHistory records a lifecycle step. Replays of the same event are ignored.
func (s *Store) AppendBookingHistory(ctx context.Context, e *models.BookingHistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO booking_history (booking_id, event_id, from_status, to_status, actor_id, total_amount_cents, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING`,
		e.BookingID, e.EventID, e.FromStatus, e.ToStatus, e.ActorID, e.TotalAmountCents, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append booking history: %w", err)
	}
	return nil
}

// ListBookingHistory returns a booking's lifecycle steps oldest first
func (s *Store) ListBookingHistory(ctx context.Context, bookingID int64) ([]models.BookingHistoryEntry, error) {
	entries := []models.BookingHistoryEntry{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, booking_id, event_id, from_status, to_status, actor_id, total_amount_cents, occurred_at
		FROM booking_history WHERE booking_id = $1 ORDER BY occurred_at, id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking history: %w", err)
	}
	return entries, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
