package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rental-service/internal/models"
)

const bookingColumns = `id, farmer_id, listing_id, start_date, duration, duration_unit, total_amount_cents,
	payment_mode, status, idempotency_key, created_at, updated_at`

const bookingDetailSelect = `
	SELECT b.id, b.farmer_id, b.listing_id, b.start_date, b.duration, b.duration_unit, b.total_amount_cents,
		b.payment_mode, b.status, b.idempotency_key, b.created_at, b.updated_at,
		l.name AS listing_name, l.owner_id, o.name AS owner_name, f.name AS farmer_name, f.phone AS farmer_phone
	FROM bookings b
	JOIN listings l ON l.id = b.listing_id
	JOIN accounts o ON o.id = l.owner_id
	JOIN accounts f ON f.id = b.farmer_id`

// BookingFilter selects bookings by farmer or by listing owner
type BookingFilter struct {
	FarmerID int64
	OwnerID  int64
	Status   models.BookingStatus
	Limit    int
}

func (f BookingFilter) where() (string, []interface{}) {
	clauses := []string{}
	args := []interface{}{}
	if f.FarmerID != 0 {
		clauses = append(clauses, "b.farmer_id = ?")
		args = append(args, f.FarmerID)
	}
	if f.OwnerID != 0 {
		clauses = append(clauses, "l.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "b.status = ?")
		args = append(args, f.Status)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// GetBookingDetail retrieves a booking with its listing and parties
func (s *Store) GetBookingDetail(ctx context.Context, id int64) (*models.BookingDetail, error) {
	var detail models.BookingDetail
	err := s.db.GetContext(ctx, &detail, bookingDetailSelect+" WHERE b.id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &detail, nil
}

// GetBookingByIdempotencyKey retrieves a booking by idempotency key
func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT "+bookingColumns+" FROM bookings WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListBookings retrieves bookings newest first
func (s *Store) ListBookings(ctx context.Context, f BookingFilter) ([]models.BookingDetail, error) {
	where, args := f.where()
	query := bookingDetailSelect + where + " ORDER BY b.created_at DESC, b.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	bookings := []models.BookingDetail{}
	if err := s.db.SelectContext(ctx, &bookings, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// CountBookingsByStatus counts matching bookings per status. The filter's status is ignored.
func (s *Store) CountBookingsByStatus(ctx context.Context, f BookingFilter) (map[models.BookingStatus]int, error) {
	f.Status = ""
	where, args := f.where()
	query := `SELECT b.status, COUNT(*) AS count FROM bookings b JOIN listings l ON l.id = b.listing_id` +
		where + " GROUP BY b.status"

	var rows []struct {
		Status models.BookingStatus `db:"status"`
		Count  int                  `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}

	counts := make(map[models.BookingStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// SumCompletedAmount totals the amounts of an owner's completed bookings
func (s *Store) SumCompletedAmount(ctx context.Context, ownerID int64) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(b.total_amount_cents), 0)
		FROM bookings b JOIN listings l ON l.id = b.listing_id
		WHERE l.owner_id = $1 AND b.status = 'completed'`, ownerID)
	return total, err
}
