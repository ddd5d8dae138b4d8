package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rental-service/internal/models"
)

const listingColumns = `id, owner_id, name, category, description, rate_per_day_cents, rate_per_hour_cents,
	location, availability, image_url, created_at, updated_at, deleted_at`

// ListingFilter narrows a listing search. Zero values do not filter.
type ListingFilter struct {
	Query            string
	Category         models.Category
	Location         string
	MinDayRateCents  *int64
	MaxDayRateCents  *int64
	OwnerID          int64
	IncludeBooked    bool
	ExcludeListingID int64
	Limit            int
	Offset           int
}

// CreateListing creates a new listing
func (s *Store) CreateListing(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO listings (owner_id, name, category, description, rate_per_day_cents, rate_per_hour_cents,
			location, availability, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		l.OwnerID, l.Name, l.Category, l.Description, l.RatePerDayCents, l.RatePerHourCents,
		l.Location, l.Availability, l.ImageURL)
	if err := row.Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// GetListingByID retrieves a listing that has not been deleted
func (s *Store) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.GetContext(ctx, &listing,
		"SELECT "+listingColumns+" FROM listings WHERE id = $1 AND deleted_at IS NULL", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// UpdateListing writes the owner-editable listing fields. Availability is not touched.
func (s *Store) UpdateListing(ctx context.Context, l *models.Listing) error {
	err := s.db.GetContext(ctx, &l.UpdatedAt, `
		UPDATE listings SET name = $1, category = $2, description = $3, rate_per_day_cents = $4,
			rate_per_hour_cents = $5, location = $6, image_url = $7, updated_at = NOW()
		WHERE id = $8 AND deleted_at IS NULL
		RETURNING updated_at`,
		l.Name, l.Category, l.Description, l.RatePerDayCents, l.RatePerHourCents, l.Location, l.ImageURL, l.ID)
	return translateError(err)
}

// SearchListings returns listings matching the filter, newest first
func (s *Store) SearchListings(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if !f.IncludeBooked {
		where = append(where, "availability = TRUE")
	}
	if f.OwnerID != 0 {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Location != "" {
		where = append(where, "location ILIKE ?")
		args = append(args, "%"+f.Location+"%")
	}
	if f.Query != "" {
		q := "%" + f.Query + "%"
		where = append(where, "(name ILIKE ? OR category ILIKE ? OR location ILIKE ? OR description ILIKE ?)")
		args = append(args, q, q, q, q)
	}
	if f.MinDayRateCents != nil {
		where = append(where, "rate_per_day_cents >= ?")
		args = append(args, *f.MinDayRateCents)
	}
	if f.MaxDayRateCents != nil {
		where = append(where, "rate_per_day_cents <= ?")
		args = append(args, *f.MaxDayRateCents)
	}
	if f.ExcludeListingID != 0 {
		where = append(where, "id <> ?")
		args = append(args, f.ExcludeListingID)
	}

	query := "SELECT " + listingColumns + " FROM listings WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	listings := []models.Listing{}
	err := s.db.SelectContext(ctx, &listings, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return listings, nil
}

// CountListingsByOwner counts an owner's listings that have not been deleted
func (s *Store) CountListingsByOwner(ctx context.Context, ownerID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM listings WHERE owner_id = $1 AND deleted_at IS NULL", ownerID)
	return count, err
}

// ReconcileAvailability rewrites every availability flag that disagrees with
// the listing's bookings and returns how many rows were repaired
func (s *Store) ReconcileAvailability(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE listings l
		SET availability = NOT EXISTS (
				SELECT 1 FROM bookings b WHERE b.listing_id = l.id AND b.status = ANY($1)),
			updated_at = NOW()
		WHERE l.deleted_at IS NULL
		  AND l.availability IS DISTINCT FROM NOT EXISTS (
				SELECT 1 FROM bookings b WHERE b.listing_id = l.id AND b.status = ANY($1))`, activeStatuses())
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile availability: %w", err)
	}
	return res.RowsAffected()
}

// ListListingsByOwner returns every listing of an owner, booked or not
func (s *Store) ListListingsByOwner(ctx context.Context, ownerID int64) ([]models.Listing, error) {
	return s.SearchListings(ctx, ListingFilter{OwnerID: ownerID, IncludeBooked: true})
}

// SimilarListings returns available listings in the same category, excluding the listing itself
func (s *Store) SimilarListings(ctx context.Context, l *models.Listing, limit int) ([]models.Listing, error) {
	return s.SearchListings(ctx, ListingFilter{
		Category:         l.Category,
		ExcludeListingID: l.ID,
		Limit:            limit,
	})
}
