package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rental-service/internal/apperror"
	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

const (
	similarListingsLimit = 4
	defaultSearchLimit   = 20
	maxSearchLimit       = 100
)

// ListingRepository is the storage used by ListingService. *store.Store implements it.
type ListingRepository interface {
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListingByID(ctx context.Context, id int64) (*models.Listing, error)
	UpdateListing(ctx context.Context, l *models.Listing) error
	SearchListings(ctx context.Context, f store.ListingFilter) ([]models.Listing, error)
	ListListingsByOwner(ctx context.Context, ownerID int64) ([]models.Listing, error)
	SimilarListings(ctx context.Context, l *models.Listing, limit int) ([]models.Listing, error)
}

// ListingService manages equipment listings
type ListingService struct {
	repo     ListingRepository
	onChange []func()
	logger   *zap.Logger
}

// NewListingService creates a new listing service
func NewListingService(repo ListingRepository) *ListingService {
	return &ListingService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// OnChange registers a callback run after a listing is created, edited or deleted
func (s *ListingService) OnChange(fn func()) {
	s.onChange = append(s.onChange, fn)
}

func (s *ListingService) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}

// ListingInput holds the owner-editable fields of a listing. Availability is
// not among them: it follows the listing's bookings.
type ListingInput struct {
	Name             string          `json:"name" binding:"required,max=200"`
	Category         models.Category `json:"category" binding:"required,oneof=tractor sprayer rotavator harvester irrigation other"`
	Description      string          `json:"description" binding:"max=2000"`
	RatePerDayCents  *int64          `json:"rate_per_day_cents" binding:"omitempty,min=0,max=100000000"`
	RatePerHourCents *int64          `json:"rate_per_hour_cents" binding:"omitempty,min=0,max=10000000"`
	Location         string          `json:"location" binding:"required,max=100"`
	ImageURL         string          `json:"image_url" binding:"omitempty,url,max=500"`
}

func (in *ListingInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)

	if in.Name == "" || in.Location == "" {
		return apperror.Validation("Please fill all required fields.")
	}
	if !positive(in.RatePerDayCents) && !positive(in.RatePerHourCents) {
		return apperror.Validation("Set a rent per day or a rent per hour.")
	}
	return nil
}

func positive(rate *int64) bool {
	return rate != nil && *rate > 0
}

func (in *ListingInput) applyTo(l *models.Listing) {
	l.Name = in.Name
	l.Category = in.Category
	l.Description = in.Description
	l.RatePerDayCents = in.RatePerDayCents
	l.RatePerHourCents = in.RatePerHourCents
	l.Location = in.Location
	l.ImageURL = strings.TrimSpace(in.ImageURL)
}

// CreateListing adds a listing for an owner. New listings are available.
func (s *ListingService) CreateListing(ctx context.Context, ownerID int64, in *ListingInput) (listing *models.Listing, err error) {
	ctx, span := util.StartSpan(ctx, "ListingService.CreateListing")
	defer func() { util.EndSpan(span, err) }()

	if _, err := requireRole(ctx, s.repo, ownerID, models.RoleOwner, "Only equipment owners can add equipment."); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	listing = &models.Listing{OwnerID: ownerID, Availability: true}
	in.applyTo(listing)

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return nil, err
	}

	s.logger.Info("Listing created", zap.Int64("listing_id", listing.ID), zap.Int64("owner_id", ownerID))
	s.changed()
	return listing, nil
}

// ownedListing returns the owner's listing; other owners' listings are reported as missing
func (s *ListingService) ownedListing(ctx context.Context, ownerID, listingID int64) (*models.Listing, error) {
	listing, err := s.repo.GetListingByID(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && listing.OwnerID != ownerID) {
		return nil, apperror.NotFound("Equipment not found.")
	}
	return listing, err
}

// UpdateListing edits a listing of the owner
func (s *ListingService) UpdateListing(ctx context.Context, ownerID, listingID int64, in *ListingInput) (listing *models.Listing, err error) {
	ctx, span := util.StartSpan(ctx, "ListingService.UpdateListing")
	defer func() { util.EndSpan(span, err) }()

	if _, err := requireRole(ctx, s.repo, ownerID, models.RoleOwner, "Only equipment owners can edit equipment."); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	listing, err = s.ownedListing(ctx, ownerID, listingID)
	if err != nil {
		return nil, err
	}

	in.applyTo(listing)
	if err := s.repo.UpdateListing(ctx, listing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.NotFound("Equipment not found.")
		}
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}

	s.changed()
	return listing, nil
}

// DeleteListing hides a listing that has no active booking. Its bookings are kept.
func (s *ListingService) DeleteListing(ctx context.Context, ownerID, listingID int64) (err error) {
	ctx, span := util.StartSpan(ctx, "ListingService.DeleteListing")
	defer func() { util.EndSpan(span, err) }()

	if _, err := requireRole(ctx, s.repo, ownerID, models.RoleOwner, "Only equipment owners can delete equipment."); err != nil {
		return err
	}

	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		listing, err := tx.LockListing(ctx, listingID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && listing.OwnerID != ownerID) {
			return apperror.NotFound("Equipment not found.")
		}
		if err != nil {
			return err
		}

		active, err := tx.HasActiveBooking(ctx, listingID)
		if err != nil {
			return err
		}
		if active {
			return apperror.Conflict("Equipment has an active booking and cannot be deleted.")
		}
		return tx.DeleteListing(ctx, listingID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Listing deleted", zap.Int64("listing_id", listingID), zap.Int64("owner_id", ownerID))
	s.changed()
	return nil
}

// ListingDetail is a listing with similar available listings
type ListingDetail struct {
	Listing     *models.Listing  `json:"listing"`
	IsAvailable bool             `json:"is_available"`
	Similar     []models.Listing `json:"similar"`
}

// GetListing returns a listing and up to four available listings of the same category
func (s *ListingService) GetListing(ctx context.Context, listingID int64) (*ListingDetail, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.GetListing")
	defer span.End()

	listing, err := s.repo.GetListingByID(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.NotFound("Equipment not found.")
	}
	if err != nil {
		return nil, err
	}

	similar, err := s.repo.SimilarListings(ctx, listing, similarListingsLimit)
	if err != nil {
		return nil, err
	}

	return &ListingDetail{
		Listing:     listing,
		IsAvailable: listing.Availability,
		Similar:     similar,
	}, nil
}

// SearchRequest is the public listing search. PriceRange is one of 0-500,
// 500-1000, 1000-2000 or 2000+, in whole rupees per day.
type SearchRequest struct {
	Query      string `form:"q" binding:"max=100"`
	Category   string `form:"category" binding:"omitempty,oneof=tractor sprayer rotavator harvester irrigation other"`
	Location   string `form:"location" binding:"max=100"`
	PriceRange string `form:"price_range" binding:"omitempty,oneof=0-500 500-1000 1000-2000 2000+"`
	Limit      int    `form:"limit" binding:"min=0"`
	Offset     int    `form:"offset" binding:"min=0"`
}

var priceRanges = map[string][2]int64{
	"0-500":     {-1, 500},
	"500-1000":  {500, 1000},
	"1000-2000": {1000, 2000},
	"2000+":     {2000, -1},
}

// SearchListings returns available listings matching the request, newest first
func (s *ListingService) SearchListings(ctx context.Context, req *SearchRequest) ([]models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.SearchListings")
	defer span.End()

	filter := store.ListingFilter{
		Query:    strings.TrimSpace(req.Query),
		Location: strings.TrimSpace(req.Location),
		Limit:    req.Limit,
		Offset:   req.Offset,
	}

	if req.Category != "" {
		filter.Category = models.Category(req.Category)
	}

	if req.PriceRange != "" {
		bounds, ok := priceRanges[req.PriceRange]
		if !ok {
			return nil, apperror.Validation("Invalid price range.")
		}
		if bounds[0] >= 0 {
			lo := bounds[0] * 100
			filter.MinDayRateCents = &lo
		}
		if bounds[1] >= 0 {
			hi := bounds[1] * 100
			filter.MaxDayRateCents = &hi
		}
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultSearchLimit
	}
	if filter.Limit > maxSearchLimit {
		filter.Limit = maxSearchLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return s.repo.SearchListings(ctx, filter)
}

// ListOwnerListings returns all of an owner's listings, booked or not
func (s *ListingService) ListOwnerListings(ctx context.Context, ownerID int64) ([]models.Listing, error) {
	ctx, span := util.StartSpan(ctx, "ListingService.ListOwnerListings")
	defer span.End()

	if _, err := requireRole(ctx, s.repo, ownerID, models.RoleOwner, "Access denied."); err != nil {
		return nil, err
	}
	return s.repo.ListListingsByOwner(ctx, ownerID)
}
