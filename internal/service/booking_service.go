package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-service/internal/apperror"
	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingRepository is the storage used by BookingService. *store.Store implements it.
type BookingRepository interface {
	InTx(ctx context.Context, fn func(tx store.Tx) error) error
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error)
	GetBookingDetail(ctx context.Context, id int64) (*models.BookingDetail, error)
	ListBookings(ctx context.Context, f store.BookingFilter) ([]models.BookingDetail, error)
	ListBookingHistory(ctx context.Context, bookingID int64) ([]models.BookingHistoryEntry, error)
}

// BookingOptions tunes the booking rules. The zero value enforces the
// booking lifecycle; PermissiveTransitions allows any status change.
type BookingOptions struct {
	Location              *time.Location
	PermissiveTransitions bool
	ListingLockTTL        time.Duration
}

// BookingService owns the booking lifecycle and keeps listing availability
// in line with the bookings on each listing
type BookingService struct {
	repo      BookingRepository
	locker    Locker
	publisher EventPublisher
	opts      BookingOptions
	onChange  []func()
	now       func() time.Time
	logger    *zap.Logger
}

// NewBookingService creates a new booking service. locker may be nil.
func NewBookingService(
	repo BookingRepository,
	locker Locker,
	publisher EventPublisher,
	opts BookingOptions,
) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ListingLockTTL <= 0 {
		opts.ListingLockTTL = 10 * time.Second
	}
	return &BookingService{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// OnChange registers a callback run after every committed booking write
func (s *BookingService) OnChange(fn func()) {
	s.onChange = append(s.onChange, fn)
}

func (s *BookingService) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}

// CreateBookingRequest represents a farmer's request to book a listing
type CreateBookingRequest struct {
	FarmerID       int64               `json:"-"`
	ListingID      int64               `json:"-"`
	StartDate      string              `json:"start_date" binding:"required,datetime=2006-01-02"`
	Duration       int                 `json:"duration" binding:"required,min=1,max=8760"`
	DurationUnit   models.DurationUnit `json:"duration_unit" binding:"required,oneof=days hours"`
	IdempotencyKey string              `json:"-"`
}

// CreateBookingResponse represents the response after creating a booking
type CreateBookingResponse struct {
	BookingID        int64                `json:"booking_id"`
	Status           models.BookingStatus `json:"status"`
	TotalAmountCents int64                `json:"total_amount_cents"`
	PaymentMode      models.PaymentMode   `json:"payment_mode"`
	ListingAvailable bool                 `json:"listing_available"`
	Message          string               `json:"message"`
}

// validate parses the start date in the business time zone and bounds the
// duration by its unit; field presence and format are checked at binding.
func (r *CreateBookingRequest) validate(loc *time.Location) (time.Time, error) {
	startDate, err := models.ParseStartDate(r.StartDate, loc)
	if err != nil {
		return time.Time{}, apperror.Validation("Start date must be a date in YYYY-MM-DD format.")
	}
	limit := r.DurationUnit.MaxDuration()
	if limit == 0 {
		return time.Time{}, apperror.Validation("Duration unit must be days or hours.")
	}
	if r.Duration < 1 || r.Duration > limit {
		return time.Time{}, apperror.Validation(fmt.Sprintf("Duration must be between 1 and %d %s.", limit, r.DurationUnit))
	}
	return startDate, nil
}

// CreateBooking creates a pending booking and marks the listing unavailable.
// The listing row is locked for the whole check-and-insert, and a partial
// unique index rejects a second active booking if the lock is bypassed.
func (s *BookingService) CreateBooking(ctx context.Context, req *CreateBookingRequest) (resp *CreateBookingResponse, err error) {
	ctx, span := util.StartSpan(ctx, "BookingService.CreateBooking")
	defer func() { util.EndSpan(span, err) }()

	logger := util.LoggerFromContext(ctx).With(
		zap.Int64("farmer_id", req.FarmerID),
		zap.Int64("listing_id", req.ListingID))

	defer func() {
		if err != nil {
			util.BookingsRejectedTotal.WithLabelValues(refusalReason(err)).Inc()
		}
	}()

	if _, err := requireRole(ctx, s.repo, req.FarmerID, models.RoleFarmer, "Only farmers can book equipment."); err != nil {
		return nil, err
	}

	startDate, err := req.validate(s.opts.Location)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if resp, err := s.replay(ctx, req); resp != nil || err != nil {
			return resp, err
		}
	}

	lockKey := fmt.Sprintf("listing:%d", req.ListingID)
	if s.locker != nil {
		token, ok, lockErr := s.locker.AcquireLock(ctx, lockKey, s.opts.ListingLockTTL)
		switch {
		case lockErr != nil:
			util.ListingLockErrorsTotal.Inc()
			logger.Warn("Listing lock unavailable, relying on database locking", zap.Error(lockErr))
		case !ok:
			util.ListingLockContentionTotal.Inc()
			return nil, apperror.ErrListingBooked
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
					logger.Warn("Failed to release listing lock", zap.Error(err))
				}
			}()
		}
	}

	var (
		booking   *models.Booking
		ownerID   int64
		available bool
	)

	start := time.Now()
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		listing, err := tx.LockListing(ctx, req.ListingID)
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NotFound("Equipment not found.")
		}
		if err != nil {
			return err
		}

		if !listing.Availability {
			return apperror.ErrListingUnavailable
		}

		active, err := tx.HasActiveBooking(ctx, listing.ID)
		if err != nil {
			return fmt.Errorf("failed to check active bookings: %w", err)
		}
		if active {
			return apperror.ErrListingBooked
		}

		sameDay, err := tx.HasActiveBookingOn(ctx, listing.ID, startDate)
		if err != nil {
			return fmt.Errorf("failed to check bookings on date: %w", err)
		}
		if sameDay {
			return apperror.ErrDateBooked
		}

		if startDate.Before(models.Today(s.now(), s.opts.Location)) {
			return apperror.Validation("Start date cannot be in the past.")
		}

		amount, err := models.ComputeAmount(req.Duration, req.DurationUnit, listing)
		if err != nil {
			return apperror.Validation("Booking amount is too large for this equipment's rate.")
		}

		booking = &models.Booking{
			FarmerID:         req.FarmerID,
			ListingID:        listing.ID,
			StartDate:        startDate,
			Duration:         req.Duration,
			DurationUnit:     req.DurationUnit,
			TotalAmountCents: amount,
			PaymentMode:      models.PaymentModeCash,
			Status:           models.BookingStatusPending,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			booking.IdempotencyKey = &key
		}

		if err := tx.InsertBooking(ctx, booking); err != nil {
			if errors.Is(err, store.ErrActiveBookingExists) {
				return apperror.ErrListingBooked
			}
			return err
		}

		ownerID = listing.OwnerID
		available, err = syncAvailability(ctx, tx, listing.ID)
		return err
	})
	util.BookingTxLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())

	if errors.Is(err, store.ErrDuplicateRequest) {
		if resp, err := s.replay(ctx, req); resp != nil || err != nil {
			return resp, err
		}
	}
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			return nil, fmt.Errorf("failed to create booking: %w", err)
		}
		return nil, err
	}

	util.BookingsCreatedTotal.Inc()
	logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("total_amount_cents", booking.TotalAmountCents))

	s.changed()

	event := &models.BookingCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBookingCreated,
			Timestamp: s.now(),
		},
		BookingID:        booking.ID,
		ListingID:        booking.ListingID,
		FarmerID:         booking.FarmerID,
		OwnerID:          ownerID,
		StartDate:        booking.StartDate.Format(models.DateLayout),
		Duration:         booking.Duration,
		DurationUnit:     booking.DurationUnit,
		TotalAmountCents: booking.TotalAmountCents,
		Status:           booking.Status,
	}
	if err := s.publisher.PublishBookingCreated(ctx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(event.EventType).Inc()
		logger.Error("Failed to publish BookingCreated event", zap.Error(err))
	}

	return &CreateBookingResponse{
		BookingID:        booking.ID,
		Status:           booking.Status,
		TotalAmountCents: booking.TotalAmountCents,
		PaymentMode:      booking.PaymentMode,
		ListingAvailable: available,
		Message: fmt.Sprintf("Booking request sent! Total amount: %s. Pay cash on delivery.",
			models.FormatAmount(booking.TotalAmountCents)),
	}, nil
}

// replay returns the booking already created with the request's idempotency
// key, or nil when there is none
func (s *BookingService) replay(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	existing, err := s.repo.GetBookingByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.FarmerID != req.FarmerID || existing.ListingID != req.ListingID {
		return nil, apperror.Conflict("Idempotency key was already used for a different booking.")
	}

	util.LoggerFromContext(ctx).Info("Duplicate booking request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Int64("booking_id", existing.ID))

	return &CreateBookingResponse{
		BookingID:        existing.ID,
		Status:           existing.Status,
		TotalAmountCents: existing.TotalAmountCents,
		PaymentMode:      existing.PaymentMode,
		ListingAvailable: !existing.Status.IsActive(),
		Message:          "Booking request already received.",
	}, nil
}

// TransitionRequest represents an owner's status change on a booking
type TransitionRequest struct {
	BookingID int64                `json:"-"`
	ActorID   int64                `json:"-"`
	Status    models.BookingStatus `json:"status" binding:"required,oneof=approved rejected completed cancelled"`
}

// TransitionResponse carries the updated booking. EarningsCents is set when
// the booking was completed.
type TransitionResponse struct {
	Booking          *models.Booking `json:"booking"`
	ListingAvailable bool            `json:"listing_available"`
	EarningsCents    int64           `json:"earnings_cents,omitempty"`
	Message          string          `json:"message"`
}

// TransitionBooking moves a booking to a new status on behalf of the listing
// owner and recomputes the listing's availability from all of its bookings
func (s *BookingService) TransitionBooking(ctx context.Context, req *TransitionRequest) (resp *TransitionResponse, err error) {
	ctx, span := util.StartSpan(ctx, "BookingService.TransitionBooking")
	defer func() { util.EndSpan(span, err) }()

	logger := util.LoggerFromContext(ctx).With(
		zap.Int64("booking_id", req.BookingID),
		zap.Int64("actor_id", req.ActorID))

	if _, err := requireRole(ctx, s.repo, req.ActorID, models.RoleOwner, "Access denied."); err != nil {
		return nil, err
	}
	if !req.Status.IsTransitionTarget() {
		return nil, apperror.Validation("Invalid status.")
	}

	detail, err := s.repo.GetBookingDetail(ctx, req.BookingID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && detail.OwnerID != req.ActorID) {
		return nil, apperror.NotFound("Booking not found.")
	}
	if err != nil {
		return nil, err
	}

	var (
		booking    *models.Booking
		fromStatus models.BookingStatus
		repaired   bool
		available  bool
	)

	start := time.Now()
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		// listing before booking, the same order CreateBooking locks in
		listing, err := tx.LockListing(ctx, detail.ListingID)
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NotFound("Booking not found.")
		}
		if err != nil {
			return err
		}
		if listing.OwnerID != req.ActorID {
			return apperror.NotFound("Booking not found.")
		}

		booking, err = tx.LockBooking(ctx, req.BookingID)
		if errors.Is(err, store.ErrNotFound) {
			return apperror.NotFound("Booking not found.")
		}
		if err != nil {
			return err
		}

		fromStatus = booking.Status
		if !models.CanTransition(booking.Status, req.Status, !s.opts.PermissiveTransitions) {
			return apperror.ErrIllegalTransition
		}

		if req.Status == models.BookingStatusCompleted && booking.TotalAmountCents == 0 {
			amount, err := models.ComputeAmount(booking.Duration, booking.DurationUnit, listing)
			if err != nil {
				return apperror.Validation("Booking amount is too large for this equipment's rate.")
			}
			logger.Warn("Completing booking with zero amount, recomputing from current listing rate",
				zap.Int64("stale_amount_cents", booking.TotalAmountCents),
				zap.Int64("new_amount_cents", amount),
				zap.String("duration_unit", string(booking.DurationUnit)))
			booking.TotalAmountCents = amount
			repaired = true
		}

		booking.Status = req.Status
		if err := tx.UpdateBooking(ctx, booking); err != nil {
			if errors.Is(err, store.ErrActiveBookingExists) {
				return apperror.ErrListingBooked
			}
			return err
		}

		available, err = syncAvailability(ctx, tx, listing.ID)
		return err
	})
	util.BookingTxLatency.WithLabelValues("transition").Observe(time.Since(start).Seconds())

	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			return nil, fmt.Errorf("failed to update booking: %w", err)
		}
		return nil, err
	}

	util.BookingTransitionsTotal.WithLabelValues(string(booking.Status)).Inc()
	if repaired {
		util.BookingAmountRepairsTotal.Inc()
	}

	resp = &TransitionResponse{
		Booking:          booking,
		ListingAvailable: available,
		Message:          fmt.Sprintf("Booking #%d has been %s.", booking.ID, booking.Status),
	}
	if booking.Status == models.BookingStatusCompleted {
		resp.EarningsCents = booking.TotalAmountCents
		util.OwnerEarningsCents.Add(float64(booking.TotalAmountCents))
	}

	logger.Info("Booking status changed",
		zap.String("from", string(fromStatus)),
		zap.String("to", string(booking.Status)),
		zap.Bool("listing_available", available))

	s.changed()

	event := &models.BookingStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBookingStatusChanged,
			Timestamp: s.now(),
		},
		BookingID:        booking.ID,
		ListingID:        booking.ListingID,
		ActorID:          req.ActorID,
		FromStatus:       fromStatus,
		ToStatus:         booking.Status,
		TotalAmountCents: booking.TotalAmountCents,
		AmountRepaired:   repaired,
		ListingAvailable: available,
	}
	if err := s.publisher.PublishBookingStatusChanged(ctx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(event.EventType).Inc()
		logger.Error("Failed to publish BookingStatusChanged event", zap.Error(err))
	}

	return resp, nil
}

// syncAvailability rewrites the listing's availability from its active
// bookings and returns the new value
func syncAvailability(ctx context.Context, tx store.Tx, listingID int64) (bool, error) {
	count, err := tx.CountActiveBookings(ctx, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to count active bookings: %w", err)
	}
	available := count == 0
	if err := tx.SetListingAvailability(ctx, listingID, available); err != nil {
		return false, fmt.Errorf("failed to update availability: %w", err)
	}
	return available, nil
}

// ListBookingsForFarmer returns the farmer's bookings, newest first
func (s *BookingService) ListBookingsForFarmer(ctx context.Context, farmerID int64, status string) ([]models.BookingDetail, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.ListBookingsForFarmer")
	defer span.End()

	if _, err := requireRole(ctx, s.repo, farmerID, models.RoleFarmer, "Access denied."); err != nil {
		return nil, err
	}
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBookings(ctx, store.BookingFilter{FarmerID: farmerID, Status: filter})
}

// ListBookingsForOwner returns bookings on the owner's listings, newest first
func (s *BookingService) ListBookingsForOwner(ctx context.Context, ownerID int64, status string) ([]models.BookingDetail, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.ListBookingsForOwner")
	defer span.End()

	if _, err := requireRole(ctx, s.repo, ownerID, models.RoleOwner, "Access denied."); err != nil {
		return nil, err
	}
	filter, err := parseStatusFilter(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBookings(ctx, store.BookingFilter{OwnerID: ownerID, Status: filter})
}

// GetBooking returns a booking visible to the actor: the farmer who made it
// or the owner of its listing
func (s *BookingService) GetBooking(ctx context.Context, actorID, bookingID int64) (*models.BookingDetail, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.GetBooking")
	defer span.End()

	detail, err := s.repo.GetBookingDetail(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.NotFound("Booking not found.")
	}
	if err != nil {
		return nil, err
	}
	if detail.FarmerID != actorID && detail.OwnerID != actorID {
		return nil, apperror.NotFound("Booking not found.")
	}
	return detail, nil
}

// BookingHistory returns the lifecycle steps of a booking visible to the actor
func (s *BookingService) BookingHistory(ctx context.Context, actorID, bookingID int64) ([]models.BookingHistoryEntry, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.BookingHistory")
	defer span.End()

	if _, err := s.GetBooking(ctx, actorID, bookingID); err != nil {
		return nil, err
	}
	return s.repo.ListBookingHistory(ctx, bookingID)
}

// refusalReason labels a failed booking request for metrics
func refusalReason(err error) string {
	switch {
	case errors.Is(err, apperror.ErrListingUnavailable):
		return "unavailable"
	case errors.Is(err, apperror.ErrListingBooked):
		return "already_booked"
	case errors.Is(err, apperror.ErrDateBooked):
		return "date_booked"
	}
	switch apperror.KindOf(err) {
	case apperror.KindValidation:
		return "invalid_input"
	case apperror.KindNotFound:
		return "not_found"
	case apperror.KindAuthorization, apperror.KindAuthentication:
		return "forbidden"
	case apperror.KindConflict:
		return "conflict"
	}
	return "db_error"
}
