package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"rental-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrNotFound            = errors.New("record not found")
	ErrEmailTaken          = errors.New("email already registered")
	ErrActiveBookingExists = errors.New("listing already has an active booking")
	ErrDuplicateRequest    = errors.New("idempotency key already used")
)

const (
	uniqueViolation = "23505"

	constraintActiveBooking  = "bookings_one_active_per_listing"
	constraintIdempotencyKey = "bookings_idempotency_key_key"
	constraintAccountEmail   = "accounts_email_key"
)

// PoolConfig tunes the connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string, pool PoolConfig) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Tx is the set of queries available inside a booking or listing write.
// Every method runs on the same database transaction.
type Tx interface {
	LockListing(ctx context.Context, listingID int64) (*models.Listing, error)
	LockBooking(ctx context.Context, bookingID int64) (*models.Booking, error)
	HasActiveBooking(ctx context.Context, listingID int64) (bool, error)
	HasActiveBookingOn(ctx context.Context, listingID int64, date time.Time) (bool, error)
	CountActiveBookings(ctx context.Context, listingID int64) (int, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBooking(ctx context.Context, booking *models.Booking) error
	SetListingAvailability(ctx context.Context, listingID int64, available bool) error
	DeleteListing(ctx context.Context, listingID int64) error
}

// InTx runs fn inside a transaction, committing when fn returns nil
func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

// LockListing reads a listing and holds its row lock until the transaction ends
func (t *sqlTx) LockListing(ctx context.Context, listingID int64) (*models.Listing, error) {
	var listing models.Listing
	err := t.tx.GetContext(ctx, &listing,
		"SELECT "+listingColumns+" FROM listings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE", listingID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock listing: %w", err)
	}
	return &listing, nil
}

// LockBooking reads a booking and holds its row lock until the transaction ends
func (t *sqlTx) LockBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var booking models.Booking
	err := t.tx.GetContext(ctx, &booking,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = $1 FOR UPDATE", bookingID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return &booking, nil
}

// activeStatuses binds models.ActiveStatuses as a text array
func activeStatuses() interface{} {
	names := make([]string, len(models.ActiveStatuses))
	for i, s := range models.ActiveStatuses {
		names[i] = string(s)
	}
	return pq.Array(names)
}

func (t *sqlTx) HasActiveBooking(ctx context.Context, listingID int64) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM bookings WHERE listing_id = $1 AND status = ANY($2))",
		listingID, activeStatuses())
	return exists, err
}

func (t *sqlTx) HasActiveBookingOn(ctx context.Context, listingID int64, date time.Time) (bool, error) {
	var exists bool
	err := t.tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM bookings WHERE listing_id = $1 AND start_date = $2::date AND status = ANY($3))",
		listingID, date.Format(models.DateLayout), activeStatuses())
	return exists, err
}

func (t *sqlTx) CountActiveBookings(ctx context.Context, listingID int64) (int, error) {
	var count int
	err := t.tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM bookings WHERE listing_id = $1 AND status = ANY($2)",
		listingID, activeStatuses())
	return count, err
}

// InsertBooking creates a booking and fills in its id and timestamps
func (t *sqlTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (farmer_id, listing_id, start_date, duration, duration_unit,
			total_amount_cents, payment_mode, status, idempotency_key)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	row := t.tx.QueryRowxContext(ctx, query,
		b.FarmerID, b.ListingID, b.StartDate.Format(models.DateLayout), b.Duration, b.DurationUnit,
		b.TotalAmountCents, b.PaymentMode, b.Status, b.IdempotencyKey)
	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return translateError(err)
	}
	return nil
}

// UpdateBooking writes the mutable booking fields
func (t *sqlTx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	err := t.tx.GetContext(ctx, &b.UpdatedAt,
		"UPDATE bookings SET status = $1, total_amount_cents = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at",
		b.Status, b.TotalAmountCents, b.ID)
	if err != nil {
		return translateError(err)
	}
	return nil
}

func (t *sqlTx) SetListingAvailability(ctx context.Context, listingID int64, available bool) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE listings SET availability = $1, updated_at = NOW() WHERE id = $2",
		available, listingID)
	return err
}

// DeleteListing hides a listing; its bookings are kept for history
func (t *sqlTx) DeleteListing(ctx context.Context, listingID int64) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE listings SET deleted_at = NOW(), availability = FALSE, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL",
		listingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// translateError maps driver errors onto the store's sentinel errors
func translateError(err error) error {
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case constraintActiveBooking:
			return ErrActiveBookingExists
		case constraintIdempotencyKey:
			return ErrDuplicateRequest
		case constraintAccountEmail:
			return ErrEmailTaken
		}
	}
	return err
}
