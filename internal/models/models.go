package models

import "time"

// Role is the marketplace role of an account
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleOwner  Role = "owner"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleFarmer || r == RoleOwner
}

// Category classifies equipment
type Category string

const (
	CategoryTractor    Category = "tractor"
	CategorySprayer    Category = "sprayer"
	CategoryRotavator  Category = "rotavator"
	CategoryHarvester  Category = "harvester"
	CategoryIrrigation Category = "irrigation"
	CategoryOther      Category = "other"
)

// PaymentMode is how a booking is settled. Only cash on delivery is supported.
type PaymentMode string

const PaymentModeCash PaymentMode = "cash"

// Account represents a farmer or an equipment owner
type Account struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	Name         string    `db:"name" json:"name"`
	Phone        string    `db:"phone" json:"phone"`
	Location     string    `db:"location" json:"location,omitempty"`
	WorkshopName string    `db:"workshop_name" json:"workshop_name,omitempty"`
	Address      string    `db:"address" json:"address,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Listing represents a piece of equipment offered for rent by an owner.
// Availability is derived from the listing's bookings and is never written directly.
type Listing struct {
	ID               int64      `db:"id" json:"id"`
	OwnerID          int64      `db:"owner_id" json:"owner_id"`
	Name             string     `db:"name" json:"name"`
	Category         Category   `db:"category" json:"category"`
	Description      string     `db:"description" json:"description"`
	RatePerDayCents  *int64     `db:"rate_per_day_cents" json:"rate_per_day_cents,omitempty"`
	RatePerHourCents *int64     `db:"rate_per_hour_cents" json:"rate_per_hour_cents,omitempty"`
	Location         string     `db:"location" json:"location"`
	Availability     bool       `db:"availability" json:"availability"`
	ImageURL         string     `db:"image_url" json:"image_url,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time `db:"deleted_at" json:"-"`
}

// Booking represents a farmer's rental of a listing
type Booking struct {
	ID               int64         `db:"id" json:"id"`
	FarmerID         int64         `db:"farmer_id" json:"farmer_id"`
	ListingID        int64         `db:"listing_id" json:"listing_id"`
	StartDate        time.Time     `db:"start_date" json:"start_date"`
	Duration         int           `db:"duration" json:"duration"`
	DurationUnit     DurationUnit  `db:"duration_unit" json:"duration_unit"`
	TotalAmountCents int64         `db:"total_amount_cents" json:"total_amount_cents"`
	PaymentMode      PaymentMode   `db:"payment_mode" json:"payment_mode"`
	Status           BookingStatus `db:"status" json:"status"`
	IdempotencyKey   *string       `db:"idempotency_key" json:"-"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// BookingDetail is a booking joined with the parties and the listing it refers to
type BookingDetail struct {
	Booking
	ListingName string `db:"listing_name" json:"listing_name"`
	OwnerID     int64  `db:"owner_id" json:"owner_id"`
	OwnerName   string `db:"owner_name" json:"owner_name"`
	FarmerName  string `db:"farmer_name" json:"farmer_name"`
	FarmerPhone string `db:"farmer_phone" json:"farmer_phone"`
}

// BookingHistoryEntry records one lifecycle step of a booking
type BookingHistoryEntry struct {
	ID               int64         `db:"id" json:"id"`
	BookingID        int64         `db:"booking_id" json:"booking_id"`
	EventID          string        `db:"event_id" json:"event_id"`
	FromStatus       BookingStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus         BookingStatus `db:"to_status" json:"to_status"`
	ActorID          int64         `db:"actor_id" json:"actor_id"`
	TotalAmountCents int64         `db:"total_amount_cents" json:"total_amount_cents"`
	OccurredAt       time.Time     `db:"occurred_at" json:"occurred_at"`
}

// AccountSummary holds the dashboard figures for an account
type AccountSummary struct {
	Role               Role  `json:"role"`
	TotalEarningsCents int64 `json:"total_earnings_cents,omitempty"`
	PendingRequests    int   `json:"pending_requests,omitempty"`
	ListingCount       int   `json:"listing_count,omitempty"`
	ActiveBookings     int   `json:"active_bookings,omitempty"`
	PendingCount       int   `json:"pending_count"`
	ApprovedCount      int   `json:"approved_count"`
	CompletedCount     int   `json:"completed_count"`
}

