package models

import "time"

// Event types
const (
	EventTypeBookingCreated       = "BOOKING_CREATED"
	EventTypeBookingStatusChanged = "BOOKING_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published when a farmer creates a booking
type BookingCreatedEvent struct {
	BaseEvent
	BookingID        int64         `json:"booking_id"`
	ListingID        int64         `json:"listing_id"`
	FarmerID         int64         `json:"farmer_id"`
	OwnerID          int64         `json:"owner_id"`
	StartDate        string        `json:"start_date"`
	Duration         int           `json:"duration"`
	DurationUnit     DurationUnit  `json:"duration_unit"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	Status           BookingStatus `json:"status"`
}

// BookingStatusChangedEvent published when an owner transitions a booking
type BookingStatusChangedEvent struct {
	BaseEvent
	BookingID        int64         `json:"booking_id"`
	ListingID        int64         `json:"listing_id"`
	ActorID          int64         `json:"actor_id"`
	FromStatus       BookingStatus `json:"from_status"`
	ToStatus         BookingStatus `json:"to_status"`
	TotalAmountCents int64         `json:"total_amount_cents"`
	AmountRepaired   bool          `json:"amount_repaired,omitempty"`
	ListingAvailable bool          `json:"listing_available"`
}
