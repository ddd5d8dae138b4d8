package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusApproved  BookingStatus = "approved"
	BookingStatusRejected  BookingStatus = "rejected"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// ActiveStatuses are the statuses that hold a listing
var ActiveStatuses = []BookingStatus{BookingStatusPending, BookingStatusApproved}

// TransitionTargets are the statuses an owner may move a booking to
var TransitionTargets = []BookingStatus{
	BookingStatusApproved,
	BookingStatusRejected,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

var legalTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:  {BookingStatusApproved, BookingStatusRejected},
	BookingStatusApproved: {BookingStatusCompleted, BookingStatusCancelled},
}

// Valid reports whether s is a known status
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusApproved, BookingStatusRejected,
		BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether a booking in this status keeps its listing unavailable
func (s BookingStatus) IsActive() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is completed, rejected or cancelled
func (s BookingStatus) IsTerminal() bool {
	return s.Valid() && !s.IsActive()
}

// IsTransitionTarget reports whether an owner may request s
func (s BookingStatus) IsTransitionTarget() bool {
	for _, t := range TransitionTargets {
		if s == t {
			return true
		}
	}
	return false
}

// CanTransition reports whether a booking may move from one status to another.
// With strict set only the lifecycle edges are legal; otherwise any transition
// target is reachable from any other status.
func CanTransition(from, to BookingStatus, strict bool) bool {
	if from == to || !to.IsTransitionTarget() {
		return false
	}
	if !strict {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DurationUnit selects which listing rate applies to a booking
type DurationUnit string

const (
	DurationDays  DurationUnit = "days"
	DurationHours DurationUnit = "hours"
)

// MaxDuration is the longest booking allowed in the unit: one year
func (u DurationUnit) MaxDuration() int {
	switch u {
	case DurationDays:
		return 365
	case DurationHours:
		return 365 * 24
	}
	return 0
}

// RateFor returns the listing rate for the unit, zero when the rate is unset
func (l *Listing) RateFor(unit DurationUnit) int64 {
	var rate *int64
	if unit == DurationDays {
		rate = l.RatePerDayCents
	} else {
		rate = l.RatePerHourCents
	}
	if rate == nil {
		return 0
	}
	return *rate
}

// ErrAmountOutOfRange is returned when a booking amount is negative or does not fit in int64
var ErrAmountOutOfRange = errors.New("booking amount out of range")

// ComputeAmount returns duration × the listing's rate for the unit
func ComputeAmount(duration int, unit DurationUnit, listing *Listing) (int64, error) {
	rate := listing.RateFor(unit)
	if duration < 0 || rate < 0 {
		return 0, ErrAmountOutOfRange
	}
	if rate != 0 && int64(duration) > math.MaxInt64/rate {
		return 0, ErrAmountOutOfRange
	}
	return int64(duration) * rate, nil
}

// DeriveAvailability reports whether a listing with bookings in the given
// statuses is free to book.
func DeriveAvailability(statuses []BookingStatus) bool {
	for _, s := range statuses {
		if s.IsActive() {
			return false
		}
	}
	return true
}

// DateLayout is the wire and storage format of a booking start date
const DateLayout = "2006-01-02"

// ParseStartDate parses a YYYY-MM-DD date in loc
func ParseStartDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, loc)
}

// Today returns midnight of now's calendar day in loc
func Today(now time.Time, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// FormatAmount renders minor units as a rupee amount, e.g. ₹1500.00
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, cents/100, cents%100)
}
