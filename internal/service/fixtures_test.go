package service

import (
	"context"
	"testing"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/store/memstore"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// fixed "now": 1 Nov 2026, 10:00 in the business time zone
var testNow = time.Date(2026, 11, 1, 10, 0, 0, 0, ist)

const (
	today    = "2026-11-01"
	tomorrow = "2026-11-02"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) PublishBookingStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// quietPublisher accepts any event
func quietPublisher() *mockPublisher {
	p := &mockPublisher{}
	p.On("PublishBookingCreated", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.On("PublishBookingStatusChanged", mock.Anything, mock.Anything).Return(nil).Maybe()
	return p
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockLocker) ReleaseLock(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func int64p(v int64) *int64 { return &v }

type fixture struct {
	store     *memstore.Store
	bookings  *BookingService
	publisher *mockPublisher
	owner     *models.Account
	farmer    *models.Account
	farmer2   *models.Account
	listing   *models.Listing
}

func newFixture(t *testing.T, strict bool) *fixture {
	return newFixtureWith(t, strict, nil, quietPublisher())
}

func newFixtureWith(t *testing.T, strict bool, locker Locker, publisher *mockPublisher) *fixture {
	t.Helper()

	st := memstore.New()
	f := &fixture{
		store:     st,
		publisher: publisher,
		owner:     createAccount(t, st, models.RoleOwner, "owner@example.com"),
		farmer:    createAccount(t, st, models.RoleFarmer, "farmer@example.com"),
		farmer2:   createAccount(t, st, models.RoleFarmer, "farmer2@example.com"),
	}
	f.listing = createListing(t, st, f.owner.ID, int64p(50000), nil)

	f.bookings = NewBookingService(st, locker, publisher, BookingOptions{
		Location:              ist,
		PermissiveTransitions: !strict,
	})
	f.bookings.now = func() time.Time { return testNow }
	return f
}

func createAccount(t *testing.T, st *memstore.Store, role models.Role, email string) *models.Account {
	t.Helper()
	a := &models.Account{Email: email, Role: role, Name: string(role) + " " + email, Phone: "9876543210"}
	require.NoError(t, st.CreateAccount(context.Background(), a))
	return a
}

func createListing(t *testing.T, st *memstore.Store, ownerID int64, dayRate, hourRate *int64) *models.Listing {
	t.Helper()
	l := &models.Listing{
		OwnerID:          ownerID,
		Name:             "Mahindra 575 DI",
		Category:         models.CategoryTractor,
		RatePerDayCents:  dayRate,
		RatePerHourCents: hourRate,
		Location:         "Nashik",
		Availability:     true,
	}
	require.NoError(t, st.CreateListing(context.Background(), l))
	return l
}

func (f *fixture) book(t *testing.T, farmerID int64, startDate string, duration int, unit models.DurationUnit) (*CreateBookingResponse, error) {
	t.Helper()
	return f.bookings.CreateBooking(context.Background(), &CreateBookingRequest{
		FarmerID:     farmerID,
		ListingID:    f.listing.ID,
		StartDate:    startDate,
		Duration:     duration,
		DurationUnit: unit,
	})
}

func (f *fixture) transition(bookingID int64, status models.BookingStatus) (*TransitionResponse, error) {
	return f.bookings.TransitionBooking(context.Background(), &TransitionRequest{
		BookingID: bookingID,
		ActorID:   f.owner.ID,
		Status:    status,
	})
}

func (f *fixture) listingAvailable(t *testing.T, id int64) bool {
	t.Helper()
	l, ok := f.store.Listing(id)
	require.True(t, ok)
	return l.Availability
}
