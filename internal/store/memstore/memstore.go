// Package memstore is an in-memory implementation of the store used by
// service and handler tests. Transactions are serialized and rolled back by
// restoring a snapshot, and the active-booking and idempotency-key
// uniqueness rules of the SQL schema are enforced on insert.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/store"
)

type Store struct {
	mu sync.Mutex

	nextID    int64
	now       func() time.Time
	accounts  map[int64]*models.Account
	listings  map[int64]*models.Listing
	bookings  map[int64]*models.Booking
	history   []models.BookingHistoryEntry
	processed map[string]string

	// PingErr is returned by Ping when set
	PingErr error
}

// New creates an empty store
func New() *Store {
	return &Store{
		now:       time.Now,
		accounts:  make(map[int64]*models.Account),
		listings:  make(map[int64]*models.Listing),
		bookings:  make(map[int64]*models.Booking),
		processed: make(map[string]string),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// stamp returns a creation time that strictly increases across calls
func (s *Store) stamp() time.Time {
	return s.now().Add(time.Duration(s.nextID) * time.Microsecond)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.PingErr
}

// InTx runs fn with exclusive access, restoring the previous state when fn fails
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listings := make(map[int64]models.Listing, len(s.listings))
	for id, l := range s.listings {
		listings[id] = *l
	}
	bookings := make(map[int64]models.Booking, len(s.bookings))
	for id, b := range s.bookings {
		bookings[id] = *b
	}
	nextID := s.nextID

	if err := fn(&memTx{s: s}); err != nil {
		s.listings = make(map[int64]*models.Listing, len(listings))
		for id, l := range listings {
			l := l
			s.listings[id] = &l
		}
		s.bookings = make(map[int64]*models.Booking, len(bookings))
		for id, b := range bookings {
			b := b
			s.bookings[id] = &b
		}
		s.nextID = nextID
		return err
	}
	return nil
}

type memTx struct {
	s *Store
}

func (t *memTx) LockListing(ctx context.Context, listingID int64) (*models.Listing, error) {
	l, ok := t.s.listings[listingID]
	if !ok || l.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	out := *l
	return &out, nil
}

func (t *memTx) LockBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	b, ok := t.s.bookings[bookingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *b
	return &out, nil
}

func (t *memTx) HasActiveBooking(ctx context.Context, listingID int64) (bool, error) {
	count, err := t.CountActiveBookings(ctx, listingID)
	return count > 0, err
}

func (t *memTx) HasActiveBookingOn(ctx context.Context, listingID int64, date time.Time) (bool, error) {
	day := date.Format(models.DateLayout)
	for _, b := range t.s.bookings {
		if b.ListingID == listingID && b.Status.IsActive() && b.StartDate.Format(models.DateLayout) == day {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CountActiveBookings(ctx context.Context, listingID int64) (int, error) {
	count := 0
	for _, b := range t.s.bookings {
		if b.ListingID == listingID && b.Status.IsActive() {
			count++
		}
	}
	return count, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	for _, existing := range t.s.bookings {
		if b.Status.IsActive() && existing.ListingID == b.ListingID && existing.Status.IsActive() {
			return store.ErrActiveBookingExists
		}
		if b.IdempotencyKey != nil && existing.IdempotencyKey != nil && *b.IdempotencyKey == *existing.IdempotencyKey {
			return store.ErrDuplicateRequest
		}
	}

	b.ID = t.s.id()
	b.CreatedAt = t.s.stamp()
	b.UpdatedAt = b.CreatedAt
	stored := *b
	t.s.bookings[b.ID] = &stored
	return nil
}

func (t *memTx) UpdateBooking(ctx context.Context, b *models.Booking) error {
	stored, ok := t.s.bookings[b.ID]
	if !ok {
		return store.ErrNotFound
	}
	if b.Status.IsActive() && !stored.Status.IsActive() {
		for _, other := range t.s.bookings {
			if other.ID != b.ID && other.ListingID == b.ListingID && other.Status.IsActive() {
				return store.ErrActiveBookingExists
			}
		}
	}
	stored.Status = b.Status
	stored.TotalAmountCents = b.TotalAmountCents
	stored.UpdatedAt = t.s.now()
	b.UpdatedAt = stored.UpdatedAt
	return nil
}

func (t *memTx) SetListingAvailability(ctx context.Context, listingID int64, available bool) error {
	if l, ok := t.s.listings[listingID]; ok {
		l.Availability = available
		l.UpdatedAt = t.s.now()
	}
	return nil
}

func (t *memTx) DeleteListing(ctx context.Context, listingID int64) error {
	l, ok := t.s.listings[listingID]
	if !ok || l.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := t.s.now()
	l.DeletedAt = &now
	l.Availability = false
	l.UpdatedAt = now
	return nil
}

// Accounts

func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return store.ErrEmailTaken
		}
	}
	a.ID = s.id()
	a.CreatedAt = s.stamp()
	a.UpdatedAt = a.CreatedAt
	stored := *a
	s.accounts[a.ID] = &stored
	return nil
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			out := *a
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateAccountProfile(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored.Name = a.Name
	stored.Phone = a.Phone
	stored.Location = a.Location
	stored.WorkshopName = a.WorkshopName
	stored.Address = a.Address
	stored.UpdatedAt = s.now()
	a.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, accountID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	stored.PasswordHash = hash
	stored.UpdatedAt = s.now()
	return nil
}

// Listings

func (s *Store) CreateListing(ctx context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l.ID = s.id()
	l.CreatedAt = s.stamp()
	l.UpdatedAt = l.CreatedAt
	stored := *l
	s.listings[l.ID] = &stored
	return nil
}

func (s *Store) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok || l.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	out := *l
	return &out, nil
}

func (s *Store) UpdateListing(ctx context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.listings[l.ID]
	if !ok || stored.DeletedAt != nil {
		return store.ErrNotFound
	}
	stored.Name = l.Name
	stored.Category = l.Category
	stored.Description = l.Description
	stored.RatePerDayCents = l.RatePerDayCents
	stored.RatePerHourCents = l.RatePerHourCents
	stored.Location = l.Location
	stored.ImageURL = l.ImageURL
	stored.UpdatedAt = s.now()
	l.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *Store) SearchListings(ctx context.Context, f store.ListingFilter) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listings := []models.Listing{}
	for _, l := range s.listings {
		if matchesListing(l, f) {
			listings = append(listings, *l)
		}
	}
	sort.Slice(listings, func(i, j int) bool {
		if !listings[i].CreatedAt.Equal(listings[j].CreatedAt) {
			return listings[i].CreatedAt.After(listings[j].CreatedAt)
		}
		return listings[i].ID > listings[j].ID
	})

	if f.Limit > 0 {
		if f.Offset >= len(listings) {
			return []models.Listing{}, nil
		}
		listings = listings[f.Offset:]
		if len(listings) > f.Limit {
			listings = listings[:f.Limit]
		}
	}
	return listings, nil
}

func matchesListing(l *models.Listing, f store.ListingFilter) bool {
	contains := func(s, sub string) bool {
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}

	switch {
	case l.DeletedAt != nil:
		return false
	case !f.IncludeBooked && !l.Availability:
		return false
	case f.OwnerID != 0 && l.OwnerID != f.OwnerID:
		return false
	case f.Category != "" && l.Category != f.Category:
		return false
	case f.Location != "" && !contains(l.Location, f.Location):
		return false
	case f.ExcludeListingID != 0 && l.ID == f.ExcludeListingID:
		return false
	}
	if f.Query != "" && !contains(l.Name, f.Query) && !contains(string(l.Category), f.Query) &&
		!contains(l.Location, f.Query) && !contains(l.Description, f.Query) {
		return false
	}
	if f.MinDayRateCents != nil && (l.RatePerDayCents == nil || *l.RatePerDayCents < *f.MinDayRateCents) {
		return false
	}
	if f.MaxDayRateCents != nil && (l.RatePerDayCents == nil || *l.RatePerDayCents > *f.MaxDayRateCents) {
		return false
	}
	return true
}

func (s *Store) ListListingsByOwner(ctx context.Context, ownerID int64) ([]models.Listing, error) {
	return s.SearchListings(ctx, store.ListingFilter{OwnerID: ownerID, IncludeBooked: true})
}

func (s *Store) SimilarListings(ctx context.Context, l *models.Listing, limit int) ([]models.Listing, error) {
	return s.SearchListings(ctx, store.ListingFilter{Category: l.Category, ExcludeListingID: l.ID, Limit: limit})
}

func (s *Store) CountListingsByOwner(ctx context.Context, ownerID int64) (int, error) {
	listings, err := s.SearchListings(ctx, store.ListingFilter{OwnerID: ownerID, IncludeBooked: true})
	return len(listings), err
}

func (s *Store) ReconcileAvailability(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fixed int64
	for _, l := range s.listings {
		if l.DeletedAt != nil {
			continue
		}
		statuses := []models.BookingStatus{}
		for _, b := range s.bookings {
			if b.ListingID == l.ID {
				statuses = append(statuses, b.Status)
			}
		}
		if want := models.DeriveAvailability(statuses); l.Availability != want {
			l.Availability = want
			l.UpdatedAt = s.now()
			fixed++
		}
	}
	return fixed, nil
}

// Bookings

func (s *Store) detail(b *models.Booking) models.BookingDetail {
	d := models.BookingDetail{Booking: *b}
	if l, ok := s.listings[b.ListingID]; ok {
		d.ListingName = l.Name
		d.OwnerID = l.OwnerID
		if o, ok := s.accounts[l.OwnerID]; ok {
			d.OwnerName = o.Name
		}
	}
	if f, ok := s.accounts[b.FarmerID]; ok {
		d.FarmerName = f.Name
		d.FarmerPhone = f.Phone
	}
	return d
}

func (s *Store) GetBookingDetail(ctx context.Context, id int64) (*models.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	d := s.detail(b)
	return &d, nil
}

func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bookings {
		if b.IdempotencyKey != nil && *b.IdempotencyKey == key {
			out := *b
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) matchingBookings(f store.BookingFilter) []models.BookingDetail {
	out := []models.BookingDetail{}
	for _, b := range s.bookings {
		d := s.detail(b)
		if f.FarmerID != 0 && d.FarmerID != f.FarmerID {
			continue
		}
		if f.OwnerID != 0 && d.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *Store) ListBookings(ctx context.Context, f store.BookingFilter) ([]models.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bookings := s.matchingBookings(f)
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
		}
		return bookings[i].ID > bookings[j].ID
	})
	if f.Limit > 0 && len(bookings) > f.Limit {
		bookings = bookings[:f.Limit]
	}
	return bookings, nil
}

func (s *Store) CountBookingsByStatus(ctx context.Context, f store.BookingFilter) (map[models.BookingStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.Status = ""
	counts := make(map[models.BookingStatus]int)
	for _, d := range s.matchingBookings(f) {
		counts[d.Status]++
	}
	return counts, nil
}

func (s *Store) SumCompletedAmount(ctx context.Context, ownerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, d := range s.matchingBookings(store.BookingFilter{OwnerID: ownerID, Status: models.BookingStatusCompleted}) {
		total += d.TotalAmountCents
	}
	return total, nil
}

// History

func (s *Store) AppendBookingHistory(ctx context.Context, e *models.BookingHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.history {
		if existing.EventID == e.EventID {
			return nil
		}
	}
	e.ID = s.id()
	s.history = append(s.history, *e)
	return nil
}

func (s *Store) ListBookingHistory(ctx context.Context, bookingID int64) ([]models.BookingHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := []models.BookingHistoryEntry{}
	for _, e := range s.history {
		if e.BookingID == bookingID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.Before(entries[j].OccurredAt)
	})
	return entries, nil
}

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[eventID] = eventType
	return nil
}

// Test helpers

// PutBooking stores a booking as is, bypassing the uniqueness checks
func (s *Store) PutBooking(b *models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == 0 {
		b.ID = s.id()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.stamp()
		b.UpdatedAt = b.CreatedAt
	}
	stored := *b
	s.bookings[b.ID] = &stored
}

// SetAvailability overwrites a listing's availability flag
func (s *Store) SetAvailability(listingID int64, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.listings[listingID]; ok {
		l.Availability = available
	}
}

// Listing returns a copy of a listing, deleted or not
func (s *Store) Listing(id int64) (models.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return models.Listing{}, false
	}
	return *l, true
}

// Booking returns a copy of a booking
func (s *Store) Booking(id int64) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return models.Booking{}, false
	}
	return *b, true
}

// BookingCount returns the number of stored bookings
func (s *Store) BookingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.bookings)
}
