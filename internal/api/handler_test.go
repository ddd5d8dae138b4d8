package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rental-service/internal/auth"
	"rental-service/internal/models"
	"rental-service/internal/service"
	"rental-service/internal/store/memstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type noopPublisher struct{}

func (noopPublisher) PublishBookingCreated(ctx context.Context, e *models.BookingCreatedEvent) error {
	return nil
}

func (noopPublisher) PublishBookingStatusChanged(ctx context.Context, e *models.BookingStatusChangedEvent) error {
	return nil
}

type testServer struct {
	router *gin.Engine
	store  *memstore.Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	st := memstore.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour, "rental-service")
	accounts := service.NewAccountService(st, tokens)
	listings := service.NewListingService(st)
	bookings := service.NewBookingService(st, nil, noopPublisher{}, service.BookingOptions{Location: time.UTC})

	if opts.Readiness == nil {
		opts.Readiness = map[string]Pinger{"database": st}
	}
	router := gin.New()
	NewHandler(accounts, listings, bookings, tokens, opts).SetupRoutes(router)

	return &testServer{router: router, store: st}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signUp registers and logs in an account, returning its access token
func (s *testServer) signUp(t *testing.T, role, email string) string {
	t.Helper()

	body := map[string]string{
		"name":          "Test " + role,
		"email":         email,
		"password":      "password123",
		"phone":         "9876543210",
		"location":      "Nashik",
		"workshop_name": "Patil Workshop",
		"address":       "MIDC Road, Nashik",
	}
	w := s.do(t, http.MethodPost, "/api/v1/auth/register/"+role, "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "password123",
		"role":     role,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["access_token"].(string)
}

func (s *testServer) addListing(t *testing.T, ownerToken string) int64 {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/v1/listings", ownerToken, map[string]interface{}{
		"name":               "Mahindra 575 DI",
		"category":           "tractor",
		"rate_per_day_cents": 50000,
		"location":           "Nashik",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["id"].(float64))
}

func nextWeek() string {
	return time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, Options{})
	owner := s.signUp(t, "owner", "owner@example.com")
	farmer := s.signUp(t, "farmer", "farmer@example.com")
	listingID := s.addListing(t, owner)

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/bookings", listingID), farmer, map[string]interface{}{
		"start_date":    nextWeek(),
		"duration":      2,
		"duration_unit": "days",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, float64(100000), created["total_amount_cents"])
	assert.Equal(t, false, created["listing_available"])
	bookingID := int64(created["booking_id"].(float64))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/listings/%d", listingID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_available"])

	statusPath := fmt.Sprintf("/api/v1/bookings/%d/status", bookingID)

	w = s.do(t, http.MethodPost, statusPath, owner, map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["listing_available"])

	w = s.do(t, http.MethodPost, statusPath, owner, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decode(t, w)
	assert.Equal(t, true, completed["listing_available"])
	assert.Equal(t, float64(100000), completed["earnings_cents"])

	w = s.do(t, http.MethodGet, "/api/v1/me/summary", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(100000), decode(t, w)["total_earnings_cents"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d/history", bookingID), farmer, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestTransitionFromCompletedIsConflict(t *testing.T) {
	s := newTestServer(t, Options{})
	owner := s.signUp(t, "owner", "owner@example.com")
	farmer := s.signUp(t, "farmer", "farmer@example.com")
	listingID := s.addListing(t, owner)

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/bookings", listingID), farmer, map[string]interface{}{
		"start_date":    nextWeek(),
		"duration":      1,
		"duration_unit": "days",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	statusPath := fmt.Sprintf("/api/v1/bookings/%d/status", int64(decode(t, w)["booking_id"].(float64)))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, statusPath, owner, map[string]string{"status": "approved"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, statusPath, owner, map[string]string{"status": "completed"}).Code)

	w = s.do(t, http.MethodPost, statusPath, owner, map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "conflict", body["kind"])
	assert.Equal(t, "This booking cannot move to the requested status.", body["error"])
}

func TestSecondBookingIsRefused(t *testing.T) {
	s := newTestServer(t, Options{})
	owner := s.signUp(t, "owner", "owner@example.com")
	farmer := s.signUp(t, "farmer", "farmer@example.com")
	other := s.signUp(t, "farmer", "other@example.com")
	listingID := s.addListing(t, owner)
	path := fmt.Sprintf("/api/v1/listings/%d/bookings", listingID)
	body := map[string]interface{}{"start_date": nextWeek(), "duration": 3, "duration_unit": "hours"}

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, path, farmer, body).Code)

	w := s.do(t, http.MethodPost, path, other, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode(t, w)["kind"])
}

func TestIdempotencyKeyHeaderReplays(t *testing.T) {
	s := newTestServer(t, Options{})
	owner := s.signUp(t, "owner", "owner@example.com")
	farmer := s.signUp(t, "farmer", "farmer@example.com")
	listingID := s.addListing(t, owner)
	path := fmt.Sprintf("/api/v1/listings/%d/bookings", listingID)
	body := map[string]interface{}{"start_date": nextWeek(), "duration": 1, "duration_unit": "days"}

	first := s.do(t, http.MethodPost, path, farmer, body, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := s.do(t, http.MethodPost, path, farmer, body, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, second.Code, second.Body.String())

	assert.Equal(t, decode(t, first)["booking_id"], decode(t, second)["booking_id"])
	assert.Equal(t, 1, s.store.BookingCount())
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "authentication", decode(t, w)["kind"])

	w = s.do(t, http.MethodGet, "/api/v1/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.signUp(t, "farmer", "farmer@example.com")
	w = s.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "farmer@example.com", decode(t, w)["email"])
	assert.NotContains(t, w.Body.String(), "password")
}

func TestLoginWithWrongRole(t *testing.T) {
	s := newTestServer(t, Options{})
	s.signUp(t, "farmer", "farmer@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "farmer@example.com",
		"password": "password123",
		"role":     "owner",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials or role selection.", decode(t, w)["error"])
}

func TestRoleGating(t *testing.T) {
	s := newTestServer(t, Options{})
	owner := s.signUp(t, "owner", "owner@example.com")
	farmer := s.signUp(t, "farmer", "farmer@example.com")
	listingID := s.addListing(t, owner)

	w := s.do(t, http.MethodPost, "/api/v1/listings", farmer, map[string]interface{}{
		"name": "Sprayer", "category": "sprayer", "rate_per_day_cents": 10000, "location": "Pune",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "authorization", decode(t, w)["kind"])

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/bookings", listingID), owner, map[string]interface{}{
		"start_date": nextWeek(), "duration": 1, "duration_unit": "days",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/owner/bookings", farmer, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/farmer/bookings", owner, nil).Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newTestServer(t, Options{})
	s.signUp(t, "farmer", "farmer@example.com")

	w := s.do(t, http.MethodPost, "/api/v1/auth/register/owner", "", map[string]string{
		"name": "Dup", "email": "farmer@example.com", "password": "password123", "phone": "1",
		"workshop_name": "W", "address": "A",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Email already exists.", decode(t, w)["error"])
}

func TestInvalidPathID(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/api/v1/listings/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["kind"])
}

func TestListingCacheIsFlushedByBookings(t *testing.T) {
	s := newTestServer(t, Options{ListingCacheTTL: time.Minute})
	owner := s.signUp(t, "owner", "owner@example.com")
	farmer := s.signUp(t, "farmer", "farmer@example.com")
	listingID := s.addListing(t, owner)

	first := s.do(t, http.MethodGet, "/api/v1/listings", "", nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get("X-Cache"))
	assert.Equal(t, float64(1), decode(t, first)["count"])

	second := s.do(t, http.MethodGet, "/api/v1/listings", "", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/listings/%d/bookings", listingID), farmer, map[string]interface{}{
		"start_date": nextWeek(), "duration": 1, "duration_unit": "days",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	third := s.do(t, http.MethodGet, "/api/v1/listings", "", nil)
	assert.Empty(t, third.Header().Get("X-Cache"))
	assert.Equal(t, float64(0), decode(t, third)["count"])
}

func TestSearchRejectsUnknownPriceRange(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodGet, "/api/v1/listings?price_range=cheap", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation", body["kind"])
	assert.Equal(t, "Price range must be one of: 0-500, 500-1000, 1000-2000, 2000+.", body["error"])
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RateLimitPerSec: 1, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/listings", "", nil).Code)
	w := s.do(t, http.MethodGet, "/api/v1/listings", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", "", nil).Code)

	s = newTestServer(t, Options{Readiness: map[string]Pinger{"redis": failingPinger{}}})
	w := s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "connection refused", decode(t, w)["checks"].(map[string]interface{})["redis"])
}

func TestCORSHeaders(t *testing.T) {
	s := newTestServer(t, Options{AllowedOrigins: []string{"https://greengear.example"}})

	w := s.do(t, http.MethodGet, "/health", "", nil, "Origin", "https://greengear.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://greengear.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do(t, http.MethodGet, "/health", "", nil, "Origin", "https://elsewhere.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequestBindingErrors(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(t, http.MethodPost, "/api/v1/auth/register/farmer", "", map[string]string{
		"name": "Asha", "email": "not-an-email", "password": "password123", "phone": "9876543210", "location": "Nashik",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation", body["kind"])
	assert.Equal(t, "Enter a valid email address.", body["error"])
	assert.Contains(t, body["fields"], "email")

	w = s.do(t, http.MethodPost, "/api/v1/auth/register/farmer", "", map[string]string{
		"name": "Asha", "email": "asha@example.com", "password": "short", "phone": "9876543210", "location": "Nashik",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Password must be at least 8 characters.", decode(t, w)["error"])

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Role is required.", decode(t, w)["error"])

	owner := s.signUp(t, "owner", "owner@example.com")
	farmer := s.signUp(t, "farmer", "farmer@example.com")
	listingID := s.addListing(t, owner)
	path := fmt.Sprintf("/api/v1/listings/%d/bookings", listingID)

	tests := []struct {
		name    string
		body    map[string]interface{}
		message string
	}{
		{"missing duration", map[string]interface{}{"start_date": nextWeek(), "duration_unit": "days"}, "Duration is required."},
		{"unknown unit", map[string]interface{}{"start_date": nextWeek(), "duration": 1, "duration_unit": "weeks"}, "Duration unit must be one of: days, hours."},
		{"bad date", map[string]interface{}{"start_date": "02/11/2026", "duration": 1, "duration_unit": "days"}, "Start date must be a date in YYYY-MM-DD format."},
		{"huge duration", map[string]interface{}{"start_date": nextWeek(), "duration": int64(1) << 40, "duration_unit": "days"}, "Duration must be at most 8760."},
		{"over a year of days", map[string]interface{}{"start_date": nextWeek(), "duration": 400, "duration_unit": "days"}, "Duration must be between 1 and 365 days."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, path, farmer, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			body := decode(t, w)
			assert.Equal(t, "validation", body["kind"])
			assert.Equal(t, tt.message, body["error"])
		})
	}
	assert.Equal(t, 0, s.store.BookingCount())

	w = s.do(t, http.MethodPost, "/api/v1/listings", owner, map[string]interface{}{
		"name": "Sprayer", "category": "drone", "rate_per_day_cents": 10000, "location": "Pune",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Category must be one of: tractor, sprayer, rotavator, harvester, irrigation, other.", decode(t, w)["error"])

	w = s.do(t, http.MethodPost, "/api/v1/bookings/1/status", owner, map[string]string{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["kind"])
}
