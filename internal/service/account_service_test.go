package service

import (
	"context"
	"testing"
	"time"

	"rental-service/internal/apperror"
	"rental-service/internal/auth"
	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/store/memstore"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountService() (*AccountService, *memstore.Store, *auth.TokenManager) {
	st := memstore.New()
	tokens := auth.NewTokenManager("test-secret", time.Hour, "rental-service")
	return NewAccountService(st, tokens), st, tokens
}

func farmerSignup() *RegisterRequest {
	return &RegisterRequest{
		Role:     models.RoleFarmer,
		Name:     "Asha Patil",
		Email:    "Asha@Example.com ",
		Password: "sowing-season",
		Phone:    "9876543210",
		Location: "Nashik",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, tokens := newAccountService()
	ctx := context.Background()

	account, err := svc.Register(ctx, farmerSignup())
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", account.Email)
	assert.NotEqual(t, "sowing-season", account.PasswordHash)

	resp, err := svc.Login(ctx, "asha@example.com", "sowing-season", models.RoleFarmer)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, account.ID, resp.Account.ID)

	claims, err := tokens.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.UserID)
	assert.Equal(t, models.RoleFarmer, claims.Role)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newAccountService()

	_, err := svc.Register(context.Background(), farmerSignup())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), farmerSignup())
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Equal(t, "Email already exists.", apperror.Message(err))
	assert.ErrorIs(t, err, store.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAccountService()

	tests := []struct {
		name   string
		mutate func(r *RegisterRequest)
	}{
		{"farmer without location", func(r *RegisterRequest) { r.Location = "" }},
		{"owner without workshop", func(r *RegisterRequest) { r.Role = models.RoleOwner; r.Address = "Main road" }},
		{"unknown role", func(r *RegisterRequest) { r.Role = "admin" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := farmerSignup()
			tt.mutate(req)
			_, err := svc.Register(context.Background(), req)
			assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
		})
	}
}

func TestRegisterRequestBindingRules(t *testing.T) {
	valid := func() *RegisterRequest {
		r := farmerSignup()
		r.Email = "asha@example.com"
		return r
	}
	assert.NoError(t, binding.Validator.ValidateStruct(valid()))

	tests := []struct {
		name   string
		mutate func(r *RegisterRequest)
	}{
		{"missing name", func(r *RegisterRequest) { r.Name = "" }},
		{"bad email", func(r *RegisterRequest) { r.Email = "not-an-email" }},
		{"short password", func(r *RegisterRequest) { r.Password = "short" }},
		{"long phone", func(r *RegisterRequest) { r.Phone = "98765432109876543210" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			assert.Error(t, binding.Validator.ValidateStruct(req))
		})
	}
}

func TestLoginFailures(t *testing.T) {
	svc, _, _ := newAccountService()
	ctx := context.Background()

	_, err := svc.Register(ctx, farmerSignup())
	require.NoError(t, err)

	_, err = svc.Login(ctx, "asha@example.com", "wrong-password", models.RoleFarmer)
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "asha@example.com", "sowing-season", models.RoleOwner)
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "sowing-season", models.RoleFarmer)
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
}

func TestUpdateProfileIgnoresOwnerFieldsForFarmers(t *testing.T) {
	svc, _, _ := newAccountService()
	ctx := context.Background()

	account, err := svc.Register(ctx, farmerSignup())
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, account.ID, &UpdateProfileRequest{
		Name:         "Asha P.",
		Phone:        "9000000000",
		Location:     "Pune",
		WorkshopName: "Should not stick",
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha P.", updated.Name)
	assert.Equal(t, "Pune", updated.Location)
	assert.Empty(t, updated.WorkshopName)

	assert.Error(t, binding.Validator.ValidateStruct(&UpdateProfileRequest{Name: ""}))
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newAccountService()
	ctx := context.Background()

	account, err := svc.Register(ctx, farmerSignup())
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, account.ID, "wrong", "harvest-time")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	require.NoError(t, svc.ChangePassword(ctx, account.ID, "sowing-season", "harvest-time"))

	_, err = svc.Login(ctx, account.Email, "sowing-season", models.RoleFarmer)
	assert.Error(t, err)
	_, err = svc.Login(ctx, account.Email, "harvest-time", models.RoleFarmer)
	assert.NoError(t, err)
}

func TestSummary(t *testing.T) {
	f := newFixture(t, true)
	accounts := NewAccountService(f.store, nil)
	ctx := context.Background()

	first, err := f.book(t, f.farmer.ID, tomorrow, 3, models.DurationDays)
	require.NoError(t, err)
	_, err = f.transition(first.BookingID, models.BookingStatusApproved)
	require.NoError(t, err)
	_, err = f.transition(first.BookingID, models.BookingStatusCompleted)
	require.NoError(t, err)

	_, err = f.book(t, f.farmer.ID, tomorrow, 1, models.DurationDays)
	require.NoError(t, err)

	owner, err := accounts.Summary(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, owner.Role)
	assert.Equal(t, int64(150000), owner.TotalEarningsCents)
	assert.Equal(t, 1, owner.PendingRequests)
	assert.Equal(t, 1, owner.ListingCount)
	assert.Equal(t, 1, owner.CompletedCount)

	farmer, err := accounts.Summary(ctx, f.farmer.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, farmer.ActiveBookings)
	assert.Equal(t, 1, farmer.PendingCount)
	assert.Equal(t, 1, farmer.CompletedCount)
	assert.Zero(t, farmer.TotalEarningsCents)

	_, err = accounts.Summary(ctx, 4242)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}
