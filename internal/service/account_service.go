package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental-service/internal/apperror"
	"rental-service/internal/auth"
	"rental-service/internal/models"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

// AccountRepository is the storage used by AccountService. *store.Store implements it.
type AccountRepository interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateAccountProfile(ctx context.Context, a *models.Account) error
	UpdatePasswordHash(ctx context.Context, accountID int64, hash string) error
	CountListingsByOwner(ctx context.Context, ownerID int64) (int, error)
	CountBookingsByStatus(ctx context.Context, f store.BookingFilter) (map[models.BookingStatus]int, error)
	SumCompletedAmount(ctx context.Context, ownerID int64) (int64, error)
}

// TokenIssuer issues access tokens. *auth.TokenManager implements it.
type TokenIssuer interface {
	Generate(account *models.Account) (string, time.Time, error)
}

// AccountService handles registration, login and profiles
type AccountService struct {
	repo   AccountRepository
	tokens TokenIssuer
	logger *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(repo AccountRepository, tokens TokenIssuer) *AccountService {
	return &AccountService{
		repo:   repo,
		tokens: tokens,
		logger: util.GetLogger(),
	}
}

// RegisterRequest represents a sign-up form. Farmers give a location, owners
// a workshop name and address.
type RegisterRequest struct {
	Role         models.Role `json:"-"`
	Name         string      `json:"name" binding:"required,max=100"`
	Email        string      `json:"email" binding:"required,email,max=254"`
	Password     string      `json:"password" binding:"required,min=8,max=72"`
	Phone        string      `json:"phone" binding:"required,max=15"`
	Location     string      `json:"location" binding:"max=100"`
	WorkshopName string      `json:"workshop_name" binding:"max=200"`
	Address      string      `json:"address" binding:"max=500"`
}

func (r *RegisterRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Location = strings.TrimSpace(r.Location)
	r.WorkshopName = strings.TrimSpace(r.WorkshopName)
	r.Address = strings.TrimSpace(r.Address)
}

func (r *RegisterRequest) validate() error {
	if !r.Role.Valid() {
		return apperror.Validation("Invalid role.")
	}
	switch r.Role {
	case models.RoleFarmer:
		if r.Location == "" {
			return apperror.Validation("Location is required for farmers.")
		}
	case models.RoleOwner:
		if r.WorkshopName == "" || r.Address == "" {
			return apperror.Validation("Workshop name and address are required for equipment owners.")
		}
	}
	return nil
}

// Register creates a farmer or owner account
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (account *models.Account, err error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Register")
	defer func() { util.EndSpan(span, err) }()

	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account = &models.Account{
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Name:         req.Name,
		Phone:        req.Phone,
		Location:     req.Location,
	}
	if req.Role == models.RoleOwner {
		account.WorkshopName = req.WorkshopName
		account.Address = req.Address
	}

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, apperror.Wrap(apperror.KindConflict, "Email already exists.", err)
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account registered",
		zap.Int64("account_id", account.ID),
		zap.String("role", string(account.Role)))
	return account, nil
}

// LoginResponse carries an access token for the account
type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Account     *models.Account `json:"account"`
}

// Login checks the credentials and the role the user signed in as
func (s *AccountService) Login(ctx context.Context, email, password string, role models.Role) (resp *LoginResponse, err error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Login")
	defer func() { util.EndSpan(span, err) }()

	account, err := s.repo.GetAccountByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Unauthenticated("Invalid credentials.")
	}
	if err != nil {
		return nil, err
	}

	if !auth.CheckPassword(account.PasswordHash, password) || account.Role != role {
		s.logger.Info("Login refused", zap.Int64("account_id", account.ID))
		return nil, apperror.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Generate(account)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Account:     account,
	}, nil
}

// GetProfile returns the account
func (s *AccountService) GetProfile(ctx context.Context, accountID int64) (*models.Account, error) {
	account, err := s.repo.GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.NotFound("Account not found.")
	}
	return account, err
}

// UpdateProfileRequest holds the editable profile fields
type UpdateProfileRequest struct {
	Name         string `json:"name" binding:"required,max=100"`
	Phone        string `json:"phone" binding:"max=15"`
	Location     string `json:"location" binding:"max=100"`
	WorkshopName string `json:"workshop_name" binding:"max=200"`
	Address      string `json:"address" binding:"max=500"`
}

// UpdateProfile updates contact fields. Workshop name and address are only
// kept for owners.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID int64, req *UpdateProfileRequest) (*models.Account, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.UpdateProfile")
	defer span.End()

	account, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	account.Name = strings.TrimSpace(req.Name)
	account.Phone = strings.TrimSpace(req.Phone)
	account.Location = strings.TrimSpace(req.Location)
	if account.Role == models.RoleOwner {
		account.WorkshopName = strings.TrimSpace(req.WorkshopName)
		account.Address = strings.TrimSpace(req.Address)
	}

	if err := s.repo.UpdateAccountProfile(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return account, nil
}

// ChangePassword replaces the password after checking the current one
func (s *AccountService) ChangePassword(ctx context.Context, accountID int64, oldPassword, newPassword string) error {
	ctx, span := util.StartSpan(ctx, "AccountService.ChangePassword")
	defer span.End()

	account, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(account.PasswordHash, oldPassword) {
		return apperror.Validation("Your old password was entered incorrectly.")
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("Password changed", zap.Int64("account_id", accountID))
	return nil
}

// Summary returns the dashboard figures for the account's role
func (s *AccountService) Summary(ctx context.Context, accountID int64) (*models.AccountSummary, error) {
	ctx, span := util.StartSpan(ctx, "AccountService.Summary")
	defer span.End()

	account, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	summary := &models.AccountSummary{Role: account.Role}

	if account.Role == models.RoleOwner {
		counts, err := s.repo.CountBookingsByStatus(ctx, store.BookingFilter{OwnerID: accountID})
		if err != nil {
			return nil, err
		}
		earnings, err := s.repo.SumCompletedAmount(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to sum earnings: %w", err)
		}
		listings, err := s.repo.CountListingsByOwner(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to count listings: %w", err)
		}

		summary.TotalEarningsCents = earnings
		summary.PendingRequests = counts[models.BookingStatusPending]
		summary.ListingCount = listings
		summary.PendingCount = counts[models.BookingStatusPending]
		summary.ApprovedCount = counts[models.BookingStatusApproved]
		summary.CompletedCount = counts[models.BookingStatusCompleted]
		return summary, nil
	}

	counts, err := s.repo.CountBookingsByStatus(ctx, store.BookingFilter{FarmerID: accountID})
	if err != nil {
		return nil, err
	}
	summary.PendingCount = counts[models.BookingStatusPending]
	summary.ApprovedCount = counts[models.BookingStatusApproved]
	summary.CompletedCount = counts[models.BookingStatusCompleted]
	summary.ActiveBookings = summary.PendingCount + summary.ApprovedCount
	return summary, nil
}
