package service

import (
	"context"
	"errors"
	"time"

	"rental-service/internal/apperror"
	"rental-service/internal/models"
	"rental-service/internal/store"
)

// Locker takes short-lived advisory locks. *redisclient.Client implements it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher publishes booking lifecycle events. *broker.EventPublisher implements it.
type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error
	PublishBookingStatusChanged(ctx context.Context, event *models.BookingStatusChangedEvent) error
}

type accountReader interface {
	GetAccountByID(ctx context.Context, id int64) (*models.Account, error)
}

// requireRole loads the acting account and checks its role
func requireRole(ctx context.Context, accounts accountReader, accountID int64, role models.Role, denied string) (*models.Account, error) {
	account, err := accounts.GetAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperror.Unauthenticated("Account not found.")
	}
	if err != nil {
		return nil, err
	}
	if account.Role != role {
		return nil, apperror.Forbidden(denied)
	}
	return account, nil
}

func parseStatusFilter(value string) (models.BookingStatus, error) {
	if value == "" {
		return "", nil
	}
	status := models.BookingStatus(value)
	if !status.Valid() {
		return "", apperror.Validation("Invalid status.")
	}
	return status, nil
}
