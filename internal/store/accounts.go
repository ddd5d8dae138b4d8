package store

import (
	"context"
	"database/sql"
	"fmt"

	"rental-service/internal/models"
)

const accountColumns = `id, email, password_hash, role, name, phone, location, workshop_name, address, created_at, updated_at`

// CreateAccount creates a new account
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO accounts (email, password_hash, role, name, phone, location, workshop_name, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		a.Email, a.PasswordHash, a.Role, a.Name, a.Phone, a.Location, a.WorkshopName, a.Address)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return translateError(err)
	}
	return nil
}

// GetAccountByID retrieves an account by ID
func (s *Store) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	err := s.db.GetContext(ctx, &account, "SELECT "+accountColumns+" FROM accounts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountByEmail retrieves an account by email, case-insensitively
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := s.db.GetContext(ctx, &account, "SELECT "+accountColumns+" FROM accounts WHERE LOWER(email) = LOWER($1)", email)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// UpdateAccountProfile updates contact fields; role and email never change
func (s *Store) UpdateAccountProfile(ctx context.Context, a *models.Account) error {
	err := s.db.GetContext(ctx, &a.UpdatedAt, `
		UPDATE accounts SET name = $1, phone = $2, location = $3, workshop_name = $4, address = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`,
		a.Name, a.Phone, a.Location, a.WorkshopName, a.Address, a.ID)
	return translateError(err)
}

// UpdatePasswordHash replaces an account's password hash
func (s *Store) UpdatePasswordHash(ctx context.Context, accountID int64, hash string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2", hash, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
