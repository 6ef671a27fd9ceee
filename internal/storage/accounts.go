// Package storage - account CRUD and session bookkeeping
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"linkedin-outreach/internal/models"
)

// AccountStore handles account database operations
type AccountStore struct {
	db *Database
}

// NewAccountStore creates a new AccountStore
func NewAccountStore(db *Database) *AccountStore {
	return &AccountStore{db: db}
}

// Save inserts or updates an account
func (s *AccountStore) Save(a *models.Account) error {
	now := utc(time.Now())
	limits, err := toJSON(a.Limits)
	if err != nil {
		return err
	}

	_, err = s.db.db.Exec(`
		INSERT INTO accounts (id, owner_id, email, region, cookies, user_agent, session_valid, limits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			email = excluded.email,
			region = excluded.region,
			cookies = CASE WHEN excluded.cookies = '' THEN accounts.cookies ELSE excluded.cookies END,
			user_agent = excluded.user_agent,
			session_valid = excluded.session_valid,
			limits = excluded.limits,
			updated_at = excluded.updated_at
	`, a.ID, a.OwnerID, a.Email, a.Region, a.Cookies, a.UserAgent, a.SessionValid, limits, now, now)

	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// Get retrieves an account by ID, returning nil when absent
func (s *AccountStore) Get(id string) (*models.Account, error) {
	a := &models.Account{}
	var limits string
	var lastUsed sql.NullTime

	err := s.db.db.QueryRow(`
		SELECT id, owner_id, email, region, cookies, user_agent, session_valid, limits, last_used_at, created_at, updated_at
		FROM accounts WHERE id = ?
	`, id).Scan(
		&a.ID, &a.OwnerID, &a.Email, &a.Region, &a.Cookies, &a.UserAgent,
		&a.SessionValid, &limits, &lastUsed, &a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := fromJSON(limits, &a.Limits); err != nil {
		return nil, err
	}
	a.LastUsedAt = timePtr(lastUsed)

	return a, nil
}

// MarkUsed records that an action was dispatched for the account
func (s *AccountStore) MarkUsed(id string, at time.Time) error {
	_, err := s.db.db.Exec(`
		UPDATE accounts SET last_used_at = ?, updated_at = ? WHERE id = ?
	`, utc(at), utc(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to mark account used: %w", err)
	}

	return nil
}

// SetSessionValid flags the account session as usable or not
func (s *AccountStore) SetSessionValid(id string, valid bool) error {
	_, err := s.db.db.Exec(`
		UPDATE accounts SET session_valid = ?, updated_at = ? WHERE id = ?
	`, valid, utc(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to update session validity: %w", err)
	}

	return nil
}

// SaveCookies stores the serialized browser cookies of an account
func (s *AccountStore) SaveCookies(id, cookies string) error {
	_, err := s.db.db.Exec(`
		UPDATE accounts SET cookies = ?, session_valid = 1, updated_at = ? WHERE id = ?
	`, cookies, utc(time.Now()), id)

	if err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	return nil
}
