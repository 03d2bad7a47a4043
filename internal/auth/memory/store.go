// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

// Package memory provides in-memory implementations of the auth
// repositories. They are used by tests and by the "memory" storage driver.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/kitchenspark/kitchenspark/internal/auth"
)

// AccountStore is an in-memory auth.AccountRepository.
// Stored accounts are copied on every read and write so callers never share
// state with the store.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.Account
	byEmail map[string]ulid.ULID
}

// NewAccountStore creates an empty account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[ulid.ULID]*auth.Account),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new account. The email check and insert happen under one
// lock so concurrent registrations of the same email cannot both succeed.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	email := auth.NormalizeEmail(account.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[email]; taken {
		return oops.Code("ACCOUNT_EMAIL_TAKEN").With("email", email).Wrap(auth.ErrEmailTaken)
	}
	if _, exists := s.byID[account.ID]; exists {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("account_id", account.ID.String()).
			Errorf("duplicate account id")
	}

	stored := account.Clone()
	stored.Email = email
	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return nil
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return account.Clone(), nil
}

// GetByEmail retrieves an account by normalized email.
func (s *AccountStore) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	email = auth.NormalizeEmail(email)

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return s.byID[id].Clone(), nil
}

// Update persists names, password hash and updated_at. Email, tier, flags
// and last login are owned elsewhere and are not changed.
func (s *AccountStore) Update(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[account.ID]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", account.ID.String()).Wrap(auth.ErrNotFound)
	}

	updated := stored.Clone()
	updated.FirstName = account.FirstName
	updated.LastName = account.LastName
	updated.PasswordHash = account.PasswordHash
	updated.UpdatedAt = account.UpdatedAt
	s.byID[account.ID] = updated
	return nil
}

// RecordLogin sets the last login time and nothing else.
func (s *AccountStore) RecordLogin(_ context.Context, id ulid.ULID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	updated := stored.Clone()
	at = at.UTC()
	updated.LastLogin = &at
	s.byID[id] = updated
	return nil
}

// ReplacePasswordHash swaps the hash only while it still equals expected.
func (s *AccountStore) ReplacePasswordHash(_ context.Context, id ulid.ULID, expected, replacement string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok || stored.PasswordHash != expected {
		return false, nil
	}
	updated := stored.Clone()
	updated.PasswordHash = replacement
	s.byID[id] = updated
	return true, nil
}

// SetActive flips the active flag. Deactivation is owned by operators, not by
// the auth service, so this is not part of auth.AccountRepository.
func (s *AccountStore) SetActive(_ context.Context, id ulid.ULID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	stored.IsActive = active
	return nil
}

// ActivityStore is an in-memory auth.ActivityLog.
type ActivityStore struct {
	mu         sync.RWMutex
	byAccount  map[ulid.ULID][]*auth.Activity
	appendHook func(*auth.Activity) error
}

// NewActivityStore creates an empty activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		byAccount: make(map[ulid.ULID][]*auth.Activity),
	}
}

// FailAppendsWith makes subsequent appends return the error produced by fn.
// A nil fn restores normal behaviour. Intended for tests exercising the
// best-effort logging path.
func (s *ActivityStore) FailAppendsWith(fn func(*auth.Activity) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendHook = fn
}

// Append records an activity.
func (s *ActivityStore) Append(_ context.Context, activity *auth.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appendHook != nil {
		if err := s.appendHook(activity); err != nil {
			return oops.Code("ACTIVITY_APPEND_FAILED").With("type", string(activity.Type)).Wrap(err)
		}
	}

	stored := *activity
	stored.Metadata = maps.Clone(activity.Metadata)
	s.byAccount[activity.AccountID] = append(s.byAccount[activity.AccountID], &stored)
	return nil
}

// ListByAccount returns up to limit activities for the account, newest first.
func (s *ActivityStore) ListByAccount(_ context.Context, accountID ulid.ULID, limit int) ([]*auth.Activity, error) {
	if limit <= 0 {
		return nil, oops.Code("ACTIVITY_INVALID_LIMIT").With("limit", limit).Errorf("limit must be positive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.byAccount[accountID]
	out := make([]*auth.Activity, 0, min(limit, len(records)))
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		c := *records[i]
		c.Metadata = maps.Clone(records[i].Metadata)
		out = append(out, &c)
	}
	return out, nil
}

// Compile-time interface checks.
var (
	_ auth.AccountRepository = (*AccountStore)(nil)
	_ auth.ActivityLog       = (*ActivityStore)(nil)
)
