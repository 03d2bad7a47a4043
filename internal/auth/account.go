// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Tier is an account's subscription level.
type Tier string

// Subscription tiers.
const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierPro:
		return true
	default:
		return false
	}
}

// Account represents a registered user.
type Account struct {
	ID               ulid.ULID
	Email            string
	PasswordHash     string
	FirstName        string
	LastName         string
	SubscriptionTier Tier
	EmailVerified    bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastLogin        *time.Time
}

// NewAccount creates a validated Account with registration defaults:
// free tier, verified email, active. The email is normalized and the names
// are trimmed.
func NewAccount(email, passwordHash, firstName, lastName string, now time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("ACCOUNT_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	return &Account{
		ID:               ulid.Make(),
		Email:            email,
		PasswordHash:     passwordHash,
		FirstName:        strings.TrimSpace(firstName),
		LastName:         strings.TrimSpace(lastName),
		SubscriptionTier: TierFree,
		EmailVerified:    true,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastLogin != nil {
		t := *a.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account.
	// Returns an error wrapping ErrEmailTaken if the email is already in use.
	// Uniqueness is enforced by the store itself, never by a prior lookup.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	// Returns ErrNotFound if no account has the given ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	// Returns ErrNotFound if no account has the given email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Update persists the mutable fields of an existing account:
	// names, password hash and updated_at. last_login is not written.
	// Returns ErrNotFound if the account no longer exists.
	Update(ctx context.Context, account *Account) error

	// RecordLogin sets last_login and touches no other column.
	// Returns ErrNotFound if the account no longer exists.
	RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// ReplacePasswordHash swaps the stored hash for replacement only while it
	// still equals expected. It reports whether the swap happened; a missing
	// account or a hash changed in the meantime yields false.
	ReplacePasswordHash(ctx context.Context, id ulid.ULID, expected, replacement string) (bool, error)
}
