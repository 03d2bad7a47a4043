// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/kitchenspark/kitchenspark/internal/auth"
)

// emailUniqueConstraint is the unique index guarding accounts.email.
const emailUniqueConstraint = "accounts_email_key"

const selectAccountColumns = `
	SELECT id, email, password_hash, first_name, last_name,
	       subscription_tier, email_verified, is_active,
	       created_at, updated_at, last_login
	FROM accounts`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db querier
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores a new account. The unique index on email makes concurrent
// registrations for the same address race safely: exactly one insert wins.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (
			id, email, password_hash, first_name, last_name,
			subscription_tier, email_verified, is_active,
			created_at, updated_at, last_login
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		account.ID.String(),
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		string(account.SubscriptionTier),
		account.EmailVerified,
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
		account.LastLogin,
	)
	if isEmailConflict(err) {
		return oops.Code("ACCOUNT_EMAIL_TAKEN").
			With("email", account.Email).
			Wrap(auth.ErrEmailTaken)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, selectAccountColumns+` WHERE id = $1`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by its normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, selectAccountColumns+` WHERE email = $1`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").
			With("operation", "get account by email").
			With("email", email).
			Wrap(err)
	}
	return account, nil
}

// Update persists names, password hash and updated_at.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET
			first_name = $2,
			last_name = $3,
			password_hash = $4,
			updated_at = $5
		WHERE id = $1
	`,
		account.ID.String(),
		account.FirstName,
		account.LastName,
		account.PasswordHash,
		account.UpdatedAt,
	)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update account").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", account.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordLogin sets last_login only.
func (r *AccountRepository) RecordLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET last_login = $2 WHERE id = $1`, id.String(), at)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "record last login").
			With("account_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ReplacePasswordHash swaps password_hash in a single conditional statement,
// so a hash changed since it was read is left alone.
func (r *AccountRepository) ReplacePasswordHash(ctx context.Context, id ulid.ULID, expected, replacement string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $3 WHERE id = $1 AND password_hash = $2
	`, id.String(), expected, replacement)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "replace password hash").
			With("account_id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

// SetActive activates or deactivates an account.
func (r *AccountRepository) SetActive(ctx context.Context, id ulid.ULID, active bool) error {
	result, err := r.db.Exec(ctx, `
		UPDATE accounts SET is_active = $2, updated_at = now() WHERE id = $1
	`, id.String(), active)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "set account active").
			With("account_id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func isEmailConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailUniqueConstraint
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		account   auth.Account
		idStr     string
		tier      string
		lastLogin *time.Time
	)
	err := row.Scan(
		&idStr,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&tier,
		&account.EmailVerified,
		&account.IsActive,
		&account.CreatedAt,
		&account.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers need pgx.ErrNoRows intact
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse account id").With("id", idStr).Wrap(err)
	}
	account.ID = id
	account.SubscriptionTier = auth.Tier(tier)
	if lastLogin != nil {
		t := lastLogin.UTC()
		account.LastLogin = &t
	}
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
