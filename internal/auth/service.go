// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kitchenspark/auth")

// Activity list bounds for RecentActivity.
const (
	DefaultActivityLimit = 20
	MaxActivityLimit     = 100
)

// Public messages for authentication failures.
const (
	msgInvalidLogin       = "Invalid email or password"
	msgWrongCurrent       = "Current password is incorrect"
	msgInvalidToken       = "Invalid token"
	msgAccountDeactivated = "Account is deactivated"
	msgUserNotFound       = "User not found"
	msgEmailTaken         = "User with this email already exists"
)

// publicMessageKey is the oops context key carrying the caller-safe message
// of an internal failure.
const publicMessageKey = "public_message"

// dummyPasswordHash is verified against when the email is unknown and the
// hasher cannot produce a dummy digest of its own. It will never match any
// password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// DummyDigester is implemented by hashers that can produce a digest costing
// the same to verify as their real ones but matching no password. Login
// verifies unknown emails against it so response time does not reveal
// whether an account exists.
type DummyDigester interface {
	DummyDigest() string
}

// RegisterInput is the request to create an account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginInput is the request to authenticate.
type LoginInput struct {
	Email    string
	Password string
}

// ProfileUpdate carries the profile fields to change. Nil fields are left
// untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}

// fields returns the names of the supplied fields, sorted.
func (u ProfileUpdate) fields() []string {
	var names []string
	if u.FirstName != nil {
		names = append(names, "first_name")
	}
	if u.LastName != nil {
		names = append(names, "last_name")
	}
	sort.Strings(names)
	return names
}

// PasswordChange is the request to replace an account's password.
type PasswordChange struct {
	CurrentPassword string
	NewPassword     string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token   string
	Account *Account
}

// Service provides account and authentication operations.
//
// The primary account write and its activity record are two independent
// commits. An activity append that fails after the primary write succeeded
// is logged and counted but never reported to the caller.
type Service struct {
	accounts AccountRepository
	activity ActivityLog
	hasher   PasswordHasher
	tokens   TokenIssuer
	logger   *slog.Logger
	now      func() time.Time
	dummy    string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new Service.
func NewService(accounts AccountRepository, activity ActivityLog, hasher PasswordHasher, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("account repository is required")
	}
	if activity == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("activity log is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("token issuer is required")
	}

	s := &Service{
		accounts: accounts,
		activity: activity,
		hasher:   hasher,
		tokens:   tokens,
		logger:   slog.Default(),
		now:      time.Now,
		dummy:    dummyPasswordHash,
	}
	if d, ok := hasher.(DummyDigester); ok {
		s.dummy = d.DummyDigest()
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("logger cannot be nil")
	}
	if s.now == nil {
		return nil, oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("clock cannot be nil")
	}
	return s, nil
}

// Register creates an account and returns a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (result *AuthResult, err error) {
	ctx, finish := s.begin(ctx, OpRegister)
	defer func() { finish(err) }()

	if err := requireFields(
		field{"email", in.Email},
		field{"password", in.Password},
		field{"first_name", in.FirstName},
		field{"last_name", in.LastName},
	); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)
	if !ValidateEmail(email) {
		return nil, oops.Code(CodeInvalidFormat).With("field", "email").Errorf("Invalid email format")
	}
	if ok, reason := ValidatePassword(in.Password); !ok {
		return nil, oops.Code(CodeWeakPassword).With("field", "password").Errorf("%s", reason)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError(OpRegister, "hash password", "Registration failed", err)
	}

	account, err := NewAccount(email, hash, in.FirstName, in.LastName, s.now())
	if err != nil {
		return nil, internalError(OpRegister, "build account", "Registration failed", err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, oops.Code(CodeEmailTaken).With("email", email).Errorf(msgEmailTaken)
		}
		return nil, internalError(OpRegister, "create account", "Registration failed", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("auth.account_id", account.ID.String()))

	s.recordActivity(ctx, account.ID, ActivityRegistered, map[string]string{"registration_method": "email"})

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return nil, internalError(OpRegister, "issue token", "Registration failed", err)
	}

	return &AuthResult{Token: token, Account: account}, nil
}

// Login authenticates by email and password and returns a token.
//
// An unknown email and a wrong password produce the same error, and the
// password is verified in both cases so timing does not leak account
// existence. The deactivation check runs only after the password matched.
func (s *Service) Login(ctx context.Context, in LoginInput) (result *AuthResult, err error) {
	ctx, finish := s.begin(ctx, OpLogin)
	defer func() { finish(err) }()

	if in.Email == "" || in.Password == "" {
		missing := "email"
		if in.Email != "" {
			missing = "password"
		}
		return nil, oops.Code(CodeMissingField).With("field", missing).Errorf("Email and password are required")
	}

	email := NormalizeEmail(in.Email)
	account, lookupErr := s.accounts.GetByEmail(ctx, email)

	targetHash := s.dummy
	switch {
	case lookupErr == nil:
		targetHash = account.PasswordHash
	case errors.Is(lookupErr, ErrNotFound):
		account = nil
	default:
		return nil, internalError(OpLogin, "get account by email", "Login failed", lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(in.Password, targetHash)
	if verifyErr != nil {
		if account == nil {
			return nil, oops.Code(CodeInvalidCredentials).Errorf(msgInvalidLogin)
		}
		return nil, internalError(OpLogin, "verify password", "Login failed", verifyErr)
	}
	if account == nil || !valid {
		return nil, oops.Code(CodeInvalidCredentials).Errorf(msgInvalidLogin)
	}

	if !account.IsActive {
		return nil, oops.Code(CodeAccountDeactivated).
			With("account_id", account.ID.String()).
			Errorf(msgAccountDeactivated)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradePasswordHash(ctx, account, in.Password)
	}

	loginAt := s.now().UTC()
	if err := s.accounts.RecordLogin(ctx, account.ID, loginAt); err != nil {
		return nil, internalError(OpLogin, "record last login", "Login failed", err)
	}
	account.LastLogin = &loginAt

	s.recordActivity(ctx, account.ID, ActivityLogin, map[string]string{"login_method": "email"})

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return nil, internalError(OpLogin, "issue token", "Login failed", err)
	}

	return &AuthResult{Token: token, Account: account}, nil
}

// GetProfile returns the account the token belongs to.
func (s *Service) GetProfile(ctx context.Context, token string) (account *Account, err error) {
	ctx, finish := s.begin(ctx, OpGetProfile)
	defer func() { finish(err) }()

	return s.resolveAccount(ctx, token, OpGetProfile, "Failed to get profile")
}

// UpdateProfile changes the supplied name fields of the token's account.
func (s *Service) UpdateProfile(ctx context.Context, token string, update ProfileUpdate) (account *Account, err error) {
	ctx, finish := s.begin(ctx, OpUpdateProfile)
	defer func() { finish(err) }()

	account, err = s.resolveAccount(ctx, token, OpUpdateProfile, "Failed to update profile")
	if err != nil {
		return nil, err
	}

	if update.FirstName != nil {
		account.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		account.LastName = strings.TrimSpace(*update.LastName)
	}
	account.UpdatedAt = s.now().UTC()

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("account_id", account.ID.String()).Errorf(msgUserNotFound)
		}
		return nil, internalError(OpUpdateProfile, "update account", "Failed to update profile", err)
	}

	s.recordActivity(ctx, account.ID, ActivityProfileUpdated, map[string]string{
		"updated_fields": strings.Join(update.fields(), ","),
	})

	return account, nil
}

// ChangePassword replaces the password of the token's account. A wrong
// current password leaves the stored hash untouched. No new token is issued.
func (s *Service) ChangePassword(ctx context.Context, token string, change PasswordChange) (err error) {
	ctx, finish := s.begin(ctx, OpChangePassword)
	defer func() { finish(err) }()

	account, err := s.resolveAccount(ctx, token, OpChangePassword, "Failed to change password")
	if err != nil {
		return err
	}

	if change.CurrentPassword == "" || change.NewPassword == "" {
		missing := "current_password"
		if change.CurrentPassword != "" {
			missing = "new_password"
		}
		return oops.Code(CodeMissingField).
			With("field", missing).
			Errorf("Current password and new password are required")
	}

	valid, err := s.hasher.Verify(change.CurrentPassword, account.PasswordHash)
	if err != nil {
		return internalError(OpChangePassword, "verify current password", "Failed to change password", err)
	}
	if !valid {
		return oops.Code(CodeInvalidCredentials).
			With("account_id", account.ID.String()).
			Errorf(msgWrongCurrent)
	}

	if ok, reason := ValidatePassword(change.NewPassword); !ok {
		return oops.Code(CodeWeakPassword).With("field", "new_password").Errorf("%s", reason)
	}

	hash, err := s.hasher.Hash(change.NewPassword)
	if err != nil {
		return internalError(OpChangePassword, "hash new password", "Failed to change password", err)
	}

	account.PasswordHash = hash
	account.UpdatedAt = s.now().UTC()
	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeNotFound).With("account_id", account.ID.String()).Errorf(msgUserNotFound)
		}
		return internalError(OpChangePassword, "update account", "Failed to change password", err)
	}

	s.recordActivity(ctx, account.ID, ActivityPasswordChanged, map[string]string{"change_method": "user_initiated"})
	return nil
}

// Logout records a logout for the token's account. Tokens are stateless so
// nothing is invalidated server-side.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	ctx, finish := s.begin(ctx, OpLogout)
	defer func() { finish(err) }()

	accountID, err := s.resolveToken(token)
	if err != nil {
		return err
	}

	s.recordActivity(ctx, accountID, ActivityLogout, map[string]string{"logout_method": "user_initiated"})
	return nil
}

// VerifyToken returns the account for a token that resolves to an existing,
// active account. Anything else is reported as invalid credentials.
func (s *Service) VerifyToken(ctx context.Context, token string) (account *Account, err error) {
	ctx, finish := s.begin(ctx, OpVerifyToken)
	defer func() { finish(err) }()

	accountID, err := s.resolveToken(token)
	if err != nil {
		return nil, err
	}

	account, err = s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeInvalidCredentials).
				With("account_id", accountID.String()).
				With("reason", "account_missing").
				Errorf(msgInvalidToken)
		}
		return nil, internalError(OpVerifyToken, "get account by id", "Token verification failed", err)
	}
	if !account.IsActive {
		return nil, oops.Code(CodeInvalidCredentials).
			With("account_id", accountID.String()).
			With("reason", "account_deactivated").
			Errorf(msgInvalidToken)
	}
	return account, nil
}

// RecentActivity returns the newest activities of the token's account.
// A limit outside 1..MaxActivityLimit is replaced by the nearest bound, and
// zero selects DefaultActivityLimit.
func (s *Service) RecentActivity(ctx context.Context, token string, limit int) (activities []*Activity, err error) {
	ctx, finish := s.begin(ctx, OpRecentActivity)
	defer func() { finish(err) }()

	account, err := s.resolveAccount(ctx, token, OpRecentActivity, "Failed to list activity")
	if err != nil {
		return nil, err
	}

	switch {
	case limit == 0:
		limit = DefaultActivityLimit
	case limit < 0:
		limit = 1
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}

	activities, err = s.activity.ListByAccount(ctx, account.ID, limit)
	if err != nil {
		return nil, internalError(OpRecentActivity, "list activities", "Failed to list activity", err)
	}
	return activities, nil
}

// begin starts a span and returns a function that ends it and records the
// operation metrics.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth."+operation,
		trace.WithAttributes(attribute.String("auth.operation", operation)),
	)
	return ctx, func(err error) {
		if err != nil {
			kind := KindOf(err)
			span.SetAttributes(attribute.String("auth.error_kind", kind.String()))
			if kind == KindInternal {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
		recordOperation(operation, err, time.Since(start))
	}
}

// upgradePasswordHash rehashes password with the current parameters. The
// write only lands if the stored hash is still the one just verified, so a
// password changed concurrently is never overwritten. Failures are logged.
func (s *Service) upgradePasswordHash(ctx context.Context, account *Account, password string) {
	upgraded, err := s.hasher.Hash(password)
	if err == nil {
		var swapped bool
		swapped, err = s.accounts.ReplacePasswordHash(ctx, account.ID, account.PasswordHash, upgraded)
		if err == nil {
			if swapped {
				account.PasswordHash = upgraded
			}
			return
		}
	}
	s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
		"operation", "upgrade password hash",
		"account_id", account.ID.String(),
		"error", err)
}

func (s *Service) resolveToken(token string) (ulid.ULID, error) {
	accountID, err := s.tokens.Resolve(token)
	if err != nil {
		if KindOf(err) == KindInvalidCredentials {
			return ulid.ULID{}, err
		}
		return ulid.ULID{}, oops.Code(CodeInvalidCredentials).With("reason", "unverifiable").Errorf(msgInvalidToken)
	}
	return accountID, nil
}

func (s *Service) resolveAccount(ctx context.Context, token, operation, failure string) (*Account, error) {
	accountID, err := s.resolveToken(token)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeNotFound).With("account_id", accountID.String()).Errorf(msgUserNotFound)
		}
		return nil, internalError(operation, "get account by id", failure, err)
	}
	return account, nil
}

// recordActivity appends an activity after the primary write has committed.
// Failures are logged and counted, never returned.
func (s *Service) recordActivity(ctx context.Context, accountID ulid.ULID, activityType ActivityType, metadata map[string]string) {
	// Detached from request cancellation: the primary write already happened.
	ctx = context.WithoutCancel(ctx)

	activity, err := NewActivity(accountID, activityType, metadata, s.now())
	if err == nil {
		err = s.activity.Append(ctx, activity)
	}
	if err != nil {
		recordActivityAppendFailure(activityType)
		s.logger.WarnContext(ctx, "best-effort activity append failed",
			"operation", "append activity",
			"activity_type", string(activityType),
			"account_id", accountID.String(),
			"error", err)
	}
}

type field struct {
	name  string
	value string
}

func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.value == "" {
			return oops.Code(CodeMissingField).With("field", f.name).Errorf("%s is required", f.name)
		}
	}
	return nil
}

func internalError(operation, step, public string, err error) error {
	return oops.Code(CodeInternal).
		With("operation", operation).
		With("step", step).
		With(publicMessageKey, public).
		Wrap(err)
}

// PublicMessage returns a message for err that is safe to show to an end
// user. Internal failures never expose their cause.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) != KindInternal {
		return err.Error()
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg, ok := oopsErr.Context()[publicMessageKey].(string); ok && msg != "" {
			return msg
		}
	}
	return "Internal server error"
}
