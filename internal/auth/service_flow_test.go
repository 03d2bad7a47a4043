// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenspark/kitchenspark/internal/auth"
	"github.com/kitchenspark/kitchenspark/internal/auth/memory"
	"github.com/kitchenspark/kitchenspark/pkg/errutil"
)

type flowFixture struct {
	svc      *auth.Service
	accounts *memory.AccountStore
	activity *memory.ActivityStore
	tokens   *auth.JWTIssuer
	logs     *bytes.Buffer
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	tokens, err := auth.NewJWTIssuer(testSecret)
	require.NoError(t, err)

	f := &flowFixture{
		accounts: memory.NewAccountStore(),
		activity: memory.NewActivityStore(),
		tokens:   tokens,
		logs:     &bytes.Buffer{},
	}
	f.svc, err = auth.NewService(f.accounts, f.activity, newTestHasher(), tokens,
		auth.WithLogger(slog.New(slog.NewJSONHandler(f.logs, nil))))
	require.NoError(t, err)
	return f
}

func (f *flowFixture) register(t *testing.T, email, password string) *auth.AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), auth.RegisterInput{
		Email: email, Password: password, FirstName: "A", LastName: "B",
	})
	require.NoError(t, err)
	return result
}

func TestFlow_RegisterThenLoginResolvesSameAccount(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	pairs := []struct{ email, password string }{
		{"a@b.com", "Abcdef12"},
		{"Mixed.Case@Example.ORG", "Valid123"},
		{"  padded@example.com  ", "Passw0rdX"},
	}
	for _, p := range pairs {
		t.Run(p.email, func(t *testing.T) {
			registered := f.register(t, p.email, p.password)

			loggedIn, err := f.svc.Login(ctx, auth.LoginInput{Email: p.email, Password: p.password})
			require.NoError(t, err)

			id, err := f.tokens.Resolve(loggedIn.Token)
			require.NoError(t, err)
			assert.Equal(t, registered.Account.ID, id)

			id, err = f.tokens.Resolve(registered.Token)
			require.NoError(t, err)
			assert.Equal(t, registered.Account.ID, id)
		})
	}
}

func TestFlow_RegisterNormalizedEmailCollides(t *testing.T) {
	f := newFlowFixture(t)
	f.register(t, "foo@bar.com", "Valid123")

	_, err := f.svc.Register(context.Background(), auth.RegisterInput{
		Email: " Foo@Bar.com ", Password: "Valid123", FirstName: "X", LastName: "Y",
	})
	require.Error(t, err)
	assert.Equal(t, auth.KindEmailTaken, auth.KindOf(err))
}

func TestFlow_ConcurrentRegistrationOneWinner(t *testing.T) {
	f := newFlowFixture(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Register(context.Background(), auth.RegisterInput{
				Email: "race@example.com", Password: "Valid123", FirstName: "A", LastName: "B",
			})
		}()
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch auth.KindOf(err) {
		case auth.KindNone:
			ok++
		case auth.KindEmailTaken:
			taken++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, taken)
}

func TestFlow_LoginDoesNotLeakUserExistence(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.register(t, "exists@example.com", "Valid123")

	_, wrongPassword := f.svc.Login(ctx, auth.LoginInput{Email: "exists@example.com", Password: "Wrong1234"})
	_, unknownEmail := f.svc.Login(ctx, auth.LoginInput{Email: "missing@example.com", Password: "Wrong1234"})

	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, auth.KindOf(wrongPassword), auth.KindOf(unknownEmail))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, auth.PublicMessage(wrongPassword), auth.PublicMessage(unknownEmail))
}

func TestFlow_DeactivatedAccount(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	registered := f.register(t, "ada@example.com", "Valid123")
	require.NoError(t, f.accounts.SetActive(ctx, registered.Account.ID, false))

	_, err := f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "Valid123"})
	assert.Equal(t, auth.KindAccountDeactivated, auth.KindOf(err))

	_, err = f.svc.VerifyToken(ctx, registered.Token)
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

	// Profile reads do not check the active flag.
	_, err = f.svc.GetProfile(ctx, registered.Token)
	assert.NoError(t, err)
}

func TestFlow_ChangePasswordWrongCurrentKeepsHash(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	registered := f.register(t, "ada@example.com", "Valid123")

	before, err := f.accounts.GetByID(ctx, registered.Account.ID)
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, registered.Token, auth.PasswordChange{
		CurrentPassword: "NotMine12", NewPassword: "Another12",
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	after, err := f.accounts.GetByID(ctx, registered.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)

	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "Valid123"})
	require.NoError(t, err, "old password still works")
}

func TestFlow_ChangePasswordSuccess(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	registered := f.register(t, "ada@example.com", "Valid123")

	require.NoError(t, f.svc.ChangePassword(ctx, registered.Token, auth.PasswordChange{
		CurrentPassword: "Valid123", NewPassword: "Another12",
	}))

	_, err := f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "Valid123"})
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "Another12"})
	require.NoError(t, err)

	// The original token keeps working; no token is reissued or revoked.
	_, err = f.svc.GetProfile(ctx, registered.Token)
	require.NoError(t, err)
}

func TestFlow_RegisterThenUpdateProfile(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, auth.RegisterInput{
		Email: "a@b.com", Password: "Abcdef12", FirstName: "A", LastName: "B",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.TierFree, registered.Account.SubscriptionTier)
	assert.True(t, registered.Account.EmailVerified)
	assert.True(t, registered.Account.IsActive)

	first := "C"
	updated, err := f.svc.UpdateProfile(ctx, registered.Token, auth.ProfileUpdate{FirstName: &first})
	require.NoError(t, err)
	assert.Equal(t, "C", updated.FirstName)
	assert.Equal(t, "B", updated.LastName)

	profile, err := f.svc.GetProfile(ctx, registered.Token)
	require.NoError(t, err)
	assert.Equal(t, "C", profile.FirstName)
	assert.Equal(t, "B", profile.LastName)
	assert.False(t, profile.UpdatedAt.Before(profile.CreatedAt))
}

func TestFlow_ConcurrentProfileUpdatesLastWriterWins(t *testing.T) {
	// No optimistic concurrency: two sessions updating the same account
	// both succeed and whichever write lands last is kept.
	f := newFlowFixture(t)
	ctx := context.Background()
	registered := f.register(t, "ada@example.com", "Valid123")

	first, second := "First", "Second"
	_, err := f.svc.UpdateProfile(ctx, registered.Token, auth.ProfileUpdate{FirstName: &first})
	require.NoError(t, err)
	_, err = f.svc.UpdateProfile(ctx, registered.Token, auth.ProfileUpdate{FirstName: &second})
	require.NoError(t, err)

	profile, err := f.svc.GetProfile(ctx, registered.Token)
	require.NoError(t, err)
	assert.Equal(t, "Second", profile.FirstName)
}

func TestFlow_ActivityTrail(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	registered := f.register(t, "ada@example.com", "Valid123")

	_, err := f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "Valid123"})
	require.NoError(t, err)
	last := "Byron"
	_, err = f.svc.UpdateProfile(ctx, registered.Token, auth.ProfileUpdate{LastName: &last})
	require.NoError(t, err)
	require.NoError(t, f.svc.ChangePassword(ctx, registered.Token, auth.PasswordChange{
		CurrentPassword: "Valid123", NewPassword: "Another12",
	}))
	require.NoError(t, f.svc.Logout(ctx, registered.Token))

	activities, err := f.svc.RecentActivity(ctx, registered.Token, 0)
	require.NoError(t, err)

	var types []auth.ActivityType
	for _, a := range activities {
		types = append(types, a.Type)
	}
	assert.Equal(t, []auth.ActivityType{
		auth.ActivityLogout,
		auth.ActivityPasswordChanged,
		auth.ActivityProfileUpdated,
		auth.ActivityLogin,
		auth.ActivityRegistered,
	}, types)
	assert.Equal(t, "last_name", activities[2].Metadata["updated_fields"])
}

func TestFlow_ActivityFailureIsLoggedNotSurfaced(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.activity.FailAppendsWith(func(*auth.Activity) error { return errors.New("activity table locked") })

	before := testutil.ToFloat64(auth.ActivityAppendFailures.WithLabelValues(string(auth.ActivityRegistered)))

	registered := f.register(t, "ada@example.com", "Valid123")
	assert.NotEmpty(t, registered.Token)

	after := testutil.ToFloat64(auth.ActivityAppendFailures.WithLabelValues(string(auth.ActivityRegistered)))
	assert.InDelta(t, 1, after-before, 0.0001)

	line := strings.TrimSpace(f.logs.String())
	require.NotEmpty(t, line)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry), "log: %s", line)
	assert.Equal(t, "WARN", entry["level"])
	assert.Contains(t, entry["msg"], "best-effort")
	assert.Equal(t, "append activity", entry["operation"])
	assert.Equal(t, "registered", entry["activity_type"])
	assert.Equal(t, registered.Account.ID.String(), entry["account_id"])

	// Primary write is committed.
	_, err := f.accounts.GetByID(ctx, registered.Account.ID)
	require.NoError(t, err)
}

func TestFlow_LegacyDigestUpgradedOnLogin(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	account, err := auth.NewAccount("legacy@example.com", legacyDigest("Valid123"), "Old", "Timer", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.accounts.Create(ctx, account))

	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "legacy@example.com", Password: "Valid123"})
	require.NoError(t, err)

	stored, err := f.accounts.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	require.NotNil(t, stored.LastLogin)

	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "legacy@example.com", Password: "Valid123"})
	require.NoError(t, err, "upgraded hash still verifies")
}

// pausingHasher blocks its first Verify call until release is closed.
type pausingHasher struct {
	auth.PasswordHasher
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newPausingHasher(inner auth.PasswordHasher) *pausingHasher {
	return &pausingHasher{
		PasswordHasher: inner,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (h *pausingHasher) Verify(password, digest string) (bool, error) {
	h.once.Do(func() {
		close(h.entered)
		<-h.release
	})
	return h.PasswordHasher.Verify(password, digest) //nolint:wrapcheck // test passthrough
}

// loginDuringPasswordChange starts a login with oldPassword, lets a password
// change to newPassword commit while the login is verifying, then finishes
// the login.
func loginDuringPasswordChange(t *testing.T, f *flowFixture, email, token, oldPassword, newPassword string) {
	t.Helper()
	ctx := context.Background()

	paused := newPausingHasher(newTestHasher())
	loginSvc, err := auth.NewService(f.accounts, f.activity, paused, f.tokens)
	require.NoError(t, err)

	loginErr := make(chan error, 1)
	go func() {
		_, err := loginSvc.Login(ctx, auth.LoginInput{Email: email, Password: oldPassword})
		loginErr <- err
	}()

	<-paused.entered
	require.NoError(t, f.svc.ChangePassword(ctx, token, auth.PasswordChange{
		CurrentPassword: oldPassword, NewPassword: newPassword,
	}))
	close(paused.release)
	require.NoError(t, <-loginErr, "login verified against the hash it read")
}

func TestFlow_LoginOverlappingPasswordChangeKeepsNewPassword(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	registered := f.register(t, "ada@example.com", "OldPass12")

	loginDuringPasswordChange(t, f, "ada@example.com", registered.Token, "OldPass12", "NewPass34")

	_, err := f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "NewPass34"})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "OldPass12"})
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))

	stored, err := f.accounts.GetByID(ctx, registered.Account.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
}

func TestFlow_HashUpgradeDoesNotOverwriteConcurrentPasswordChange(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	account, err := auth.NewAccount("legacy@example.com", legacyDigest("OldPass12"), "Old", "Timer", time.Now())
	require.NoError(t, err)
	require.NoError(t, f.accounts.Create(ctx, account))
	token, err := f.tokens.Issue(account.ID)
	require.NoError(t, err)

	loginDuringPasswordChange(t, f, "legacy@example.com", token, "OldPass12", "NewPass34")

	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "legacy@example.com", Password: "NewPass34"})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "legacy@example.com", Password: "OldPass12"})
	assert.Equal(t, auth.KindInvalidCredentials, auth.KindOf(err))
}

func TestFlow_LoginLeavesProfileUntouched(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	registered := f.register(t, "ada@example.com", "Valid123")

	before, err := f.accounts.GetByID(ctx, registered.Account.ID)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, auth.LoginInput{Email: "ada@example.com", Password: "Valid123"})
	require.NoError(t, err)

	after, err := f.accounts.GetByID(ctx, registered.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash)
	assert.Equal(t, before.FirstName, after.FirstName)
	assert.Equal(t, before.LastName, after.LastName)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	require.NotNil(t, after.LastLogin)
}

func TestFlow_OperationMetrics(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	before := testutil.ToFloat64(auth.OperationsTotal.WithLabelValues(auth.OpLogin, "invalid_credentials"))
	_, err := f.svc.Login(ctx, auth.LoginInput{Email: "nobody@example.com", Password: "Valid123"})
	require.Error(t, err)
	after := testutil.ToFloat64(auth.OperationsTotal.WithLabelValues(auth.OpLogin, "invalid_credentials"))
	assert.InDelta(t, 1, after-before, 0.0001)
}
