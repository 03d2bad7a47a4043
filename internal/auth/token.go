// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTokenIssuer is the iss claim used when none is configured.
const DefaultTokenIssuer = "kitchenspark"

// TokenIssuer issues and resolves bearer tokens bound to an account.
type TokenIssuer interface {
	// Issue produces a signed bearer token for the account.
	Issue(accountID ulid.ULID) (string, error)

	// Resolve returns the account ID carried by a token.
	// Malformed, unsigned, wrongly signed, expired, or foreign tokens fail
	// with code AUTH_INVALID_CREDENTIALS.
	Resolve(token string) (ulid.ULID, error)
}

// JWTIssuer implements TokenIssuer with HS256-signed JWTs. The account ID
// is carried in the sub claim.
type JWTIssuer struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

// TokenOption configures a JWTIssuer.
type TokenOption func(*JWTIssuer)

// WithTokenLifetime sets how long issued tokens stay valid.
// Zero means tokens never expire.
func WithTokenLifetime(d time.Duration) TokenOption {
	return func(j *JWTIssuer) {
		j.lifetime = d
	}
}

// WithTokenIssuer sets the iss claim written and required on resolve.
func WithTokenIssuer(issuer string) TokenOption {
	return func(j *JWTIssuer) {
		j.issuer = issuer
	}
}

// WithTokenClock overrides the time source, for tests.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(j *JWTIssuer) {
		j.now = now
	}
}

// NewJWTIssuer creates a JWTIssuer signing with secret.
func NewJWTIssuer(secret []byte, opts ...TokenOption) (*JWTIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("TOKEN_INVALID_SECRET").Errorf("token secret cannot be empty")
	}
	j := &JWTIssuer{
		secret: secret,
		issuer: DefaultTokenIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.lifetime < 0 {
		return nil, oops.Code("TOKEN_INVALID_LIFETIME").
			With("lifetime", j.lifetime.String()).
			Errorf("token lifetime cannot be negative")
	}
	return j, nil
}

// Lifetime returns the configured token lifetime; zero means never.
func (j *JWTIssuer) Lifetime() time.Duration {
	return j.lifetime
}

// Issue produces a signed token for accountID.
func (j *JWTIssuer) Issue(accountID ulid.ULID) (string, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return "", oops.Code("TOKEN_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}

	now := j.now()
	claims := jwt.RegisteredClaims{
		Issuer:   j.issuer,
		Subject:  accountID.String(),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if j.lifetime > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(j.lifetime))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Resolve validates token and returns the account ID it carries.
func (j *JWTIssuer) Resolve(token string) (ulid.ULID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ulid.ULID{}, invalidToken("empty")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ulid.ULID{}, invalidToken("expired")
		}
		return ulid.ULID{}, invalidToken("unverifiable")
	}
	if !parsed.Valid {
		return ulid.ULID{}, invalidToken("unverifiable")
	}

	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, invalidToken("bad_subject")
	}
	return id, nil
}

func invalidToken(reason string) error {
	return oops.Code(CodeInvalidCredentials).With("reason", reason).Errorf("Invalid token")
}
