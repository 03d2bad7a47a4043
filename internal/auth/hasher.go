// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Argon2Params are the argon2id cost parameters used for new hashes.
type Argon2Params struct {
	Time    uint32 // iterations
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32 // bytes
	KeyLen  uint32 // bytes
}

// DefaultArgon2Params are the OWASP-recommended argon2id parameters.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// legacyDigestLen is the length of a hex-encoded unsalted SHA-256 digest as
// written by the previous generation of the account store.
const legacyDigestLen = sha256.Size * 2

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on a
	// malformed digest.
	Verify(password, digest string) (bool, error)

	// NeedsUpgrade returns true if the digest should be rehashed with the
	// current algorithm and parameters.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. It also verifies
// legacy unsalted SHA-256 hex digests so imported accounts can log in once
// and be upgraded.
type Argon2idHasher struct {
	params Argon2Params
}

// HasherOption configures an Argon2idHasher.
type HasherOption func(*Argon2idHasher)

// WithArgon2Params overrides the cost parameters used for new hashes.
func WithArgon2Params(p Argon2Params) HasherOption {
	return func(h *Argon2idHasher) {
		h.params = p
	}
}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher(opts ...HasherOption) *Argon2idHasher {
	h := &Argon2idHasher{params: DefaultArgon2Params}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return h.encode(salt, key), nil
}

// DummyDigest returns a digest with the hasher's own cost parameters and an
// all-zero salt and key. Verifying it costs as much as a real digest and
// never succeeds.
func (h *Argon2idHasher) DummyDigest() string {
	return h.encode(make([]byte, h.params.SaltLen), make([]byte, h.params.KeyLen))
}

// encode formats $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>.
func (h *Argon2idHasher) encode(salt, key []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// Verify checks if the password matches the digest.
func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	if isLegacyDigest(digest) {
		return verifyLegacy(password, digest)
	}

	encoded, err := parsePHC(digest)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), encoded.salt,
		encoded.params.Time, encoded.params.Memory, encoded.params.Threads, uint32(len(encoded.key)))

	return subtle.ConstantTimeCompare(computed, encoded.key) == 1, nil
}

// NeedsUpgrade returns true for legacy digests and for argon2id digests
// produced with weaker parameters than the hasher's own.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	if !strings.HasPrefix(digest, "$argon2id$") {
		return true
	}
	encoded, err := parsePHC(digest)
	if err != nil {
		return true
	}
	return encoded.params.Memory < h.params.Memory ||
		encoded.params.Time < h.params.Time ||
		encoded.params.Threads < h.params.Threads
}

type phcHash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func parsePHC(digest string) (*phcHash, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// threads must fit in uint8 to avoid silent truncation
	if threads == 0 || threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if len(key) == 0 || len(key) > 1<<30 {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return &phcHash{
		params: Argon2Params{
			Time:    iterations,
			Memory:  memory,
			Threads: uint8(threads),
			SaltLen: uint32(len(salt)),
			KeyLen:  uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, nil
}

func isLegacyDigest(digest string) bool {
	if len(digest) != legacyDigestLen {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

func verifyLegacy(password, digest string) (bool, error) {
	expected, err := hex.DecodeString(strings.ToLower(digest))
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(sum[:], expected) == 1, nil
}

var (
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ DummyDigester  = (*Argon2idHasher)(nil)
)
