// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password accepted at registration or
// password change.
const MinPasswordLength = 8

// Password policy reasons returned by ValidatePassword.
const (
	ReasonPasswordTooShort    = "Password must be at least 8 characters long"
	ReasonPasswordNoUppercase = "Password must contain at least one uppercase letter"
	ReasonPasswordNoLowercase = "Password must contain at least one lowercase letter"
	ReasonPasswordNoDigit     = "Password must contain at least one number"
	ReasonPasswordValid       = "Password is valid"
)

var emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// All email comparisons and storage use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail reports whether email is syntactically acceptable.
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword checks password against the strength policy.
// Rules are applied in order and the first failure's reason is returned:
// length, uppercase, lowercase, digit. Only ASCII letters and digits satisfy
// the character-class rules.
func ValidatePassword(password string) (bool, string) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return false, ReasonPasswordTooShort
	}
	if !containsRange(password, 'A', 'Z') {
		return false, ReasonPasswordNoUppercase
	}
	if !containsRange(password, 'a', 'z') {
		return false, ReasonPasswordNoLowercase
	}
	if !containsRange(password, '0', '9') {
		return false, ReasonPasswordNoDigit
	}
	return true, ReasonPasswordValid
}

func containsRange(s string, lo, hi rune) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return r >= lo && r <= hi
	})
}
