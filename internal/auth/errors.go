// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned by AccountRepository.Create when the normalized
// email already belongs to an account.
var ErrEmailTaken = errors.New("email already registered")

// Error codes attached to errors returned by the Service.
const (
	CodeMissingField       = "AUTH_MISSING_FIELD"
	CodeInvalidFormat      = "AUTH_INVALID_FORMAT"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
	CodeEmailTaken         = "AUTH_EMAIL_TAKEN"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountDeactivated = "AUTH_ACCOUNT_DEACTIVATED"
	CodeNotFound           = "AUTH_NOT_FOUND"
	CodeInternal           = "AUTH_INTERNAL"
)

// Kind classifies a Service error.
type Kind int

// Error kinds, in the order they are usually checked.
const (
	KindNone Kind = iota
	KindMissingField
	KindInvalidFormat
	KindWeakPassword
	KindEmailTaken
	KindInvalidCredentials
	KindAccountDeactivated
	KindNotFound
	KindInternal
)

var kindCodes = map[Kind]string{
	KindMissingField:       CodeMissingField,
	KindInvalidFormat:      CodeInvalidFormat,
	KindWeakPassword:       CodeWeakPassword,
	KindEmailTaken:         CodeEmailTaken,
	KindInvalidCredentials: CodeInvalidCredentials,
	KindAccountDeactivated: CodeAccountDeactivated,
	KindNotFound:           CodeNotFound,
	KindInternal:           CodeInternal,
}

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindMissingField:       "missing_field",
	KindInvalidFormat:      "invalid_format",
	KindWeakPassword:       "weak_password",
	KindEmailTaken:         "email_taken",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountDeactivated: "account_deactivated",
	KindNotFound:           "not_found",
	KindInternal:           "internal",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Code returns the oops code used for errors of this kind.
func (k Kind) Code() string {
	return kindCodes[k]
}

// IsClientError reports whether the kind describes a problem with the
// caller's input rather than with authentication or the server.
func (k Kind) IsClientError() bool {
	switch k {
	case KindMissingField, KindInvalidFormat, KindWeakPassword, KindEmailTaken:
		return true
	default:
		return false
	}
}

// KindOf classifies err by its oops code. A nil error is KindNone; an
// error without one of the Code* values is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	for kind, code := range kindCodes {
		if oopsErr.Code() == code {
			return kind
		}
	}
	return KindInternal
}
