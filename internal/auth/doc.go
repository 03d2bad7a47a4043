// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

// Package auth provides account registration, authentication, and bearer
// token handling for KitchenSpark.
//
// # Domain Types
//
// Accounts should be created with NewAccount, which normalizes the email
// address and applies the registration defaults (free tier, verified,
// active). Activities should be created with NewActivity. Repository
// implementations receive pre-validated values from these constructors.
//
// # Collaborators
//
// The Service is assembled from four interfaces so storage and token
// handling can be swapped without touching the control flow:
//   - AccountRepository - account persistence with unique normalized email
//   - ActivityLog - append-only audit trail of identity actions
//   - PasswordHasher - argon2id hashing with legacy digest verification
//   - TokenIssuer - bearer token issuance and resolution
//
// # Errors
//
// Every error returned by the Service carries a samber/oops code. KindOf
// classifies an error into one of the Kind values so transports can map it
// onto their own status model without string matching.
package auth
