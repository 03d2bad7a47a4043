// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ActivityType tags an audit record.
type ActivityType string

// Activity types recorded by the Service.
const (
	ActivityRegistered      ActivityType = "registered"
	ActivityLogin           ActivityType = "login"
	ActivityLogout          ActivityType = "logout"
	ActivityProfileUpdated  ActivityType = "profile_updated"
	ActivityPasswordChanged ActivityType = "password_changed"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityRegistered, ActivityLogin, ActivityLogout, ActivityProfileUpdated, ActivityPasswordChanged:
		return true
	default:
		return false
	}
}

// Activity is an immutable audit record of an identity action.
type Activity struct {
	ID        ulid.ULID
	AccountID ulid.ULID
	Type      ActivityType
	Metadata  map[string]string
	CreatedAt time.Time
}

// NewActivity creates a validated Activity.
func NewActivity(accountID ulid.ULID, activityType ActivityType, metadata map[string]string, now time.Time) (*Activity, error) {
	if accountID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("ACTIVITY_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if !activityType.Valid() {
		return nil, oops.Code("ACTIVITY_INVALID_TYPE").
			With("type", string(activityType)).
			Errorf("unknown activity type")
	}
	if now.IsZero() {
		now = time.Now()
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &Activity{
		ID:        ulid.Make(),
		AccountID: accountID,
		Type:      activityType,
		Metadata:  md,
		CreatedAt: now.UTC(),
	}, nil
}

// ActivityLog is the append-only store of activities.
type ActivityLog interface {
	// Append records one activity. Records are never modified afterwards.
	Append(ctx context.Context, activity *Activity) error

	// ListByAccount returns up to limit activities for the account,
	// newest first.
	ListByAccount(ctx context.Context, accountID ulid.ULID, limit int) ([]*Activity, error)
}
