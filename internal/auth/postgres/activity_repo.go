// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package postgres

import (
	"context"
	"encoding/json"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/kitchenspark/kitchenspark/internal/auth"
)

// ActivityRepository implements auth.ActivityLog using PostgreSQL.
// Rows are insert-only; the table rejects updates.
type ActivityRepository struct {
	db querier
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db querier) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append records one activity.
func (r *ActivityRepository) Append(ctx context.Context, activity *auth.Activity) error {
	metadata := activity.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	mdJSON, err := json.Marshal(metadata)
	if err != nil {
		return oops.Code("ACTIVITY_APPEND_FAILED").
			With("operation", "marshal metadata").
			Wrap(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO account_activities (id, account_id, activity_type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		activity.ID.String(),
		activity.AccountID.String(),
		string(activity.Type),
		mdJSON,
		activity.CreatedAt,
	)
	if err != nil {
		return oops.Code("ACTIVITY_APPEND_FAILED").
			With("operation", "insert activity").
			With("account_id", activity.AccountID.String()).
			With("activity_type", string(activity.Type)).
			Wrap(err)
	}
	return nil
}

// ListByAccount returns up to limit activities for the account, newest first.
func (r *ActivityRepository) ListByAccount(ctx context.Context, accountID ulid.ULID, limit int) ([]*auth.Activity, error) {
	if limit <= 0 {
		return nil, oops.Code("ACTIVITY_INVALID_LIMIT").
			With("limit", limit).
			Errorf("limit must be positive")
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, activity_type, metadata, created_at
		FROM account_activities
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID.String(), limit)
	if err != nil {
		return nil, oops.Code("ACTIVITY_LIST_FAILED").
			With("operation", "list activities").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	defer rows.Close()

	activities := make([]*auth.Activity, 0, limit)
	for rows.Next() {
		var (
			idStr, accountStr, activityType string
			mdJSON                          []byte
			activity                        auth.Activity
		)
		if err := rows.Scan(&idStr, &accountStr, &activityType, &mdJSON, &activity.CreatedAt); err != nil {
			return nil, oops.Code("ACTIVITY_LIST_FAILED").
				With("operation", "scan activity row").
				Wrap(err)
		}
		if activity.ID, err = ulid.Parse(idStr); err != nil {
			return nil, oops.Code("ACTIVITY_LIST_FAILED").
				With("operation", "parse activity id").
				With("id", idStr).
				Wrap(err)
		}
		if activity.AccountID, err = ulid.Parse(accountStr); err != nil {
			return nil, oops.Code("ACTIVITY_LIST_FAILED").
				With("operation", "parse account id").
				With("account_id", accountStr).
				Wrap(err)
		}
		activity.Metadata = map[string]string{}
		if len(mdJSON) > 0 {
			if err := json.Unmarshal(mdJSON, &activity.Metadata); err != nil {
				return nil, oops.Code("ACTIVITY_LIST_FAILED").
					With("operation", "unmarshal metadata").
					With("id", idStr).
					Wrap(err)
			}
		}
		activity.Type = auth.ActivityType(activityType)
		activity.CreatedAt = activity.CreatedAt.UTC()
		activities = append(activities, &activity)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACTIVITY_LIST_FAILED").
			With("operation", "iterate activities").
			Wrap(err)
	}
	return activities, nil
}

var _ auth.ActivityLog = (*ActivityRepository)(nil)
