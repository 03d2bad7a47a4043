// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package httpapi

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/kitchenspark/kitchenspark/internal/auth"
	"github.com/kitchenspark/kitchenspark/pkg/errutil"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type accountView struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	SubscriptionTier string     `json:"subscription_tier"`
	EmailVerified    bool       `json:"email_verified"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastLogin        *time.Time `json:"last_login"`
}

func newAccountView(a *auth.Account) accountView {
	return accountView{
		ID:               a.ID.String(),
		Email:            a.Email,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		SubscriptionTier: string(a.SubscriptionTier),
		EmailVerified:    a.EmailVerified,
		IsActive:         a.IsActive,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
		LastLogin:        a.LastLogin,
	}
}

type activityView struct {
	ID        string            `json:"id"`
	Type      string            `json:"activity_type"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func newActivityViews(activities []*auth.Activity) []activityView {
	views := make([]activityView, 0, len(activities))
	for _, a := range activities {
		views = append(views, activityView{
			ID:        a.ID.String(),
			Type:      string(a.Type),
			Metadata:  a.Metadata,
			CreatedAt: a.CreatedAt,
		})
	}
	return views
}

type authResponse struct {
	Message     string      `json:"message"`
	AccessToken string      `json:"access_token"`
	User        accountView `json:"user"`
}

type userResponse struct {
	Message string      `json:"message,omitempty"`
	User    accountView `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type verifyResponse struct {
	Valid bool        `json:"valid"`
	User  accountView `json:"user"`
}

type activityResponse struct {
	Activities []activityView `json:"activities"`
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	payload, err := json.Marshal(body)
	if err != nil {
		status = fasthttp.StatusInternalServerError
		payload = []byte(`{"error":"Internal server error","code":"` + auth.CodeInternal + `"}`)
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(payload)
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindMissingField, auth.KindInvalidFormat, auth.KindWeakPassword:
		return fasthttp.StatusBadRequest
	case auth.KindInvalidCredentials, auth.KindAccountDeactivated:
		return fasthttp.StatusUnauthorized
	case auth.KindNotFound:
		return fasthttp.StatusNotFound
	case auth.KindEmailTaken:
		return fasthttp.StatusConflict
	default:
		return fasthttp.StatusInternalServerError
	}
}

// writeError renders err as {"error","code"}. Internal failures are logged
// with their full context and answered with a generic public message.
func (s *Server) writeError(ctx *fasthttp.RequestCtx, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		errutil.LogError(s.requestLogger(ctx), "request failed", err)
	}
	writeJSON(ctx, statusFor(kind), errorBody{Error: auth.PublicMessage(err), Code: kind.Code()})
}
