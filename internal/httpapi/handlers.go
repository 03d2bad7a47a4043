// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package httpapi

import (
	"encoding/json"
	"strconv"

	"github.com/samber/oops"
	"github.com/valyala/fasthttp"

	"github.com/kitchenspark/kitchenspark/internal/auth"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// decodeBody unmarshals the JSON request body into v. An empty body decodes
// as an empty object so that missing fields are reported field by field.
func decodeBody(ctx *fasthttp.RequestCtx, v any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return oops.Code(auth.CodeInvalidFormat).With("reason", err.Error()).Errorf("Invalid JSON body")
	}
	return nil
}

// requireToken writes a 401 and returns false when no bearer token is present.
func (s *Server) requireToken(ctx *fasthttp.RequestCtx) (string, bool) {
	token, ok := bearerToken(ctx)
	if !ok {
		writeJSON(ctx, fasthttp.StatusUnauthorized,
			errorBody{Error: "Missing authorization token", Code: auth.CodeInvalidCredentials})
	}
	return token, ok
}

func (s *Server) handleRegister(ctx *fasthttp.RequestCtx) {
	var req registerRequest
	if err := decodeBody(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	result, err := s.svc.Register(reqCtx, auth.RegisterInput(req))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, authResponse{
		Message:     "User registered successfully",
		AccessToken: result.Token,
		User:        newAccountView(result.Account),
	})
}

func (s *Server) handleLogin(ctx *fasthttp.RequestCtx) {
	var req loginRequest
	if err := decodeBody(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	result, err := s.svc.Login(reqCtx, auth.LoginInput(req))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, authResponse{
		Message:     "Login successful",
		AccessToken: result.Token,
		User:        newAccountView(result.Account),
	})
}

func (s *Server) handleGetProfile(ctx *fasthttp.RequestCtx) {
	token, ok := s.requireToken(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	account, err := s.svc.GetProfile(reqCtx, token)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, userResponse{User: newAccountView(account)})
}

func (s *Server) handleUpdateProfile(ctx *fasthttp.RequestCtx) {
	token, ok := s.requireToken(ctx)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeBody(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	account, err := s.svc.UpdateProfile(reqCtx, token, auth.ProfileUpdate(req))
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, userResponse{
		Message: "Profile updated successfully",
		User:    newAccountView(account),
	})
}

func (s *Server) handleChangePassword(ctx *fasthttp.RequestCtx) {
	token, ok := s.requireToken(ctx)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeBody(ctx, &req); err != nil {
		s.writeError(ctx, err)
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	if err := s.svc.ChangePassword(reqCtx, token, auth.PasswordChange(req)); err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, messageResponse{Message: "Password changed successfully"})
}

func (s *Server) handleLogout(ctx *fasthttp.RequestCtx) {
	token, ok := s.requireToken(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	if err := s.svc.Logout(reqCtx, token); err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, messageResponse{Message: "Logout successful"})
}

func (s *Server) handleVerifyToken(ctx *fasthttp.RequestCtx) {
	token, ok := s.requireToken(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	account, err := s.svc.VerifyToken(reqCtx, token)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, verifyResponse{Valid: true, User: newAccountView(account)})
}

func (s *Server) handleActivity(ctx *fasthttp.RequestCtx) {
	token, ok := s.requireToken(ctx)
	if !ok {
		return
	}

	limit := 0
	if raw := ctx.QueryArgs().Peek("limit"); len(raw) > 0 {
		n, err := strconv.Atoi(string(raw))
		if err != nil {
			s.writeError(ctx, oops.Code(auth.CodeInvalidFormat).
				With("field", "limit").
				Errorf("limit must be an integer"))
			return
		}
		limit = n
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	activities, err := s.svc.RecentActivity(reqCtx, token, limit)
	if err != nil {
		s.writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, activityResponse{Activities: newActivityViews(activities)})
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	if s.health == nil {
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		return
	}

	reqCtx, cancel := s.requestContext()
	defer cancel()

	if err := s.health.Ping(reqCtx); err != nil {
		s.requestLogger(ctx).Warn("health check failed", "error", err)
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}
