// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 KitchenSpark Contributors

package httpapi

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/valyala/fasthttp"

	"github.com/kitchenspark/kitchenspark/internal/auth"
)

const (
	headerRequestID     = "X-Request-ID"
	headerAuthorization = "Authorization"
	bearerPrefix        = "bearer "

	// userValueRequestID is the RequestCtx user value holding the request ID.
	userValueRequestID = "request_id"

	maxRequestIDLen = 128
)

// withRequestID echoes a caller-supplied X-Request-ID or generates a ULID,
// and sets it on the response.
func (s *Server) withRequestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := strings.TrimSpace(string(ctx.Request.Header.Peek(headerRequestID)))
		if id == "" || len(id) > maxRequestIDLen {
			id = ulid.Make().String()
		}
		ctx.SetUserValue(userValueRequestID, id)
		ctx.Response.Header.Set(headerRequestID, id)
		next(ctx)
	}
}

func (s *Server) withRecover(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if r := recover(); r != nil {
				s.requestLogger(ctx).Error("panic while handling request", "panic", r)
				ctx.ResetBody()
				writeJSON(ctx, fasthttp.StatusInternalServerError,
					errorBody{Error: "Internal server error", Code: auth.CodeInternal})
			}
		}()
		next(ctx)
	}
}

func (s *Server) withAccessLog(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		s.requestLogger(ctx).Info("request",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"duration", time.Since(start))
	}
}

// requestContext derives the context passed to the auth service. It is not
// tied to the fasthttp connection, only to the request timeout.
func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
}

func (s *Server) requestLogger(ctx *fasthttp.RequestCtx) *slog.Logger {
	if id, ok := ctx.UserValue(userValueRequestID).(string); ok {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func bearerToken(ctx *fasthttp.RequestCtx) (string, bool) {
	header := ctx.Request.Header.Peek(headerAuthorization)
	if len(header) <= len(bearerPrefix) || !bytes.EqualFold(header[:len(bearerPrefix)], []byte(bearerPrefix)) {
		return "", false
	}
	token := strings.TrimSpace(string(header[len(bearerPrefix):]))
	return token, token != ""
}
