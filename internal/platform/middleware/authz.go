// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package middleware provides the HTTP middleware chain for the gateway.
//
// # Architecture
//
// Middleware intercepts incoming HTTP requests to apply global policies
// before they reach the entity handlers. This includes cross-cutting concerns
// like Logging, AuthN, Rate Limiting, and CORS. Per-operation authorization —
// which role may perform which action on which entity, and under what
// database policy — is decided downstream by the Authorization Policy
// Processor, not here.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/ctxkey"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	"github.com/taibuivan/dataapi/internal/platform/respond"
)

// TokenVerifier defines the interface needed to verify bearer tokens in
// middleware.
//
// # Why an interface?
//
// Defining TokenVerifier here decouples the middleware from the `principal`
// package's concrete [principal.TokenService], allowing mocks during unit
// testing.
type TokenVerifier interface {
	VerifyToken(tokenStr string) (*principal.Principal, error)
}

// Authenticate extracts and verifies the JWT from the Authorization header,
// then attaches the caller's requested role from [principal.RoleHeader].
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous.
//  3. If present, parse and verify the JWT via [TokenVerifier].
//  4. Read the X-MS-API-ROLE header and attach it to the principal — a
//     caller may hold many roles in its token and must say which one it is
//     acting as for this request.
//  5. Inject the [*principal.Principal] into the request context.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get("Authorization")

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if authHeader == "" {
				ctx := context.WithValue(request.Context(), ctxkey.KeyUser,
					&principal.Principal{Role: request.Header.Get(principal.RoleHeader)})
				next.ServeHTTP(writer, request.WithContext(ctx))
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
				return
			}

			// ── 3. Token Verification ─────────────────────────────────────────
			tokenStr := parts[1]
			caller, err := verifier.VerifyToken(tokenStr)
			if err != nil {
				respond.Error(writer, request, apperr.Unauthorized("Invalid or expired token"))
				return
			}
			caller.Role = request.Header.Get(principal.RoleHeader)

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := context.WithValue(request.Context(), ctxkey.KeyUser, caller)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that did not present a bearer token at all.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		caller := GetUser(request.Context())
		if caller == nil || caller.BearerToken == "" {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRoleHeader enforces the first rule of the Authorization Policy
// Processor before a request ever reaches it: the X-MS-API-ROLE header must
// be present, naming the role the caller is acting as. Its absence fails
// with AuthorizationCheckFailed (403) — this is never a hierarchy check,
// since the gateway has no notion of one role outranking another, only
// configured per-entity, per-role policies.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireRoleHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		caller := GetUser(request.Context())
		if caller == nil || caller.Role == "" {
			respond.Error(writer, request, apperr.AuthorizationCheckFailed("Missing required "+principal.RoleHeader+" header"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// GetUser retrieves the [*principal.Principal] from the [context.Context].
//
// # Returns
//   - A pointer to [*principal.Principal] whenever [Authenticate] ran; for
//     an anonymous request it carries only the role header's value.
//   - nil if neither [Authenticate] nor any prior middleware ran.
func GetUser(ctx context.Context) *principal.Principal {
	caller, ok := ctx.Value(ctxkey.KeyUser).(*principal.Principal)
	if !ok {
		return nil
	}
	return caller
}
