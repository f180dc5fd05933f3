// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taibuivan/dataapi/internal/platform/apperr"
	"github.com/taibuivan/dataapi/internal/platform/ctxutil"
	"github.com/taibuivan/dataapi/internal/platform/principal"
	"github.com/taibuivan/dataapi/internal/platform/validate"
)

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - request: *http.Request
  - target: interface{} (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
ID retrieves a named URL parameter (UUID/Slug) from the request.
*/
func ID(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
Param retrieves a named URL parameter from the request.
*/
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

/*
Claims extracts the authenticated caller from the request context.

Returns nil only if the Authenticate middleware did not run for the request;
an anonymous request yields a caller carrying just the role header's value.
*/
func Claims(request *http.Request) *principal.Principal {
	return ctxutil.GetAuthUser(request.Context())
}

/*
RequiredClaims ensures the request carries a verified bearer token and
returns the caller.

Returns:
  - *principal.Principal: The authenticated caller
  - error: apperr.Unauthorized if the request presented no bearer token
*/
func RequiredClaims(request *http.Request) (*principal.Principal, error) {

	// Get the caller attached by the Authenticate middleware
	caller := ctxutil.GetAuthUser(request.Context())

	// If the request never presented a verified bearer token, fail
	if caller == nil || caller.BearerToken == "" {
		return nil, apperr.Unauthorized("Authentication required")
	}

	return caller, nil
}

/*
RequiredClaim returns a named claim from the currently authenticated caller.

Returns:
  - string: the claim value
  - error: apperr.Unauthorized if not authenticated, apperr.BadRequest if the
    claim type is absent from the verified token
*/
func RequiredClaim(request *http.Request, claimType string) (string, error) {

	// Get the authenticated caller
	caller, err := RequiredClaims(request)
	if err != nil {
		return "", err
	}

	value, ok := caller.Claim(claimType)
	if !ok {
		return "", apperr.BadRequest("Required claim " + claimType + " is absent from the token")
	}

	return value, nil
}
