// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"net/http"

	"github.com/hashicorp/cap-demo/oidc"
)

// SuccessResponseFunc writes the page the browser shows once the code has
// been exchanged for t.  stateID identifies the login attempt.
type SuccessResponseFunc func(stateID string, t oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc writes the page the browser shows when the login attempt
// fails.  respErr is set when the provider redirected with an error, e when
// handling the redirect failed; either may be nil.
type ErrorResponseFunc func(stateID string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse is the error a provider sends in place of a code.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}
