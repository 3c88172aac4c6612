// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package api

import "net/http"

// Endpoint is one of the backend's token-carrying routes.
type Endpoint struct {
	Name   string
	Method string
	Path   string
	// TokenInBody sends the token as {"token": ...} instead of a bearer
	// header.
	TokenInBody bool
}

var (
	Protected    = Endpoint{Name: "protected", Method: http.MethodGet, Path: "/api/protected"}
	UserInfo     = Endpoint{Name: "user-info", Method: http.MethodGet, Path: "/api/user-info"}
	TokenInfo    = Endpoint{Name: "token-info", Method: http.MethodGet, Path: "/api/token-info"}
	DebugToken   = Endpoint{Name: "debug-token", Method: http.MethodPost, Path: "/api/debug-token", TokenInBody: true}
	TestNoVerify = Endpoint{Name: "test-no-verify", Method: http.MethodGet, Path: "/api/test-no-verify"}
	TestBasic    = Endpoint{Name: "test-basic", Method: http.MethodGet, Path: "/api/test-basic"}
)

// Endpoints returns the endpoints in the order the protected page offers
// them.
func Endpoints() []Endpoint {
	return []Endpoint{Protected, UserInfo, TokenInfo, DebugToken, TestNoVerify, TestBasic}
}
