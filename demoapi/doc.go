// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package demoapi is the backend the demo's protected page calls.

It serves a handful of routes which accept the access token the identity
provider issued, each checking it with a different amount of rigor:

	GET  /                      health
	GET  /api/public            no token
	POST /api/debug-token       token in the body, decoded without verification
	GET  /api/test-no-verify    bearer token, decoded without verification
	GET  /api/test-basic        bearer token, claims checked, signature not
	GET  /api/protected         bearer token, verified
	GET  /api/user-info         bearer token, verified
	GET  /api/admin/users       bearer token, verified, admin realm role
	GET  /api/token-info        bearer token, verified
	POST /api/refresh-token     forwards a refresh_token grant to the provider

Verified tokens are checked against the realm's JWKS, found through OIDC
discovery on first use.
*/
package demoapi
