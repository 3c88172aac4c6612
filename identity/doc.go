// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package identity adapts the oidc relying party to the needs of an interactive
client: a realm on a Keycloak-style provider, a loopback authorization code
flow with PKCE, silent session restore from a stored refresh token, token
refresh and logout.

State changes are reported as Events on the channel returned by
Adapter.Events.  The adapter only configures and forwards: discovery, token
requests and verification are done by the oidc package, the browser by the
system, and persistence by a tokenstore.Store.
*/
package identity
