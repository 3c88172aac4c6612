// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is the relying-party half of an OIDC authorization code flow for
public clients (PKCE S256, no client secret required).

Primary types provided by the package

* State: represents one OIDC authentication attempt for a user.  It carries
the state id, nonce and PKCE code verifier used across the flow, along with an
expiration for the attempt.

* Token: represents an OIDC id_token, as well as an oauth2 access_token and
refresh_token (including the access_token expiry).  The raw token types redact
themselves when printed or marshaled.

* Config: provides the configuration for the flow (client id, optional secret,
issuer, redirect URL, supported signing algorithms, additional scopes, etc).

* Provider: integrates with the issuer: discovery, generating an auth URL,
exchanging codes for tokens, refreshing tokens, verifying id_tokens, user info
requests and ending the provider's session.

* Alg: represents asymmetric signing algorithms

The oidc/callback package provides the http.HandlerFunc for the third leg of
the flow, where the authorization code is exchanged for tokens.

TestProvider is an in-process OIDC provider for writing tests against.
*/
package oidc
